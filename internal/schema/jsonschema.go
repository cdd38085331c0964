package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"

	"github.com/roach88/sdsverify/internal/sds"
)

// JSONSchema renders a JSON Schema (draft 2020-12) document describing the
// wire shape of values belonging to t.
//
// The key property is required. Properties whose kind is not one of the
// declared kinds accept any value.
func JSONSchema(t sds.Type) ([]byte, error) {
	key, ok := t.Key()
	if !ok {
		return nil, fmt.Errorf("type %s has no key property", t.ID)
	}

	props := make(map[string]any, len(t.Properties))
	for _, p := range t.Properties {
		props[p.ID] = kindSchema(p.Kind)
	}

	doc := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"$id":                  SchemaURL(t.ID),
		"title":                t.ID,
		"type":                 "object",
		"properties":           props,
		"required":             []string{key.ID},
		"additionalProperties": false,
	}
	return json.Marshal(doc)
}

// SchemaURL is the $id under which JSONSchema publishes a type's schema.
func SchemaURL(typeID string) string {
	return "https://sdsverify.local/types/" + url.PathEscape(typeID) + ".json"
}

func kindSchema(k sds.ValueKind) map[string]any {
	switch k {
	case sds.KindDateTime:
		return map[string]any{"type": "string", "format": "date-time"}
	case sds.KindNullableSingle:
		return map[string]any{"type": []string{"number", "null"}}
	case sds.KindBoolean:
		return map[string]any{"type": "boolean"}
	case sds.KindString:
		return map[string]any{"type": []string{"string", "null"}}
	case sds.KindNullableInt32:
		return map[string]any{
			"type":    []string{"integer", "null"},
			"minimum": math.MinInt32,
			"maximum": math.MaxInt32,
		}
	default:
		return map[string]any{}
	}
}
