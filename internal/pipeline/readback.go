package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roach88/sdsverify/internal/schema"
	"github.com/roach88/sdsverify/internal/sds"
)

// Readback reads the inserted window back from the stream and checks the
// data shape: every value must validate against the JSON Schema of the
// stream's type and be either valued or stated.
type Readback struct {
	Reader      sds.Reader
	NamespaceID string
	TypeID      string
	StreamID    string

	// Start and End bound the window read back (inclusive).
	Start time.Time
	End   time.Time

	// MinValues is the fewest values the window must hold.
	MinValues int
}

// Run performs the readback. Test mode does not change its behavior.
func (r *Readback) Run(ctx context.Context, _ bool) error {
	t, err := r.Reader.GetType(ctx, r.NamespaceID, r.TypeID)
	if err != nil {
		return fmt.Errorf("readback: get type: %w", err)
	}

	validator, err := compileTypeSchema(t)
	if err != nil {
		return fmt.Errorf("readback: %w", err)
	}

	values, err := r.Reader.GetWindowValues(ctx, r.NamespaceID, r.StreamID, r.Start, r.End)
	if err != nil {
		return fmt.Errorf("readback: get values: %w", err)
	}
	if len(values) < r.MinValues {
		return fmt.Errorf("readback: stream %s holds %d value(s) in window, want at least %d",
			r.StreamID, len(values), r.MinValues)
	}

	var errs []error
	for i, raw := range values {
		if err := validateValue(validator, raw); err != nil {
			errs = append(errs, fmt.Errorf("value[%d]: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("readback: %w", errors.Join(errs...))
	}
	return nil
}

func compileTypeSchema(t sds.Type) (*jsonschema.Schema, error) {
	doc, err := schema.JSONSchema(t)
	if err != nil {
		return nil, fmt.Errorf("render schema: %w", err)
	}

	url := schema.SchemaURL(t.ID)
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

func validateValue(validator *jsonschema.Schema, raw json.RawMessage) error {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := validator.Validate(payload); err != nil {
		return err
	}

	var e sds.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return e.Validate()
}
