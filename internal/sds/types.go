package sds

import (
	"encoding/json"
	"fmt"
)

// codeObject is the SDS type code of a compound (property-bearing) type.
const codeObject = 1

// Property declares one field of a Type.
type Property struct {
	ID    string
	Name  string
	IsKey bool
	Kind  ValueKind

	// code preserves the wire type code of properties decoded from a store
	// whose kind falls outside the declared set.
	code int
}

// Type is an ordered set of properties identified by ID.
type Type struct {
	ID         string
	Name       string
	Properties []Property
}

// Stream binds a stream id to exactly one type.
type Stream struct {
	ID     string
	Name   string
	TypeID string
}

// NewType builds a Type and validates its declaration.
//
// Exactly one property must be the key and it must be DateTime-typed.
// Property ids must be unique and every kind must be a declared ValueKind.
func NewType(id string, props ...Property) (Type, error) {
	t := Type{
		ID:         id,
		Name:       id,
		Properties: append([]Property(nil), props...),
	}
	if err := t.Validate(); err != nil {
		return Type{}, err
	}
	return t, nil
}

// Validate checks the declaration rules enforced by NewType.
func (t Type) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("type id is required")
	}
	if len(t.Properties) == 0 {
		return fmt.Errorf("type %s: at least one property is required", t.ID)
	}

	seen := make(map[string]bool, len(t.Properties))
	keys := 0
	for i, p := range t.Properties {
		if p.ID == "" {
			return fmt.Errorf("type %s: properties[%d]: id is required", t.ID, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("type %s: duplicate property id %q", t.ID, p.ID)
		}
		seen[p.ID] = true

		if !p.Kind.Valid() {
			return fmt.Errorf("type %s: property %s: invalid value kind %v", t.ID, p.ID, p.Kind)
		}
		if p.IsKey {
			keys++
			if p.Kind != KindDateTime {
				return fmt.Errorf("type %s: key property %s must be DateTime, got %v", t.ID, p.ID, p.Kind)
			}
		}
	}
	if keys != 1 {
		return fmt.Errorf("type %s: exactly one key property required, got %d", t.ID, keys)
	}
	return nil
}

// Key returns the key property. ok is false for an undeclared or
// malformed type.
func (t Type) Key() (Property, bool) {
	for _, p := range t.Properties {
		if p.IsKey {
			return p, true
		}
	}
	return Property{}, false
}

type wireNestedType struct {
	ID          string `json:"Id"`
	Name        string `json:"Name,omitempty"`
	SdsTypeCode int    `json:"SdsTypeCode"`
}

type wireProperty struct {
	ID      string         `json:"Id"`
	Name    string         `json:"Name,omitempty"`
	IsKey   bool           `json:"IsKey"`
	SdsType wireNestedType `json:"SdsType"`
}

type wireType struct {
	ID          string         `json:"Id"`
	Name        string         `json:"Name,omitempty"`
	SdsTypeCode int            `json:"SdsTypeCode"`
	Properties  []wireProperty `json:"Properties"`
}

// MarshalJSON encodes the property in the SDS wire shape.
func (p Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.toWire())
}

// UnmarshalJSON decodes an SDS wire property. Unknown type codes decode to
// KindInvalid rather than failing: stores may hold types declared by others.
func (p *Property) UnmarshalJSON(data []byte) error {
	var w wireProperty
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = propertyFromWire(w)
	return nil
}

func (p Property) toWire() wireProperty {
	code := p.Kind.Code()
	if code == 0 {
		code = p.code
	}
	return wireProperty{
		ID:    p.ID,
		Name:  p.Name,
		IsKey: p.IsKey,
		SdsType: wireNestedType{
			ID:          p.Kind.String(),
			Name:        p.Kind.String(),
			SdsTypeCode: code,
		},
	}
}

func propertyFromWire(w wireProperty) Property {
	p := Property{ID: w.ID, Name: w.Name, IsKey: w.IsKey}
	kind, err := KindFromCode(w.SdsType.SdsTypeCode)
	if err != nil {
		p.code = w.SdsType.SdsTypeCode
		return p
	}
	p.Kind = kind
	return p
}

// MarshalJSON encodes the type in the SDS wire shape.
func (t Type) MarshalJSON() ([]byte, error) {
	w := wireType{
		ID:          t.ID,
		Name:        t.Name,
		SdsTypeCode: codeObject,
		Properties:  make([]wireProperty, len(t.Properties)),
	}
	for i, p := range t.Properties {
		w.Properties[i] = p.toWire()
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an SDS wire type without validating it.
func (t *Type) UnmarshalJSON(data []byte) error {
	var w wireType
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	props := make([]Property, len(w.Properties))
	for i, wp := range w.Properties {
		props[i] = propertyFromWire(wp)
	}
	*t = Type{ID: w.ID, Name: w.Name, Properties: props}
	return nil
}

type wireStream struct {
	ID     string `json:"Id"`
	Name   string `json:"Name,omitempty"`
	TypeID string `json:"TypeId"`
}

// MarshalJSON encodes the stream in the SDS wire shape.
func (s Stream) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireStream(s))
}

// UnmarshalJSON decodes an SDS wire stream.
func (s *Stream) UnmarshalJSON(data []byte) error {
	var w wireStream
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Stream(w)
	return nil
}
