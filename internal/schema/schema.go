// Package schema declares the event Type and provisions the Type and Stream
// resources a verification run writes to.
package schema

import (
	"context"

	"github.com/roach88/sdsverify/internal/sds"
)

// Event property ids, in declaration order.
const (
	PropTimestamp        = "Timestamp"
	PropValue            = "Value"
	PropIsQuestionable   = "IsQuestionable"
	PropIsSubstituted    = "IsSubstituted"
	PropIsAnnotated      = "IsAnnotated"
	PropSystemStateCode  = "SystemStateCode"
	PropDigitalStateName = "DigitalStateName"
)

// EventProperties returns the property declarations matching sds.Event.
func EventProperties() []sds.Property {
	prop := func(id string, kind sds.ValueKind) sds.Property {
		return sds.Property{ID: id, Name: id, Kind: kind}
	}
	key := prop(PropTimestamp, sds.KindDateTime)
	key.IsKey = true

	return []sds.Property{
		key,
		prop(PropValue, sds.KindNullableSingle),
		prop(PropIsQuestionable, sds.KindBoolean),
		prop(PropIsSubstituted, sds.KindBoolean),
		prop(PropIsAnnotated, sds.KindBoolean),
		prop(PropSystemStateCode, sds.KindNullableInt32),
		prop(PropDigitalStateName, sds.KindString),
	}
}

// EventType builds the event Type under the given id.
func EventType(typeID string) (sds.Type, error) {
	return sds.NewType(typeID, EventProperties()...)
}

// Builder provisions schema resources through a store client.
type Builder struct {
	client sds.Client
}

// NewBuilder creates a Builder.
func NewBuilder(client sds.Client) *Builder {
	return &Builder{client: client}
}

// EnsureType creates the event Type unless one with typeID already exists
// in the namespace. An existing type is returned as the store reports it,
// even if its properties differ from the event declaration.
//
// Store errors are returned unmodified.
func (b *Builder) EnsureType(ctx context.Context, namespaceID, typeID string) (sds.Type, error) {
	t, err := EventType(typeID)
	if err != nil {
		return sds.Type{}, err
	}
	return b.client.GetOrCreateType(ctx, namespaceID, t)
}

// EnsureStream binds streamID to typeID, creating the stream if needed.
//
// Store errors are returned unmodified.
func (b *Builder) EnsureStream(ctx context.Context, namespaceID, streamID, typeID string) (sds.Stream, error) {
	s := sds.Stream{ID: streamID, Name: streamID, TypeID: typeID}
	if err := b.client.CreateOrUpdateStream(ctx, namespaceID, s); err != nil {
		return sds.Stream{}, err
	}
	return s, nil
}
