package sds

import (
	"context"
	"encoding/json"
	"time"
)

// Client is the store surface the harness mutates.
//
// Calls are synchronous; implementations do not retry.
type Client interface {
	// GetOrCreateType creates t in the namespace unless a type with t.ID
	// already exists, in which case the existing type is returned unchanged.
	GetOrCreateType(ctx context.Context, namespaceID string, t Type) (Type, error)

	// CreateOrUpdateStream binds s.ID to s.TypeID whether or not the stream
	// already exists.
	CreateOrUpdateStream(ctx context.Context, namespaceID string, s Stream) error

	// InsertValues appends events to a stream in one request. Events whose
	// key already exists in the stream fail the request.
	InsertValues(ctx context.Context, namespaceID, streamID string, events []Event) error

	DeleteStream(ctx context.Context, namespaceID, streamID string) error

	// DeleteType fails while any stream still references the type.
	DeleteType(ctx context.Context, namespaceID, typeID string) error
}

// Reader is the read side of a store.
type Reader interface {
	GetType(ctx context.Context, namespaceID, typeID string) (Type, error)
	GetStream(ctx context.Context, namespaceID, streamID string) (Stream, error)

	// GetWindowValues returns raw values with keys in [start, end], ordered
	// by key.
	GetWindowValues(ctx context.Context, namespaceID, streamID string, start, end time.Time) ([]json.RawMessage, error)
}

// ReadClient is a store that supports both sides.
type ReadClient interface {
	Client
	Reader
}
