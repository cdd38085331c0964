package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/roach88/sdsverify/internal/sds"
)

// Call is one entry of the store's call log.
type Call struct {
	Seq         int64
	Op          sds.Op
	NamespaceID string
	Target      string

	// Err is the failure message, empty for a successful call.
	Err string
}

// GetType returns a type by id.
func (s *Store) GetType(ctx context.Context, namespaceID, typeID string) (sds.Type, error) {
	var out sds.Type
	err := s.do(ctx, sds.OpGetType, namespaceID, typeID, func(tx *sql.Tx) error {
		t, found, err := selectType(ctx, tx, namespaceID, typeID)
		if err != nil {
			return err
		}
		if !found {
			return sds.NewStoreError(string(sds.OpGetType), http.StatusNotFound, "type %s not found", typeID)
		}
		out = t
		return nil
	})
	return out, err
}

// GetStream returns a stream by id.
func (s *Store) GetStream(ctx context.Context, namespaceID, streamID string) (sds.Stream, error) {
	var out sds.Stream
	err := s.do(ctx, sds.OpGetStream, namespaceID, streamID, func(tx *sql.Tx) error {
		st, found, err := selectStream(ctx, tx, namespaceID, streamID)
		if err != nil {
			return err
		}
		if !found {
			return sds.NewStoreError(string(sds.OpGetStream), http.StatusNotFound, "stream %s not found", streamID)
		}
		out = st
		return nil
	})
	return out, err
}

// GetWindowValues returns stored payloads with timestamps in [start, end],
// ordered by time.
//
// Returns an empty slice (not nil) if the window holds no values.
func (s *Store) GetWindowValues(ctx context.Context, namespaceID, streamID string, start, end time.Time) ([]json.RawMessage, error) {
	out := []json.RawMessage{}
	err := s.do(ctx, sds.OpGetWindowValues, namespaceID, streamID, func(tx *sql.Tx) error {
		if _, found, err := selectStream(ctx, tx, namespaceID, streamID); err != nil {
			return err
		} else if !found {
			return sds.NewStoreError(string(sds.OpGetWindowValues), http.StatusNotFound, "stream %s not found", streamID)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT payload FROM stream_values
			WHERE namespace_id = ? AND stream_id = ? AND ts_unix_nano BETWEEN ? AND ?
			ORDER BY ts_unix_nano ASC, key COLLATE BINARY ASC
		`, namespaceID, streamID, start.UnixNano(), end.UnixNano())
		if err != nil {
			return fmt.Errorf("query values: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var payload string
			if err := rows.Scan(&payload); err != nil {
				return fmt.Errorf("scan value: %w", err)
			}
			out = append(out, json.RawMessage(payload))
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate values: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Resources counts the types and streams registered in a namespace.
// It is an introspection helper and is not logged as a call.
func (s *Store) Resources(ctx context.Context, namespaceID string) (types, streams int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM types WHERE namespace_id = ?
	`, namespaceID).Scan(&types); err != nil {
		return 0, 0, fmt.Errorf("count types: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM streams WHERE namespace_id = ?
	`, namespaceID).Scan(&streams); err != nil {
		return 0, 0, fmt.Errorf("count streams: %w", err)
	}
	return types, streams, nil
}

// Calls returns the call log ordered by seq.
//
// Returns an empty slice (not nil) if no calls were made.
func (s *Store) Calls(ctx context.Context) ([]Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, op, namespace_id, target, error
		FROM calls
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []Call{}
	for rows.Next() {
		var c Call
		var op string
		if err := rows.Scan(&c.Seq, &op, &c.NamespaceID, &c.Target, &c.Err); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		c.Op = sds.Op(op)
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// CountCalls returns how many times op was invoked.
func (s *Store) CountCalls(ctx context.Context, op sds.Op) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM calls WHERE op = ?
	`, string(op)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func selectType(ctx context.Context, q queryRower, namespaceID, typeID string) (sds.Type, bool, error) {
	var def string
	err := q.QueryRowContext(ctx, `
		SELECT definition FROM types WHERE namespace_id = ? AND id = ?
	`, namespaceID, typeID).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return sds.Type{}, false, nil
	}
	if err != nil {
		return sds.Type{}, false, fmt.Errorf("select type: %w", err)
	}

	var t sds.Type
	if err := json.Unmarshal([]byte(def), &t); err != nil {
		return sds.Type{}, false, fmt.Errorf("decode type %s: %w", typeID, err)
	}
	return t, true, nil
}

func selectStream(ctx context.Context, q queryRower, namespaceID, streamID string) (sds.Stream, bool, error) {
	var st sds.Stream
	err := q.QueryRowContext(ctx, `
		SELECT id, name, type_id FROM streams WHERE namespace_id = ? AND id = ?
	`, namespaceID, streamID).Scan(&st.ID, &st.Name, &st.TypeID)
	if errors.Is(err, sql.ErrNoRows) {
		return sds.Stream{}, false, nil
	}
	if err != nil {
		return sds.Stream{}, false, fmt.Errorf("select stream: %w", err)
	}
	return st, true, nil
}
