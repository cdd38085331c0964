package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/sdsverify/internal/sds"
)

// GetOrCreateType inserts t unless a type with the same id exists in the
// namespace. An existing type is returned unchanged, whatever its
// properties.
func (s *Store) GetOrCreateType(ctx context.Context, namespaceID string, t sds.Type) (sds.Type, error) {
	var out sds.Type
	err := s.do(ctx, sds.OpGetOrCreateType, namespaceID, t.ID, func(tx *sql.Tx) error {
		existing, found, err := selectType(ctx, tx, namespaceID, t.ID)
		if err != nil {
			return err
		}
		if found {
			out = existing
			return nil
		}

		if err := t.Validate(); err != nil {
			return sds.NewStoreError(string(sds.OpGetOrCreateType), http.StatusBadRequest, "invalid type definition: %v", err)
		}
		def, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal type: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO types (namespace_id, id, name, definition)
			VALUES (?, ?, ?, ?)
		`, namespaceID, t.ID, t.Name, string(def)); err != nil {
			return fmt.Errorf("insert type: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return sds.Type{}, err
	}
	return out, nil
}

// CreateOrUpdateStream binds the stream to its type, creating it if needed.
func (s *Store) CreateOrUpdateStream(ctx context.Context, namespaceID string, st sds.Stream) error {
	return s.do(ctx, sds.OpCreateOrUpdateStream, namespaceID, st.ID, func(tx *sql.Tx) error {
		if st.ID == "" {
			return sds.NewStoreError(string(sds.OpCreateOrUpdateStream), http.StatusBadRequest, "stream id is required")
		}
		_, found, err := selectType(ctx, tx, namespaceID, st.TypeID)
		if err != nil {
			return err
		}
		if !found {
			return sds.NewStoreError(string(sds.OpCreateOrUpdateStream), http.StatusBadRequest,
				"type %s does not exist in namespace %s", st.TypeID, namespaceID)
		}

		name := st.Name
		if name == "" {
			name = st.ID
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO streams (namespace_id, id, name, type_id)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(namespace_id, id) DO UPDATE SET
				name = excluded.name,
				type_id = excluded.type_id
		`, namespaceID, st.ID, name, st.TypeID)
		if err != nil {
			return fmt.Errorf("upsert stream: %w", err)
		}
		return nil
	})
}

// InsertValues appends events to a stream atomically. A key that already
// exists in the stream, or repeats within the request, fails the whole
// request with a conflict.
func (s *Store) InsertValues(ctx context.Context, namespaceID, streamID string, events []sds.Event) error {
	return s.do(ctx, sds.OpInsertValues, namespaceID, streamID, func(tx *sql.Tx) error {
		if _, found, err := selectStream(ctx, tx, namespaceID, streamID); err != nil {
			return err
		} else if !found {
			return sds.NewStoreError(string(sds.OpInsertValues), http.StatusNotFound, "stream %s not found", streamID)
		}

		seen := make(map[string]bool, len(events))
		for _, e := range events {
			key := e.Key()
			if seen[key] {
				return sds.NewStoreError(string(sds.OpInsertValues), http.StatusConflict, "duplicate key %s in request", key)
			}
			seen[key] = true

			var exists int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM stream_values
				WHERE namespace_id = ? AND stream_id = ? AND key = ?
			`, namespaceID, streamID, key).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check key: %w", err)
			}
			if exists > 0 {
				return sds.NewStoreError(string(sds.OpInsertValues), http.StatusConflict, "key %s already exists in stream %s", key, streamID)
			}

			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stream_values (namespace_id, stream_id, key, ts_unix_nano, payload)
				VALUES (?, ?, ?, ?, ?)
			`, namespaceID, streamID, key, e.Timestamp.UnixNano(), string(payload)); err != nil {
				return fmt.Errorf("insert value: %w", err)
			}
		}
		return nil
	})
}

// DeleteStream removes a stream and its values.
func (s *Store) DeleteStream(ctx context.Context, namespaceID, streamID string) error {
	return s.do(ctx, sds.OpDeleteStream, namespaceID, streamID, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM streams WHERE namespace_id = ? AND id = ?
		`, namespaceID, streamID)
		if err != nil {
			return fmt.Errorf("delete stream: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete stream: rows affected: %w", err)
		}
		if n == 0 {
			return sds.NewStoreError(string(sds.OpDeleteStream), http.StatusNotFound, "stream %s not found", streamID)
		}
		return nil
	})
}

// DeleteType removes a type. It fails with a conflict while any stream in
// the namespace still references the type.
func (s *Store) DeleteType(ctx context.Context, namespaceID, typeID string) error {
	return s.do(ctx, sds.OpDeleteType, namespaceID, typeID, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM streams WHERE namespace_id = ? AND type_id = ?
		`, namespaceID, typeID).Scan(&refs); err != nil {
			return fmt.Errorf("count type references: %w", err)
		}
		if refs > 0 {
			return sds.NewStoreError(string(sds.OpDeleteType), http.StatusConflict,
				"type %s is referenced by %d stream(s)", typeID, refs)
		}

		res, err := tx.ExecContext(ctx, `
			DELETE FROM types WHERE namespace_id = ? AND id = ?
		`, namespaceID, typeID)
		if err != nil {
			return fmt.Errorf("delete type: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete type: rows affected: %w", err)
		}
		if n == 0 {
			return sds.NewStoreError(string(sds.OpDeleteType), http.StatusNotFound, "type %s not found", typeID)
		}
		return nil
	})
}

// do runs fn in a transaction and appends the call to the log.
//
// An injected fault short-circuits fn but is still logged. The log entry
// is written outside the operation's transaction so failed calls are
// recorded too.
func (s *Store) do(ctx context.Context, op sds.Op, namespaceID, target string, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opErr := s.faults[op]
	if opErr == nil {
		opErr = s.inTx(ctx, fn)
	}

	if err := s.record(ctx, op, namespaceID, target, opErr); err != nil {
		return err
	}
	return opErr
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) record(ctx context.Context, op sds.Op, namespaceID, target string, opErr error) error {
	msg := ""
	if opErr != nil {
		msg = opErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (op, namespace_id, target, error)
		VALUES (?, ?, ?, ?)
	`, string(op), namespaceID, target, msg)
	if err != nil {
		return errors.Join(opErr, fmt.Errorf("record %s call: %w", op, err))
	}
	return nil
}
