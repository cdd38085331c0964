package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/sdsverify/internal/sds"
)

// SeedType registers a type as a pre-existing fixture. The definition is
// stored as given, without validation, and the call is not logged.
func (s *Store) SeedType(ctx context.Context, namespaceID string, t sds.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("seed type: marshal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO types (namespace_id, id, name, definition)
		VALUES (?, ?, ?, ?)
	`, namespaceID, t.ID, t.Name, string(def)); err != nil {
		return fmt.Errorf("seed type %s: %w", t.ID, err)
	}
	return nil
}

// SeedStream registers a pre-existing stream fixture. The call is not logged.
func (s *Store) SeedStream(ctx context.Context, namespaceID string, st sds.Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := st.Name
	if name == "" {
		name = st.ID
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO streams (namespace_id, id, name, type_id)
		VALUES (?, ?, ?, ?)
	`, namespaceID, st.ID, name, st.TypeID); err != nil {
		return fmt.Errorf("seed stream %s: %w", st.ID, err)
	}
	return nil
}
