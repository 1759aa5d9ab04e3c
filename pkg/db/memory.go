// Package db pkg/db/memory.go
package db

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore implements Service for tests and throwaway runs. Documents are
// normalized on the way in and copied on the way out, so callers never share
// state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Document
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]Document),
	}
}

func (s *MemoryStore) Find(_ context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[collection]
	out := make([]Document, 0, len(docs))

	for _, doc := range docs {
		c, err := normalize(doc)
		if err != nil {
			return nil, err
		}

		out = append(out, c)
	}

	return out, nil
}

func (s *MemoryStore) FindOne(_ context.Context, collection, field string, value interface{}) (Document, error) {
	if err := validateField(field); err != nil {
		return nil, err
	}

	want, err := normalizeValue(value)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.collections[collection] {
		got, ok := doc[field]
		if !ok {
			continue
		}

		if valuesEqual(got, want) {
			return normalize(doc)
		}
	}

	return nil, ErrNotFound
}

func (s *MemoryStore) UpdateFields(_ context.Context, collection, id string, fields map[string]interface{}) error {
	update := make(Document, len(fields))

	for field, v := range fields {
		if err := validateField(field); err != nil {
			return err
		}

		if field == idField {
			return fmt.Errorf("%w: %q is immutable", ErrInvalidField, field)
		}

		update[field] = v
	}

	update, err := normalize(update)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range s.collections[collection] {
		if doc.ID() != id {
			continue
		}

		for k, v := range update {
			doc[k] = v
		}

		return nil
	}

	return ErrNotFound
}

func (s *MemoryStore) Insert(_ context.Context, collection string, doc Document) (string, error) {
	doc, err := prepareInsert(doc)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := doc.ID()

	for _, existing := range s.collections[collection] {
		if existing.ID() == id {
			return "", fmt.Errorf("%w: %s/%s", ErrDuplicateID, collection, id)
		}
	}

	s.collections[collection] = append(s.collections[collection], doc)

	return id, nil
}

func (*MemoryStore) Close() error {
	return nil
}
