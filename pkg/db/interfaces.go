// Package db pkg/db/interfaces.go
package db

import (
	"context"
)

//go:generate mockgen -destination=mock_db.go -package=db github.com/mfreeman451/statustracker/pkg/db Service

// Document is a schemaless record. Every stored document carries its
// store-assigned identity under the "id" key.
type Document map[string]interface{}

// ID returns the identity of the document, or "" when it has none.
func (d Document) ID() string {
	id, _ := d[idField].(string)

	return id
}

// Service represents all document store operations used by the engines.
type Service interface {
	// Find enumerates every document of a collection in insertion order.
	Find(ctx context.Context, collection string) ([]Document, error)

	// FindOne returns the first document whose top-level field equals value,
	// or ErrNotFound.
	FindOne(ctx context.Context, collection, field string, value interface{}) (Document, error)

	// UpdateFields atomically replaces the given top-level fields of one
	// document. Fields not named are left untouched.
	UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error

	// Insert stores a new document and returns its id. An id already present
	// in the document is kept, otherwise one is assigned.
	Insert(ctx context.Context, collection string, doc Document) (string, error)

	Close() error
}
