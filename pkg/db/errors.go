// Package db pkg/db/errors.go provides errors for the db package.
package db

import "errors"

var (
	// ErrNotFound is returned when a lookup or update matches no document.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidField is returned for field names that cannot be addressed.
	ErrInvalidField = errors.New("invalid field name")

	// ErrDuplicateID is returned when inserting a document whose id exists.
	ErrDuplicateID = errors.New("duplicate document id")

	// ErrUnknownDriver is returned by Open for unsupported store drivers.
	ErrUnknownDriver = errors.New("unknown store driver")

	errFailedOpenDB      = errors.New("failed to open database")
	errFailedToInit      = errors.New("failed to initialize schema")
	errFailedToEnableWAL = errors.New("failed to enable WAL mode")
	errFailedToBeginTx   = errors.New("failed to begin transaction")
	errFailedToRollback  = errors.New("failed to roll back transaction")
	errFailedToClose     = errors.New("failed to close rows")
	errFailedToQuery     = errors.New("failed to query")
	errFailedToScan      = errors.New("failed to scan")
	errFailedToInsert    = errors.New("failed to insert")
	errFailedToUpdate    = errors.New("failed to update")
	errFailedToEncode    = errors.New("failed to encode document")
	errFailedToDecode    = errors.New("failed to decode document")
)
