package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
)

const idField = "id"

var fieldNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateField(field string) error {
	if !fieldNameRE.MatchString(field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}

	return nil
}

// encodeDocument serialises a document for storage.
func encodeDocument(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToEncode, err)
	}

	return data, nil
}

// decodeDocument parses stored JSON. Numbers are kept as json.Number so large
// heartbeat counters survive without float rounding.
func decodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToDecode, err)
	}

	return doc, nil
}

// normalize returns a deep copy of doc in the same shape every store hands
// back to callers: JSON objects, arrays, strings, bools and json.Number.
func normalize(doc Document) (Document, error) {
	data, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}

	return decodeDocument(data)
}

func normalizeValue(v interface{}) (interface{}, error) {
	doc, err := normalize(Document{"v": v})
	if err != nil {
		return nil, err
	}

	return doc["v"], nil
}

// valuesEqual compares two normalized values, treating numbers numerically so
// that 7 and 7.0 match.
func valuesEqual(a, b interface{}) bool {
	an, aok := a.(json.Number)
	bn, bok := b.(json.Number)

	if aok && bok {
		if ai, err := an.Int64(); err == nil {
			if bi, err := bn.Int64(); err == nil {
				return ai == bi
			}
		}

		af, errA := an.Float64()
		bf, errB := bn.Float64()

		return errA == nil && errB == nil && af == bf
	}

	return reflect.DeepEqual(a, b)
}
