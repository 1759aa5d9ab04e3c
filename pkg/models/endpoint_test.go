package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointFromDocument(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)

	ep := EndpointFromDocument(map[string]interface{}{
		"id":                  "e1",
		"address":             "192.0.2.10",
		"reachable":           true,
		"lastChangeTimestamp": ts.Format(time.RFC3339Nano),
	})

	assert.Equal(t, "e1", ep.ID)
	assert.Equal(t, "192.0.2.10", ep.Address)
	assert.True(t, ep.Reachable)
	require.NotNil(t, ep.LastChangeTimestamp)
	assert.True(t, ts.Equal(*ep.LastChangeTimestamp))
}

func TestEndpointFromDocument_WrongTypes(t *testing.T) {
	ep := EndpointFromDocument(map[string]interface{}{
		"id":                  "e2",
		"address":             12,
		"reachable":           "true",
		"lastChangeTimestamp": "yesterday",
	})

	assert.Equal(t, "e2", ep.ID)
	assert.Empty(t, ep.Address)
	assert.False(t, ep.Reachable)
	assert.Nil(t, ep.LastChangeTimestamp)
}

func TestInt64Value(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int64
		ok   bool
	}{
		{"json int", json.Number("42"), 42, true},
		{"json float", json.Number("42.0"), 42, true},
		{"float64", 7.0, 7, true},
		{"int", 3, 3, true},
		{"int64", int64(-1), -1, true},
		{"string", "12", 0, false},
		{"nil", nil, 0, false},
		{"bad json number", json.Number("x"), 0, false},
		{"fraction truncated", 5.7, 5, true},
		{"two to the 63", math.Exp2(63), 0, false},
		{"json two to the 63", json.Number("9223372036854775808"), 0, false},
		{"min int64", float64(math.MinInt64), math.MinInt64, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Int64Value(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntegerValue(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int64
		ok   bool
	}{
		{"json int", json.Number("7"), 7, true},
		{"json whole float", json.Number("7.0"), 7, true},
		{"json fraction", json.Number("5.7"), 0, false},
		{"float64 fraction", 5.7, 0, false},
		{"float64 whole", 5.0, 5, true},
		{"float32 fraction", float32(2.5), 0, false},
		{"two to the 63", math.Exp2(63), 0, false},
		{"int", 9, 9, true},
		{"string", "9", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IntegerValue(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
