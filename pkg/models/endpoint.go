// Package models pkg/models/endpoint.go
package models

import (
	"time"
)

// Document field names shared by the store adapters and the engines.
const (
	FieldID              = "id"
	FieldAddress         = "address"
	FieldReachable       = "reachable"
	FieldLastChange      = "lastChangeTimestamp"
	FieldTerminals       = "terminals"
	FieldTerminalID      = "terminalId"
	FieldLive            = "live"
	FieldLastSeenCounter = "lastSeenCounter"
	FieldCounter         = "counter"
)

// MonitoredEndpoint is a network entity probed directly by the prober.
type MonitoredEndpoint struct {
	ID                  string     `json:"id"`
	Address             string     `json:"address"`
	Reachable           bool       `json:"reachable"`
	LastChangeTimestamp *time.Time `json:"lastChangeTimestamp,omitempty"`
}

// EndpointFromDocument builds a MonitoredEndpoint view of a stored document.
// Fields of the wrong type fall back to their zero value, so a document
// without a boolean "reachable" reads as unreachable.
func EndpointFromDocument(doc map[string]interface{}) MonitoredEndpoint {
	ep := MonitoredEndpoint{
		ID: stringField(doc, FieldID),
	}

	ep.Address = stringField(doc, FieldAddress)

	if v, ok := doc[FieldReachable].(bool); ok {
		ep.Reachable = v
	}

	if ts, ok := timeField(doc, FieldLastChange); ok {
		ep.LastChangeTimestamp = &ts
	}

	return ep
}

func stringField(doc map[string]interface{}, key string) string {
	s, _ := doc[key].(string)

	return s
}

func timeField(doc map[string]interface{}, key string) (time.Time, bool) {
	switch v := doc[key].(type) {
	case time.Time:
		return v, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}

		return ts, true
	default:
		return time.Time{}, false
	}
}
