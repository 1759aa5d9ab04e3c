// Package models pkg/models/bridge.go
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	errTerminalsNotList = errors.New("terminals field is not a list")
	errDecodeTerminal   = errors.New("failed to decode terminal")
)

// Bridge is an aggregation point that owns an ordered list of terminals.
type Bridge struct {
	ID        string          `json:"id"`
	Terminals []TerminalState `json:"terminals"`
}

// TerminalState is the liveness record of one terminal embedded in a bridge.
// TerminalID is nil when the stored entry carries no usable integer id;
// LastSeenCounter is nil until the first heartbeat observation.
type TerminalState struct {
	TerminalID      *int
	Live            bool
	LastSeenCounter *int64

	// extra keeps fields this service does not interpret so that a rewrite of
	// the terminal list does not drop them.
	extra map[string]interface{}
}

// HeartbeatSource is the externally maintained counter for one terminal.
type HeartbeatSource struct {
	TerminalID int   `json:"terminalId"`
	Counter    int64 `json:"counter"`
}

// BridgeFromDocument builds a Bridge view of a stored document. An absent or
// null terminal list yields a bridge with no terminals.
func BridgeFromDocument(doc map[string]interface{}) (Bridge, error) {
	b := Bridge{ID: stringField(doc, FieldID)}

	raw, ok := doc[FieldTerminals]
	if !ok || raw == nil {
		return b, nil
	}

	items, ok := raw.([]interface{})
	if !ok {
		return b, fmt.Errorf("%w: bridge %s", errTerminalsNotList, b.ID)
	}

	b.Terminals = make([]TerminalState, 0, len(items))

	for i, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return b, fmt.Errorf("%w: bridge %s index %d", errDecodeTerminal, b.ID, i)
		}

		b.Terminals = append(b.Terminals, TerminalFromMap(entry))
	}

	return b, nil
}

// HeartbeatFromDocument extracts the counter of a heartbeat document. The
// second return value is false when the document has no numeric counter.
func HeartbeatFromDocument(doc map[string]interface{}) (HeartbeatSource, bool) {
	counter, ok := Int64Value(doc[FieldCounter])
	if !ok {
		return HeartbeatSource{}, false
	}

	hb := HeartbeatSource{Counter: counter}

	if id, ok := IntegerValue(doc[FieldTerminalID]); ok {
		hb.TerminalID = int(id)
	}

	return hb, true
}

// TerminalFromMap decodes one embedded terminal entry.
func TerminalFromMap(entry map[string]interface{}) TerminalState {
	var ts TerminalState

	for k, v := range entry {
		switch k {
		case FieldTerminalID:
			if id, ok := IntegerValue(v); ok {
				i := int(id)
				ts.TerminalID = &i

				continue
			}
		case FieldLive:
			if live, ok := v.(bool); ok {
				ts.Live = live

				continue
			}
		case FieldLastSeenCounter:
			if c, ok := Int64Value(v); ok {
				ts.LastSeenCounter = &c

				continue
			}

			if v == nil {
				continue
			}
		}

		// Anything not understood is carried through untouched.
		if ts.extra == nil {
			ts.extra = make(map[string]interface{})
		}

		ts.extra[k] = v
	}

	return ts
}

// ToMap renders the terminal back into its document form.
func (t *TerminalState) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(t.extra)+3)

	for k, v := range t.extra {
		out[k] = v
	}

	if t.TerminalID != nil {
		out[FieldTerminalID] = *t.TerminalID
	}

	out[FieldLive] = t.Live

	if t.LastSeenCounter != nil {
		out[FieldLastSeenCounter] = *t.LastSeenCounter
	}

	return out
}

// Clone returns a deep copy so that callers can mutate a terminal without
// touching the snapshot it was read from.
func (t *TerminalState) Clone() TerminalState {
	c := TerminalState{Live: t.Live}

	if t.TerminalID != nil {
		id := *t.TerminalID
		c.TerminalID = &id
	}

	if t.LastSeenCounter != nil {
		n := *t.LastSeenCounter
		c.LastSeenCounter = &n
	}

	if t.extra != nil {
		c.extra = make(map[string]interface{}, len(t.extra))
		for k, v := range t.extra {
			c.extra[k] = v
		}
	}

	return c
}

// MarshalJSON implements json.Marshaler using the document form.
func (t TerminalState) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ToMap())
}

// UnmarshalJSON implements json.Unmarshaler using the document form.
func (t *TerminalState) UnmarshalJSON(b []byte) error {
	var entry map[string]interface{}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	if err := dec.Decode(&entry); err != nil {
		return fmt.Errorf("%w: %w", errDecodeTerminal, err)
	}

	*t = TerminalFromMap(entry)

	return nil
}

// TerminalsToList converts a terminal list into the value written to the
// bridge document, preserving order.
func TerminalsToList(terminals []TerminalState) []interface{} {
	out := make([]interface{}, len(terminals))

	for i := range terminals {
		out[i] = terminals[i].ToMap()
	}

	return out
}
