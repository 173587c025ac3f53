package position

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload marks a state frame that could not be decoded at all.
var ErrMalformedPayload = errors.New("malformed state payload")

// Payload is one game-state delivery in any of the shapes the service is known to send.
// The set of implementations is closed; Normalize switches over all of them.
type Payload interface {
	payloadKind() string
}

// StateFields are the fields a state object may carry. Moves is nil when the field is absent.
type StateFields struct {
	Moves  *string
	Status string
	Winner string
}

// FlatState has the move list at the top level (export endpoint, bare gameState frames).
type FlatState struct {
	Top    StateFields
	Nested *StateFields
}

// NestedState carries its move list in a nested "state" object.
type NestedState struct {
	Top    StateFields
	Nested StateFields
}

// FullGame is the "gameFull" envelope sent first on a game stream.
type FullGame struct {
	ID     string
	Top    StateFields
	Nested StateFields
}

// RawMoves is a bare space separated move list.
type RawMoves string

// Empty is an absent payload.
type Empty struct{}

// Notice is a typed frame with no game state (chat lines, opponent presence).
type Notice struct {
	Type string
}

func (FlatState) payloadKind() string   { return "flat" }
func (NestedState) payloadKind() string { return "nested" }
func (FullGame) payloadKind() string    { return "game_full" }
func (RawMoves) payloadKind() string    { return "raw" }
func (Empty) payloadKind() string       { return "empty" }
func (Notice) payloadKind() string      { return "notice" }

// Kind returns a short label for logs.
func Kind(p Payload) string {
	if p == nil {
		return "empty"
	}
	return p.payloadKind()
}

// Informational reports whether p carries no game state and should be skipped by sessions.
func Informational(p Payload) bool {
	_, ok := p.(Notice)
	return ok
}

const typeGameFull = "gameFull"

var noticeTypes = map[string]struct{}{
	"chatLine":     {},
	"opponentGone": {},
}

// Decode classifies one wire frame. Objects are inspected by field presence only:
// top-level moves, then a nested state object, then a gameFull envelope.
func Decode(raw []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Empty{}, nil
	}

	switch trimmed[0] {
	case '{':
		return decodeObject(trimmed)
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return rawOrEmpty(s), nil
	case '[':
		if !json.Valid(trimmed) {
			return nil, ErrMalformedPayload
		}
		return Empty{}, nil
	default:
		// bare JSON scalars (42, true) carry no moves
		if json.Valid(trimmed) {
			return Empty{}, nil
		}
		return rawOrEmpty(string(trimmed)), nil
	}
}

func rawOrEmpty(s string) Payload {
	if strings.TrimSpace(s) == "" {
		return Empty{}
	}
	return RawMoves(s)
}

func decodeObject(raw []byte) (Payload, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	top := fieldsOf(obj)
	typ := stringField(obj, "type")

	var nested *StateFields
	if sub, ok := objectField(obj, "state"); ok {
		f := fieldsOf(sub)
		nested = &f
	}

	switch {
	case top.Moves != nil:
		return FlatState{Top: top, Nested: nested}, nil
	case nested != nil && nested.Moves != nil && typ != typeGameFull:
		return NestedState{Top: top, Nested: *nested}, nil
	case nested != nil && typ == typeGameFull:
		return FullGame{ID: stringField(obj, "id"), Top: top, Nested: *nested}, nil
	case nested != nil:
		return NestedState{Top: top, Nested: *nested}, nil
	}

	if _, ok := noticeTypes[typ]; ok {
		return Notice{Type: typ}, nil
	}
	if top.Status != "" {
		return FlatState{Top: top}, nil
	}
	return Empty{}, nil
}

func fieldsOf(obj map[string]json.RawMessage) StateFields {
	var f StateFields
	if raw, ok := obj["moves"]; ok {
		var s string
		// null or a non-string moves field counts as present but empty.
		_ = json.Unmarshal(raw, &s)
		f.Moves = &s
	}
	f.Status = statusField(obj)
	f.Winner = stringField(obj, "winner")
	return f
}

// statusField accepts both the stream form ("mate") and the legacy
// object form ({"id":30,"name":"mate"}).
func statusField(obj map[string]json.RawMessage) string {
	raw, ok := obj["status"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &named); err == nil {
		return strings.TrimSpace(named.Name)
	}
	return ""
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func objectField(obj map[string]json.RawMessage, key string) (map[string]json.RawMessage, bool) {
	raw, ok := obj[key]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var sub map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, false
	}
	return sub, true
}
