// Package wsbridge drives form sessions from a browser over a websocket. A
// connection opens one session, sends selection messages, and receives a
// fresh snapshot after every state change.
package wsbridge

import (
	"encoding/json"

	"github.com/tonimelisma/appdist/internal/cascade"
)

// Client message types.
const (
	msgOpen     = "open"
	msgSelect   = "select"
	msgExtra    = "extra"
	msgValues   = "values"
	msgRefresh  = "refresh"
	msgSnapshot = "snapshot"
	msgSubmit   = "submit"
	msgPing     = "ping"
)

// Server message types.
const (
	msgReady     = "ready"
	msgResult    = "result"
	msgSubmitted = "submitted"
	msgError     = "error"
	msgPong      = "pong"
)

// ClientMessage is the envelope for all client-to-server messages.
type ClientMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id"` // client-assigned request id, echoed back
	Data json.RawMessage `json:"data,omitempty"`
}

// OpenData starts a session for one form. Initial holds edit-flow values
// keyed by form field name.
type OpenData struct {
	Kind       string            `json:"kind"`
	EmployeeID string            `json:"employee_id,omitempty"`
	Initial    map[string]string `json:"initial,omitempty"`
}

// SelectData picks a level by label, or by id when ID is set.
type SelectData struct {
	Level string      `json:"level"`
	Label string      `json:"label,omitempty"`
	ID    *cascade.ID `json:"id,omitempty"`
}

// ExtraData sets a free-standing selection such as the application fee.
type ExtraData struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ValuesData applies several field values at once.
type ValuesData struct {
	Values map[string]string `json:"values"`
}

// RefreshData re-issues a failed slot.
type RefreshData struct {
	Slot string `json:"slot"`
}

// SubmitData sends the form. Fields are the caller's non-cascade form fields.
type SubmitData struct {
	RecordID string         `json:"record_id"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// ServerMessage is the envelope for all server-to-client messages.
type ServerMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// ReadyData answers a successful open.
type ReadyData struct {
	SessionID string   `json:"session_id"`
	Kind      string   `json:"kind"`
	Levels    []string `json:"levels"`
}

// ResultData reports a selection outcome.
type ResultData struct {
	Outcome string `json:"outcome"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
