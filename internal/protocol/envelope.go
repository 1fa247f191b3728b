// Package protocol defines the envelopes exchanged with plugins and the
// normalized result shapes handed back to front ends.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	Version            = "1.0"
	SchemaVersion      = "rcs_v1"
	ContentTypeJSON    = "application/json"
	SourceOrchestrator = "orchestrator"
)

// Values allowed in payload.result of a plugin reply.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDryRun  = "dry_run"
)

// MessageMetadata is generated fresh for every call.
type MessageMetadata struct {
	Version       string    `json:"version"`
	MessageID     uuid.UUID `json:"message_id"`
	CreatedAt     time.Time `json:"created_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type Observability struct {
	TraceID uuid.UUID `json:"trace_id"`
	SpanID  uuid.UUID `json:"span_id"`
}

type Routing struct {
	EventType    string `json:"event_type"`
	SourceModule string `json:"source_module"`
	TargetNode   string `json:"target_node"`
}

type RequestData struct {
	InputParameters map[string]any `json:"input_parameters"`
}

type RequestPayload struct {
	SchemaVersion string      `json:"schema_version"`
	ContentType   string      `json:"content_type"`
	Data          RequestData `json:"data"`
}

// Envelope is the request written to a plugin's standard input.
type Envelope struct {
	MessageMetadata MessageMetadata `json:"message_metadata"`
	Routing         Routing         `json:"routing"`
	Payload         RequestPayload  `json:"payload"`
	Observability   Observability   `json:"observability"`
}

// Reply is the response a plugin writes to standard output. Plugins may add
// fields of their own; the mediator reads replies as generic documents and
// only uses this type to emit well-formed replies on a plugin's behalf.
type Reply struct {
	MessageMetadata MessageMetadata `json:"message_metadata"`
	Observability   Observability   `json:"observability"`
	Payload         ReplyPayload    `json:"payload"`
	Error           *ReplyError     `json:"error"`
}

type ReplyPayload struct {
	Result     string         `json:"result"`
	OutputData map[string]any `json:"output_data"`
}

// ReplyError is the error object of a plugin reply. Data carries
// plugin-specific diagnostics and is surfaced as StructuredError.Details.
type ReplyError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}
