package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusDryRun  Status = "dry_run"
)

// Error codes surfaced in StructuredError.Code and exit codes synthesized by
// transports.
const (
	CodeProtocolViolation = 400
	CodeNotFound          = 404
	CodeNotImplemented    = 501

	ExitTimeout  = 124
	ExitNotFound = 255
)

const (
	MsgUnsupportedTransport = "Unsupported transport"
	MsgEmptyResponse        = "Empty response from plugin"
	MsgMalformedOutput      = "Malformed output from plugin"
	MsgMissingFields        = "Missing required protocol fields"
	MsgInvalidResult        = "Invalid payload result field"
	MsgPluginFailure        = "Plugin signaled failure"
)

// RawResult is what a transport observed. It is consumed by normalization
// and never leaves the mediator.
type RawResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// StructuredError is the uniform error shape of every failed result.
// Details holds the plugin's error data exactly as it was emitted.
type StructuredError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func NewError(code int, message string) *StructuredError {
	return &StructuredError{Code: code, Message: message}
}

func (e *StructuredError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Document is a decoded plugin reply.
type Document = map[string]any

// Result is the normalized outcome of a single mediated invocation.
// Status is success exactly when Error is nil.
type Result struct {
	Status       Status           `json:"status"`
	Action       string           `json:"action"`
	Node         string           `json:"node"`
	Transport    string           `json:"transport"`
	PluginOutput Document         `json:"plugin_output"`
	Error        *StructuredError `json:"error"`
}

var validate = validator.New()

// IsReplyResult reports whether v is an allowed payload.result value.
func IsReplyResult(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return validate.Var(s, "required,oneof=success error dry_run") == nil
}
