package transport

import (
	"context"
	"encoding/json"

	"github.com/andrej220/rune/internal/protocol"
)

const (
	msgNoCredentials  = "credentials not configured"
	msgNotImplemented = "transport not yet implemented"
)

// Session is the remote-session transport. Its wire protocol is undefined,
// so it answers every call with a well-formed failure reply, which the
// mediator normalizes like any other plugin failure.
type Session struct {
	creds CredentialsProvider
}

func NewSession(creds CredentialsProvider) *Session {
	if creds == nil {
		creds = StaticCredentials(false)
	}
	return &Session{creds: creds}
}

func (s *Session) Execute(_ context.Context, _, _ string, env protocol.Envelope) protocol.RawResult {
	message, stderr := msgNotImplemented, "remote session transport not implemented"
	if !s.creds.HasCredentials() {
		message, stderr = msgNoCredentials, "missing credentials"
	}

	reply := protocol.Reply{
		MessageMetadata: env.MessageMetadata,
		Observability:   env.Observability,
		Payload:         protocol.ReplyPayload{Result: protocol.ResultError, OutputData: map[string]any{}},
		Error:           &protocol.ReplyError{Code: protocol.CodeNotImplemented, Message: message},
	}
	out, err := json.Marshal(reply)
	if err != nil {
		return protocol.RawResult{Stderr: err.Error(), ExitCode: 1}
	}
	return protocol.RawResult{Stdout: string(out), Stderr: stderr, ExitCode: 1}
}
