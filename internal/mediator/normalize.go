package mediator

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/andrej220/rune/internal/protocol"
)

var requiredSections = []string{"message_metadata", "observability", "payload"}

// normalize classifies a raw transport outcome. The checks run in a fixed
// order and the first failing one decides the result.
func normalize(base protocol.Result, raw protocol.RawResult) protocol.Result {
	out := strings.TrimSpace(raw.Stdout)
	if out == "" {
		return violation(base, protocol.MsgEmptyResponse)
	}

	parsed, err := decode(out)
	if err != nil {
		return violation(base, protocol.MsgMalformedOutput)
	}

	doc, ok := parsed.(map[string]any)
	if !ok {
		return violation(base, protocol.MsgMissingFields)
	}
	for _, key := range requiredSections {
		if _, ok := doc[key].(map[string]any); !ok {
			return violation(base, protocol.MsgMissingFields)
		}
	}

	payload := doc["payload"].(map[string]any)
	result, ok := payload["result"]
	if !ok || !protocol.IsReplyResult(result) {
		return violation(base, protocol.MsgInvalidResult)
	}

	base.PluginOutput = doc
	// Both signals have to agree; a zero exit with an error result, or a
	// success result with a non-zero exit, is a failure.
	if raw.ExitCode == 0 && result == protocol.ResultSuccess {
		base.Status = protocol.StatusSuccess
		base.Error = nil
		return base
	}

	base.Status = protocol.StatusFailed
	base.Error = pluginError(out, raw.ExitCode)
	return base
}

// decode parses exactly one JSON value, keeping numbers as json.Number so
// that plugin output is not reshaped.
func decode(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after reply")
	}
	return v, nil
}

// pluginError derives the failure from the reply's error object, falling back
// to the exit code. The object's data is copied verbatim into Details.
func pluginError(out string, exitCode int) *protocol.StructuredError {
	fallback := exitCode
	if fallback == 0 {
		fallback = 1
	}
	structured := protocol.NewError(fallback, protocol.MsgPluginFailure)

	// Only the exact "error" key counts.
	var reply map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &reply); err != nil {
		return structured
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(reply["error"], &fields); err != nil || fields == nil {
		return structured
	}

	if code, ok := intField(fields["code"]); ok {
		structured.Code = code
	}
	if msg, ok := textField(fields["message"]); ok {
		structured.Message = msg
	}
	if data := fields["data"]; len(data) > 0 && !isNull(data) {
		structured.Details = bytes.Clone(data)
	}
	return structured
}

func intField(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || isNull(raw) {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return int(i), true
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || f < math.MinInt || f >= math.MaxInt {
		return 0, false
	}
	return int(f), true
}

func textField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
