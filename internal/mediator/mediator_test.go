package mediator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/rune/internal/protocol"
	"github.com/andrej220/rune/internal/transport"
	"github.com/andrej220/rune/pkg/lg"
)

type fakeTransport struct {
	calls int
	raw   protocol.RawResult
}

func (f *fakeTransport) Execute(context.Context, string, string, protocol.Envelope) protocol.RawResult {
	f.calls++
	return f.raw
}

const (
	metadataJSON      = `"message_metadata":{"version":"1.0","message_id":"1","created_at":"now"}`
	observabilityJSON = `"observability":{"trace_id":"t","span_id":"s"}`
)

func reply(payload, errObj string) string {
	return `{` + metadataJSON + `,` + observabilityJSON + `,"payload":` + payload + `,"error":` + errObj + `}`
}

func run(t *testing.T, id transport.ID, raw protocol.RawResult) (protocol.Result, *fakeTransport, *fakeTransport) {
	t.Helper()
	direct := &fakeTransport{raw: raw}
	session := &fakeTransport{raw: raw}
	m := New(transport.NewTable(direct, session), lg.Discard)
	env := protocol.NewBuilder().Build(context.Background(), "noop", "n1", nil)
	return m.Execute(context.Background(), "noop", id, "n1", "/plugins/noop.sh", env), direct, session
}

func TestSuccess(t *testing.T) {
	res, direct, _ := run(t, transport.SSH, protocol.RawResult{
		Stdout:   reply(`{"result":"success","output_data":{"value":1}}`, `null`),
		ExitCode: 0,
	})

	assert.Equal(t, protocol.StatusSuccess, res.Status)
	assert.Nil(t, res.Error)
	assert.Equal(t, 1, direct.calls)
	assert.Equal(t, "noop", res.Action)
	assert.Equal(t, "n1", res.Node)
	assert.Equal(t, "ssh", res.Transport)
	output := res.PluginOutput["payload"].(map[string]any)["output_data"].(map[string]any)
	assert.Equal(t, json.Number("1"), output["value"])
}

func TestSessionTransportIsSelected(t *testing.T) {
	res, direct, session := run(t, transport.SSM, protocol.RawResult{
		Stdout: reply(`{"result":"success","output_data":{"via":"ssm"}}`, `null`),
	})

	assert.Equal(t, protocol.StatusSuccess, res.Status)
	assert.Equal(t, 0, direct.calls)
	assert.Equal(t, 1, session.calls)
	assert.Equal(t, "ssm", res.Transport)
}

func TestUnsupportedTransportNeverInvokes(t *testing.T) {
	for _, id := range []transport.ID{"bad", "", "SSH", "local"} {
		t.Run(string(id), func(t *testing.T) {
			res, direct, session := run(t, id, protocol.RawResult{})

			assert.Equal(t, protocol.StatusFailed, res.Status)
			require.NotNil(t, res.Error)
			assert.Equal(t, protocol.CodeProtocolViolation, res.Error.Code)
			assert.Equal(t, protocol.MsgUnsupportedTransport, res.Error.Message)
			assert.Zero(t, direct.calls+session.calls)
			assert.Nil(t, res.PluginOutput)
		})
	}
}

func TestProtocolViolations(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		message string
	}{
		{"empty", "", protocol.MsgEmptyResponse},
		{"whitespace only", " \n\t ", protocol.MsgEmptyResponse},
		{"not json", "not-json", protocol.MsgMalformedOutput},
		{"truncated", `{"payload":`, protocol.MsgMalformedOutput},
		{"trailing data", reply(`{"result":"success"}`, `null`) + ` {}`, protocol.MsgMalformedOutput},
		{"top level array", `[1,2]`, protocol.MsgMissingFields},
		{"only payload", `{"payload":{"result":"success"}}`, protocol.MsgMissingFields},
		{"metadata not object", `{"message_metadata":"x",` + observabilityJSON + `,"payload":{"result":"success"}}`, protocol.MsgMissingFields},
		{"observability null", `{` + metadataJSON + `,"observability":null,"payload":{"result":"success"}}`, protocol.MsgMissingFields},
		{"payload list", `{` + metadataJSON + `,` + observabilityJSON + `,"payload":[]}`, protocol.MsgMissingFields},
		{"unknown result", reply(`{"result":"unknown"}`, `null`), protocol.MsgInvalidResult},
		{"missing result", reply(`{"output_data":{}}`, `null`), protocol.MsgInvalidResult},
		{"numeric result", reply(`{"result":1}`, `null`), protocol.MsgInvalidResult},
		{"timeout with empty object", "{}", protocol.MsgMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, _ := run(t, transport.SSH, protocol.RawResult{Stdout: tt.stdout})

			assert.Equal(t, protocol.StatusFailed, res.Status)
			require.NotNil(t, res.Error)
			assert.Equal(t, protocol.CodeProtocolViolation, res.Error.Code)
			assert.Equal(t, tt.message, res.Error.Message)
			assert.Nil(t, res.PluginOutput)
		})
	}
}

func TestClassificationRequiresBothSignals(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		result   string
		want     protocol.Status
	}{
		{"zero exit and success", 0, "success", protocol.StatusSuccess},
		{"non-zero exit and success", 1, "success", protocol.StatusFailed},
		{"zero exit and error", 0, "error", protocol.StatusFailed},
		{"zero exit and dry_run", 0, "dry_run", protocol.StatusFailed},
		{"timeout and success", protocol.ExitTimeout, "success", protocol.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, _ := run(t, transport.SSH, protocol.RawResult{
				Stdout:   reply(`{"result":"`+tt.result+`","output_data":{}}`, `null`),
				ExitCode: tt.exitCode,
			})

			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.want == protocol.StatusSuccess, res.Error == nil)
			assert.NotNil(t, res.PluginOutput)
		})
	}
}

func TestPluginErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		errObj   string
		exitCode int
		code     int
		message  string
		details  string
	}{
		{"plugin code and message", `{"code":123,"message":"boom"}`, 1, 123, "boom", ""},
		{"no error object", `null`, 7, 7, protocol.MsgPluginFailure, ""},
		{"no error object zero exit", `null`, 0, 1, protocol.MsgPluginFailure, ""},
		{"error is a string", `"bad"`, 2, 2, protocol.MsgPluginFailure, ""},
		{"missing code", `{"message":"boom"}`, 9, 9, "boom", ""},
		{"missing code zero exit", `{"message":"boom"}`, 0, 1, "boom", ""},
		{"missing message", `{"code":42}`, 1, 42, protocol.MsgPluginFailure, ""},
		{"string code", `{"code":"17","message":"m"}`, 1, 17, "m", ""},
		{"garbage code", `{"code":"abc","message":"m"}`, 3, 3, "m", ""},
		{"float code", `{"code":12.0,"message":"m"}`, 1, 12, "m", ""},
		{"non-string message", `{"code":5,"message":{"k":1}}`, 1, 5, `{"k":1}`, ""},
		{"data object", `{"code":5,"message":"m","data":{"field": "value", "n": 1.50}}`, 1, 5, "m", `{"field": "value", "n": 1.50}`},
		{"data list", `{"code":5,"message":"m","data":[1, 2]}`, 1, 5, "m", `[1, 2]`},
		{"data null", `{"code":5,"message":"m","data":null}`, 1, 5, "m", ""},
		{"code above int range", `{"code":1e300,"message":"m"}`, 4, 4, "m", ""},
		{"code below int range", `{"code":-1e300,"message":"m"}`, 0, 1, "m", ""},
		{"integer code overflowing int64", `{"code":99999999999999999999,"message":"m"}`, 6, 6, "m", ""},
		{"upper-case key is not the error object", `null,"ERROR":{"code":77,"message":"wrong key","data":{"x":1}}`, 3, 3, protocol.MsgPluginFailure, ""},
		{"title-case key does not shadow error", `{"code":5,"message":"m"},"Error":{"code":77,"message":"wrong key"}`, 1, 5, "m", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, _ := run(t, transport.SSH, protocol.RawResult{
				Stdout:   reply(`{"result":"error","output_data":{}}`, tt.errObj),
				ExitCode: tt.exitCode,
			})

			assert.Equal(t, protocol.StatusFailed, res.Status)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.Equal(t, tt.message, res.Error.Message)
			if tt.details == "" {
				assert.Nil(t, res.Error.Details)
			} else {
				assert.Equal(t, tt.details, string(res.Error.Details))
			}
			assert.NotNil(t, res.PluginOutput, "failed results keep the reply for diagnostics")
		})
	}
}

func TestSessionStubNormalizesTo501(t *testing.T) {
	for _, creds := range []bool{false, true} {
		env := protocol.NewBuilder().Build(context.Background(), "noop", "n1", nil)
		m := New(transport.NewTable(&fakeTransport{}, transport.NewSession(transport.StaticCredentials(creds))), lg.Discard)

		res := m.Execute(context.Background(), "noop", transport.SSM, "n1", "/plugins/noop.sh", env)

		assert.Equal(t, protocol.StatusFailed, res.Status)
		require.NotNil(t, res.Error)
		assert.Equal(t, protocol.CodeNotImplemented, res.Error.Code)
	}
}

func TestResultJSONShape(t *testing.T) {
	res, _, _ := run(t, transport.SSH, protocol.RawResult{
		Stdout:   reply(`{"result":"error","output_data":{}}`, `{"code":5,"message":"m","data":{"a":1}}`),
		ExitCode: 1,
	})

	out, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "failed", decoded["status"])
	assert.Equal(t, map[string]any{"code": float64(5), "message": "m", "details": map[string]any{"a": float64(1)}}, decoded["error"])
}
