package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/rune/internal/executor"
	"github.com/andrej220/rune/internal/protocol"
)

type recordingExecutor struct {
	cmd         executor.Command
	hadDeadline bool
	result      protocol.RawResult
}

func (r *recordingExecutor) Run(ctx context.Context, cmd executor.Command) protocol.RawResult {
	r.cmd = cmd
	_, r.hadDeadline = ctx.Deadline()
	return r.result
}

func testEnvelope() protocol.Envelope {
	return protocol.NewBuilder().Build(context.Background(), "noop", "node-1", map[string]any{"key": "value"})
}

func TestDirectSendsEnvelopeOnStdin(t *testing.T) {
	exec := &recordingExecutor{result: protocol.RawResult{Stdout: "{}", ExitCode: 0}}
	env := testEnvelope()

	res := NewDirect(exec, time.Second).Execute(context.Background(), "node-1", "/plugins/noop.sh", env)

	assert.Equal(t, protocol.RawResult{Stdout: "{}", ExitCode: 0}, res)
	assert.True(t, exec.hadDeadline)
	assert.Equal(t, "node-1", exec.cmd.Node)
	assert.Equal(t, "/plugins/noop.sh", exec.cmd.Program)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(exec.cmd.Stdin, &sent))
	payload := sent["payload"].(map[string]any)
	assert.Equal(t, protocol.SchemaVersion, payload["schema_version"])
	assert.Equal(t, map[string]any{"key": "value"}, payload["data"].(map[string]any)["input_parameters"])
	assert.Equal(t, "node-1", sent["routing"].(map[string]any)["target_node"])
}

func TestNewDirectDefaultsTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewDirect(&recordingExecutor{}, 0).timeout)
}

func TestSessionReplies(t *testing.T) {
	tests := []struct {
		name    string
		creds   CredentialsProvider
		message string
	}{
		{name: "no credentials", creds: StaticCredentials(false), message: msgNoCredentials},
		{name: "credentials present", creds: StaticCredentials(true), message: msgNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnvelope()
			res := NewSession(tt.creds).Execute(context.Background(), "node-1", "/plugins/noop.sh", env)
			assert.Equal(t, 1, res.ExitCode)

			var reply protocol.Reply
			require.NoError(t, json.Unmarshal([]byte(res.Stdout), &reply))
			require.NotNil(t, reply.Error)
			assert.Equal(t, protocol.CodeNotImplemented, reply.Error.Code)
			assert.Equal(t, tt.message, reply.Error.Message)
			assert.Equal(t, protocol.ResultError, reply.Payload.Result)
			assert.Equal(t, env.MessageMetadata.MessageID, reply.MessageMetadata.MessageID)
			assert.Equal(t, env.Observability, reply.Observability)
		})
	}
}

func TestEnvCredentials(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    bool
	}{
		{"empty environment", map[string]string{}, false},
		{"unrelated variables", map[string]string{"HOME": "/root", "AWS_REGION": "eu-west-1"}, false},
		{"access key", map[string]string{"AWS_ACCESS_KEY_ID": "AKIA"}, true},
		{"secret key", map[string]string{"AWS_SECRET_ACCESS_KEY": "s3cr3t"}, true},
		{"session token", map[string]string{"AWS_SESSION_TOKEN": "tok"}, true},
		{"set but empty", map[string]string{"AWS_ACCESS_KEY_ID": ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnvCredentials{Environ: tt.environ}.HasCredentials())
		})
	}
}

func TestTable(t *testing.T) {
	table := NewTable(NewDirect(&recordingExecutor{}, 0), NewSession(nil))

	_, ok := table.Lookup(SSH)
	assert.True(t, ok)
	_, ok = table.Lookup(SSM)
	assert.True(t, ok)
	_, ok = table.Lookup("bad")
	assert.False(t, ok)
	assert.Equal(t, []ID{SSH, SSM}, table.IDs())
}
