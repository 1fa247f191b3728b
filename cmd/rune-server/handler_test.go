package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/rune/internal/orchestrator"
	"github.com/andrej220/rune/internal/protocol"
	"github.com/andrej220/rune/internal/registry"
	"github.com/andrej220/rune/internal/transport"
	"github.com/andrej220/rune/pkg/lg"
)

type fakeRunner struct {
	requests []orchestrator.Request
}

func (f *fakeRunner) Run(_ context.Context, req orchestrator.Request) orchestrator.Result {
	f.requests = append(f.requests, req)
	return orchestrator.Result{Status: protocol.StatusDryRun, Action: req.Action, Node: req.Node, Transport: req.Transport}
}

func (f *fakeRunner) ListActions() []registry.ActionMetadata {
	return []registry.ActionMetadata{{Name: "noop", Description: "No-op.", PluginPath: "plugins/noop.sh"}}
}

func serve(t *testing.T, runner *fakeRunner, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	h := &handler{runner: runner, defaultTransport: transport.SSH, logger: lg.Discard}
	rec := httptest.NewRecorder()
	newMux(h).ServeHTTP(rec, req)
	return rec
}

func TestRunEndpoint(t *testing.T) {
	runner := &fakeRunner{}
	body := `{"action":"noop","node":"test-node","dry_run":true,"params":{"key":"value"},"correlation_id":"req-7"}`

	rec := serve(t, runner, httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, transport.SSH, req.Transport)
	assert.True(t, req.DryRun)
	assert.Equal(t, map[string]any{"key": "value"}, req.Params)
	assert.Equal(t, "req-7", req.CorrelationID)
	assert.Equal(t, "req-7", rec.Header().Get("X-Correlation-ID"))

	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "dry_run", res["status"])
}

func TestRunEndpointCorrelationFromHeader(t *testing.T) {
	runner := &fakeRunner{}
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"action":"noop","node":"n","transport":"ssm"}`))
	req.Header.Set("X-Correlation-ID", "hdr-1")

	serve(t, runner, req)

	require.Len(t, runner.requests, 1)
	assert.Equal(t, "hdr-1", runner.requests[0].CorrelationID)
	assert.Equal(t, transport.SSM, runner.requests[0].Transport)
}

func TestRunEndpointGeneratesCorrelationID(t *testing.T) {
	runner := &fakeRunner{}

	rec := serve(t, runner, httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"action":"noop","node":"n"}`)))

	require.Len(t, runner.requests, 1)
	assert.NotEmpty(t, runner.requests[0].CorrelationID)
	assert.Equal(t, runner.requests[0].CorrelationID, rec.Header().Get("X-Correlation-ID"))
}

func TestRunEndpointRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing node", `{"action":"noop"}`},
		{"missing action", `{"node":"n"}`},
		{"not json", `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := serve(t, runner, httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, runner.requests)
		})
	}
}

func TestRunEndpointMethod(t *testing.T) {
	rec := serve(t, &fakeRunner{}, httptest.NewRequest(http.MethodGet, "/run", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestActionsEndpoint(t *testing.T) {
	rec := serve(t, &fakeRunner{}, httptest.NewRequest(http.MethodGet, "/actions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"actions":[{"name":"noop","description":"No-op.","plugin_path":"plugins/noop.sh"}]}`, rec.Body.String())
}
