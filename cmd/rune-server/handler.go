package main

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/andrej220/rune/internal/cli"
	"github.com/andrej220/rune/internal/orchestrator"
	"github.com/andrej220/rune/internal/serverutil"
	"github.com/andrej220/rune/internal/transport"
	"github.com/andrej220/rune/pkg/lg"
)

type runRequest struct {
	Action        string         `json:"action" validate:"required"`
	Node          string         `json:"node" validate:"required"`
	Transport     string         `json:"transport"`
	DryRun        bool           `json:"dry_run"`
	Params        map[string]any `json:"params"`
	CorrelationID string         `json:"correlation_id" validate:"omitempty,max=128"`
}

type handler struct {
	runner           cli.Runner
	defaultTransport transport.ID
	logger           lg.Logger
}

func newMux(h *handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /run", serverutil.NewValidationHandler[runRequest](http.HandlerFunc(h.run)))
	mux.HandleFunc("GET /actions", h.actions)
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		serverutil.WriteJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// run always answers 200 with the result document; the outcome is in its
// status field.
func (h *handler) run(rw http.ResponseWriter, r *http.Request) {
	req, ok := serverutil.RequestFromContext[runRequest](r.Context())
	if !ok {
		serverutil.WriteError(rw, http.StatusInternalServerError, "request not decoded")
		return
	}

	id := h.defaultTransport
	if req.Transport != "" {
		id = transport.ID(req.Transport)
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = r.Header.Get("X-Correlation-ID")
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	res := h.runner.Run(r.Context(), orchestrator.Request{
		Action:        req.Action,
		Node:          req.Node,
		Transport:     id,
		DryRun:        req.DryRun,
		Params:        req.Params,
		CorrelationID: correlationID,
	})
	h.logger.Info("action finished",
		lg.String("action", req.Action),
		lg.String("node", req.Node),
		lg.String("status", string(res.Status)),
		lg.String("correlation_id", correlationID),
	)
	rw.Header().Set("X-Correlation-ID", correlationID)
	serverutil.WriteJSON(rw, http.StatusOK, res)
}

func (h *handler) actions(rw http.ResponseWriter, r *http.Request) {
	serverutil.WriteJSON(rw, http.StatusOK, map[string]any{"actions": h.runner.ListActions()})
}
