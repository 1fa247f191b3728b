// Package orchestrator is the entry point front ends call to run an action.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/andrej220/rune/internal/protocol"
	"github.com/andrej220/rune/internal/registry"
	"github.com/andrej220/rune/internal/transport"
	"github.com/andrej220/rune/pkg/lg"
)

// Actions is the read-only view of the action registry.
type Actions interface {
	Lookup(name string) (registry.ActionMetadata, bool)
	List() []registry.ActionMetadata
}

// Executor is the mediation step. *mediator.Mediator implements it.
type Executor interface {
	Execute(ctx context.Context, action string, id transport.ID, node, pluginLocator string, env protocol.Envelope) protocol.Result
}

type Request struct {
	Action        string         `json:"action" validate:"required"`
	Node          string         `json:"node" validate:"required"`
	Transport     transport.ID   `json:"transport"`
	DryRun        bool           `json:"dry_run"`
	Params        map[string]any `json:"params"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// Result is the stable shape returned to every front end.
type Result struct {
	Status          protocol.Status           `json:"status"`
	Action          string                    `json:"action"`
	Node            string                    `json:"node"`
	Transport       transport.ID              `json:"transport"`
	MessageMetadata protocol.MessageMetadata  `json:"message_metadata"`
	Observability   protocol.Observability    `json:"observability"`
	PluginOutput    protocol.Document         `json:"plugin_output"`
	Error           *protocol.StructuredError `json:"error"`
}

type Orchestrator struct {
	actions  Actions
	mediator Executor
	builder  *protocol.Builder
	logger   lg.Logger
}

func New(actions Actions, mediator Executor, builder *protocol.Builder, logger lg.Logger) *Orchestrator {
	if builder == nil {
		builder = protocol.NewBuilder()
	}
	if logger == nil {
		logger = lg.Discard
	}
	return &Orchestrator{actions: actions, mediator: mediator, builder: builder, logger: logger}
}

// ListActions returns the registered actions ordered by name.
func (o *Orchestrator) ListActions() []registry.ActionMetadata {
	return o.actions.List()
}

// Run resolves and executes one action. The result status is always one of
// success, failed or dry_run.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	if req.CorrelationID != "" {
		ctx = protocol.WithCorrelationID(ctx, req.CorrelationID)
	}
	logger := o.logger.With(
		lg.String("action", req.Action),
		lg.String("node", req.Node),
		lg.String("transport", string(req.Transport)),
	)

	meta, ok := o.actions.Lookup(req.Action)
	if !ok {
		logger.Warn("unknown action")
		return Result{
			Status:          protocol.StatusFailed,
			Action:          req.Action,
			Node:            req.Node,
			Transport:       req.Transport,
			MessageMetadata: o.builder.Metadata(ctx),
			Observability:   o.builder.Observability(ctx),
			Error:           protocol.NewError(protocol.CodeNotFound, fmt.Sprintf("Unknown action '%s'", req.Action)),
		}
	}

	env := o.builder.Build(ctx, req.Action, req.Node, req.Params)
	res := Result{
		Action:          req.Action,
		Node:            req.Node,
		Transport:       req.Transport,
		MessageMetadata: env.MessageMetadata,
		Observability:   env.Observability,
	}

	if req.DryRun {
		logger.Info("dry run", lg.String("plugin", meta.PluginPath))
		res.Status = protocol.StatusDryRun
		res.PluginOutput = dryRunOutput(env)
		return res
	}

	mres := o.mediator.Execute(ctx, req.Action, req.Transport, req.Node, meta.PluginPath, env)
	res.Status = protocol.StatusFailed
	if mres.Status == protocol.StatusSuccess {
		res.Status = protocol.StatusSuccess
	}
	res.PluginOutput = mres.PluginOutput
	res.Error = mres.Error
	if res.Status == protocol.StatusFailed && res.Error == nil {
		res.Error = protocol.NewError(1, protocol.MsgPluginFailure)
	}
	return res
}

// dryRunOutput echoes what a real invocation would have sent, shaped like a
// plugin reply.
func dryRunOutput(env protocol.Envelope) protocol.Document {
	return protocol.Document{
		"message_metadata": env.MessageMetadata,
		"observability":    env.Observability,
		"payload": map[string]any{
			"result": protocol.ResultDryRun,
			"output_data": map[string]any{
				"action":           env.Routing.EventType,
				"node":             env.Routing.TargetNode,
				"input_parameters": env.Payload.Data.InputParameters,
			},
		},
		"error": nil,
	}
}
