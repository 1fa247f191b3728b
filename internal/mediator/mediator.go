// Package mediator invokes a plugin through the selected transport and turns
// whatever came back into a normalized protocol.Result.
package mediator

import (
	"context"
	"time"

	"github.com/andrej220/rune/internal/protocol"
	"github.com/andrej220/rune/internal/transport"
	"github.com/andrej220/rune/pkg/lg"
)

type Mediator struct {
	transports transport.Table
	logger     lg.Logger
}

func New(transports transport.Table, logger lg.Logger) *Mediator {
	if logger == nil {
		logger = lg.Discard
	}
	return &Mediator{transports: transports, logger: logger}
}

// Execute runs action's plugin on node. Every outcome, including an unknown
// transport, is reported as a Result; nothing is returned as an error.
func (m *Mediator) Execute(ctx context.Context, action string, id transport.ID, node, pluginLocator string, env protocol.Envelope) protocol.Result {
	logger := m.logger.With(
		lg.String("action", action),
		lg.String("node", node),
		lg.String("transport", string(id)),
		lg.String("message_id", env.MessageMetadata.MessageID.String()),
	)
	base := protocol.Result{Action: action, Node: node, Transport: string(id)}

	tr, ok := m.transports.Lookup(id)
	if !ok {
		logger.Warn("unsupported transport")
		return violation(base, protocol.MsgUnsupportedTransport)
	}

	start := time.Now()
	raw := tr.Execute(ctx, node, pluginLocator, env)
	logger.Debug("transport returned",
		lg.Int("exit_code", raw.ExitCode),
		lg.Duration("elapsed", time.Since(start)),
		lg.Int("stdout_bytes", len(raw.Stdout)),
		lg.String("stderr", raw.Stderr))

	res := normalize(base, raw)
	if res.Status == protocol.StatusSuccess {
		logger.Info("plugin succeeded")
	} else {
		logger.Warn("plugin failed",
			lg.Int("exit_code", raw.ExitCode),
			lg.Int("code", res.Error.Code),
			lg.String("message", res.Error.Message))
	}
	return res
}

func violation(base protocol.Result, message string) protocol.Result {
	base.Status = protocol.StatusFailed
	base.PluginOutput = nil
	base.Error = protocol.NewError(protocol.CodeProtocolViolation, message)
	return base
}
