package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andrej220/rune/internal/executor"
	"github.com/andrej220/rune/internal/protocol"
)

const DefaultTimeout = 60 * time.Second

// Direct serializes the envelope onto the plugin's stdin and runs it through
// an executor under a fixed timeout.
type Direct struct {
	exec    executor.Executor
	timeout time.Duration
}

func NewDirect(exec executor.Executor, timeout time.Duration) *Direct {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Direct{exec: exec, timeout: timeout}
}

func (d *Direct) Execute(ctx context.Context, node, pluginLocator string, env protocol.Envelope) protocol.RawResult {
	input, err := json.Marshal(env)
	if err != nil {
		return protocol.RawResult{Stderr: fmt.Sprintf("encode envelope: %v", err), ExitCode: 1}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.exec.Run(ctx, executor.Command{
		Node:    node,
		Program: pluginLocator,
		Stdin:   input,
	})
}
