package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/andrej220/rune/internal/protocol"
)

const DefaultWaitDelay = 2 * time.Second

// Local runs plugins on this host. With an Interpreter set the plugin is
// passed to it as a script ("bash plugin.sh"); otherwise it is executed
// directly.
type Local struct {
	Interpreter string
	WaitDelay   time.Duration
}

func (l Local) Run(ctx context.Context, cmd Command) protocol.RawResult {
	if _, err := os.Stat(cmd.Program); err != nil {
		return protocol.RawResult{
			Stderr:   fmt.Sprintf("plugin not found: %v", err),
			ExitCode: protocol.ExitNotFound,
		}
	}

	name, args := cmd.Program, []string(nil)
	if l.Interpreter != "" {
		name, args = l.Interpreter, []string{cmd.Program}
	}

	c := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	c.Stdin = bytes.NewReader(cmd.Stdin)
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.WaitDelay = l.WaitDelay
	if c.WaitDelay <= 0 {
		c.WaitDelay = DefaultWaitDelay
	}

	err := c.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return protocol.RawResult{
			Stderr:   fmt.Sprintf("plugin timed out: %v\n%s", ctxErr, stderr.String()),
			ExitCode: protocol.ExitTimeout,
		}
	}
	return protocol.RawResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String() + errText(err),
		ExitCode: exitCode(err),
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
		return 1
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
		return protocol.ExitNotFound
	}
	return 1
}

// errText describes failures that did not come from the plugin itself.
func errText(err error) string {
	var exitErr *exec.ExitError
	if err == nil || errors.As(err, &exitErr) {
		return ""
	}
	return err.Error()
}
