// Package executor runs plugin programs, locally or on a remote node, and
// reports their raw outcome.
package executor

import (
	"context"
	"strings"

	"github.com/andrej220/rune/internal/protocol"
)

// Command is a single plugin invocation.
type Command struct {
	Node    string
	Program string
	Stdin   []byte
}

// Executor runs a command and reports what happened. Implementations do not
// return errors: failures are folded into the exit code, with 124 for an
// expired context and 255 when the program or host cannot be reached.
type Executor interface {
	Run(ctx context.Context, cmd Command) protocol.RawResult
}

func joinCommand(interpreter, program string) string {
	if interpreter == "" {
		return shellEscape(program)
	}
	return shellEscape(interpreter) + " " + shellEscape(program)
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
