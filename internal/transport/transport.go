// Package transport provides the interchangeable mechanisms used to reach a
// node and invoke a plugin there.
package transport

import (
	"context"
	"sort"

	"github.com/andrej220/rune/internal/protocol"
)

type ID string

const (
	// SSH runs the plugin directly: locally, or on the node over SSH when
	// remote execution is configured.
	SSH ID = "ssh"
	// SSM is the remote-session transport. It is not implemented and always
	// answers with a 501 failure reply.
	SSM ID = "ssm"
)

// Transport invokes a plugin. It never fails across this boundary: every
// problem is reported through the returned RawResult.
type Transport interface {
	Execute(ctx context.Context, node, pluginLocator string, env protocol.Envelope) protocol.RawResult
}

// Table is the closed set of transports a mediator may select from.
type Table map[ID]Transport

// NewTable wires the two supported transports.
func NewTable(direct, session Transport) Table {
	return Table{SSH: direct, SSM: session}
}

func (t Table) Lookup(id ID) (Transport, bool) {
	tr, ok := t[id]
	return tr, ok && tr != nil
}

// IDs returns the supported identifiers in sorted order.
func (t Table) IDs() []ID {
	ids := make([]ID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
