package protocol

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}
type observabilityKey struct{}

// WithCorrelationID stores a caller supplied correlation id that the Builder
// copies into message metadata.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// WithObservability propagates tracing identifiers explicitly instead of
// generating fresh ones.
func WithObservability(ctx context.Context, obs Observability) context.Context {
	return context.WithValue(ctx, observabilityKey{}, obs)
}

// Builder constructs outbound envelopes. It performs no I/O.
type Builder struct {
	now    func() time.Time
	newID  func() uuid.UUID
	source string
}

type BuilderOption func(*Builder)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithIDGenerator overrides uuid generation, mainly for tests.
func WithIDGenerator(gen func() uuid.UUID) BuilderOption {
	return func(b *Builder) { b.newID = gen }
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		now:    time.Now,
		newID:  uuid.New,
		source: SourceOrchestrator,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the envelope for one invocation of action on node. params is
// embedded as given; a nil map is sent as an empty object.
func (b *Builder) Build(ctx context.Context, action, node string, params map[string]any) Envelope {
	if params == nil {
		params = map[string]any{}
	}
	return Envelope{
		MessageMetadata: b.Metadata(ctx),
		Routing: Routing{
			EventType:    action,
			SourceModule: b.source,
			TargetNode:   node,
		},
		Payload: RequestPayload{
			SchemaVersion: SchemaVersion,
			ContentType:   ContentTypeJSON,
			Data:          RequestData{InputParameters: params},
		},
		Observability: b.Observability(ctx),
	}
}

// Metadata returns fresh message metadata; message_id is never reused.
func (b *Builder) Metadata(ctx context.Context) MessageMetadata {
	md := MessageMetadata{
		Version:   Version,
		MessageID: b.newID(),
		CreatedAt: b.now().UTC(),
	}
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		md.CorrelationID = id
	}
	return md
}

// Observability returns the tracing identifiers for a call. Explicitly
// propagated identifiers win; otherwise an active OpenTelemetry span donates
// its trace id (both are 16 bytes) and the span id is always fresh.
func (b *Builder) Observability(ctx context.Context) Observability {
	if obs, ok := ctx.Value(observabilityKey{}).(Observability); ok {
		return obs
	}
	obs := Observability{TraceID: b.newID(), SpanID: b.newID()}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		obs.TraceID = uuid.UUID(sc.TraceID())
	}
	return obs
}
