package ports

import "context"

// Tracer creates spans around cache session phases.
//
//go:generate mockgen -source=tracer.go -destination=mocks/mock_tracer.go -package=mocks
type Tracer interface {
	// Start opens a span. The returned context carries it for nesting.
	Start(ctx context.Context, name string) (context.Context, Span)
	// Shutdown flushes and stops the tracer.
	Shutdown(ctx context.Context) error
}

// Span is a single traced phase.
type Span interface {
	End()
	RecordError(err error)
	SetAttribute(key string, value any)
}
