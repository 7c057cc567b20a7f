package telemetry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.trai.ch/stash/internal/adapters/telemetry"
	"go.trai.ch/stash/internal/core/ports/mocks"
)

func newTracer(t *testing.T) *telemetry.OTelTracer {
	t.Helper()
	ctrl := gomock.NewController(t)
	lg := mocks.NewMockLogger(ctrl)
	lg.EXPECT().Debug(gomock.Any()).AnyTimes()
	lg.EXPECT().Warn(gomock.Any()).AnyTimes()
	return telemetry.NewTracer("stash-test", lg)
}

func TestTracer_StartReturnsSpan(t *testing.T) {
	tr := newTracer(t)
	defer func() { require.NoError(t, tr.Shutdown(t.Context())) }()

	ctx, span := tr.Start(t.Context(), "validate")
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	span.SetAttribute("cache", "default")
	span.SetAttribute("entries", 3)
	span.SetAttribute("dirty", true)
	span.SetAttribute("keys", []string{"build", "lint"})
	span.End()
}

func TestTracer_NestedSpans(t *testing.T) {
	tr := newTracer(t)
	defer func() { require.NoError(t, tr.Shutdown(t.Context())) }()

	ctx, outer := tr.Start(t.Context(), "session")
	_, inner := tr.Start(ctx, "flush")

	inner.End()
	outer.End()
}

func TestTracer_RecordError(t *testing.T) {
	tr := newTracer(t)
	defer func() { require.NoError(t, tr.Shutdown(t.Context())) }()

	_, span := tr.Start(t.Context(), "hydrate")
	span.RecordError(errors.New("pack file corrupt"))
	span.End()
}

func TestNoopTracer(t *testing.T) {
	tr := telemetry.NewNoop()

	ctx, span := tr.Start(t.Context(), "anything")
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	span.SetAttribute("key", "value")
	span.RecordError(errors.New("ignored"))
	span.End()

	assert.NoError(t, tr.Shutdown(t.Context()))
}
