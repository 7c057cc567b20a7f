package logger_test

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stash/internal/adapters/logger"
	"go.trai.ch/zerr"
)

// newTestLogger creates a logger with an injected bytes.Buffer for isolated testing.
// It also sets NO_COLOR=1 to ensure deterministic output without ANSI escape codes.
func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	return lg, buf
}

func TestLogger_Info(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Info("cache hydrated from 2 packs")

	g := goldie.New(t)
	g.Assert(t, "info_basic", buf.Bytes())
}

func TestLogger_Warn(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Warn("config missing, using defaults")

	g := goldie.New(t)
	g.Assert(t, "warn_basic", buf.Bytes())
}

func TestLogger_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		goldenName string
	}{
		{
			name:       "standard error",
			err:        errors.New("disk full"),
			goldenName: "error_std",
		},
		{
			name: "zerr chain",
			err: zerr.Wrap(
				errors.New("no such file or directory"),
				"failed to read config file",
			),
			goldenName: "error_zerr_chain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)

			lg.Error(tt.err)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestLogger_Error_WithMetadata(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		goldenName string
	}{
		{
			name: "single metadata field",
			err: zerr.With(
				zerr.New("cache version mismatch"),
				"expected", "v2",
			),
			goldenName: "error_metadata_single",
		},
		{
			name: "multiple metadata fields sorted",
			err: func() error {
				e := zerr.New("cache version mismatch")
				e = zerr.With(e, "found", "v1")
				e = zerr.With(e, "expected", "v2")
				return e
			}(),
			goldenName: "error_metadata_multi",
		},
		{
			name: "metadata on cause",
			err: func() error {
				inner := zerr.With(
					zerr.New("pack file corrupt"),
					"path", "/repo/.stash/cache/default/1.pack",
				)
				return zerr.Wrap(inner, "hydration failed")
			}(),
			goldenName: "error_metadata_chain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)

			lg.Error(tt.err)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestLogger_Error_Nil(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Error(nil)

	assert.Empty(t, buf.String())
}

func TestLogger_SetJSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)

	lg.Info("flush complete")

	out := buf.String()
	assert.Contains(t, out, `"msg":"flush complete"`)
	assert.Contains(t, out, `"level":"INFO"`)
}

func TestLogger_SetJSON_WithErrorChain(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)

	lg.Error(zerr.Wrap(errors.New("disk full"), "flush failed"))

	out := buf.String()
	assert.Contains(t, out, `"msg":"operation failed"`)
	assert.Contains(t, out, `"error"`)
}

func TestLogger_FormatSwitching(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.SetJSON(true)
	lg.Info("json line")
	lg.SetJSON(false)
	lg.Info("pretty line")

	out := buf.String()
	assert.Contains(t, out, `"msg":"json line"`)
	assert.Contains(t, out, "pretty line\n")
}

func TestLogger_SetOutput(t *testing.T) {
	lg, first := newTestLogger(t)

	lg.Info("to first")

	second := &bytes.Buffer{}
	lg.SetOutput(second)
	lg.Info("to second")

	assert.Contains(t, first.String(), "to first")
	assert.NotContains(t, first.String(), "to second")
	assert.Contains(t, second.String(), "to second")
}

func TestLogger_New(t *testing.T) {
	lg := logger.New()
	require.NotNil(t, lg)
}

func TestLogger_ConcurrentAccess(t *testing.T) {
	lg, _ := newTestLogger(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lg.Info("concurrent info")
			lg.Warn("concurrent warn")
			lg.Error(errors.New("concurrent error"))
			lg.SetJSON(i%2 == 0)
		}()
	}
	wg.Wait()
}
