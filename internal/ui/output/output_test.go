package output_test

import (
	"bytes"
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/stash/internal/ui/output"
)

func TestColorProfile_NoColorWins(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, termenv.Ascii, output.ColorProfile())
}

func TestColorProfile_Detected(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	p := output.ColorProfile()
	assert.True(t, p >= termenv.TrueColor && p <= termenv.Ascii)
}

func TestNew_WritesThrough(t *testing.T) {
	var buf bytes.Buffer
	out := output.New(&buf)
	_, _ = out.WriteString("cache ready")
	assert.Equal(t, "cache ready", buf.String())
}

func TestNew_NilWriterDefaultsToStderr(t *testing.T) {
	assert.NotNil(t, output.New(nil))
}
