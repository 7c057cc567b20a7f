package logger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/stash/internal/adapters/logger"
	"go.trai.ch/zerr"
)

func TestCollectErrorEntries(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantMessages []string
		wantMetadata []map[string]any
	}{
		{
			name:         "plain error",
			err:          errors.New("pack file corrupt"),
			wantMessages: []string{"pack file corrupt"},
			wantMetadata: []map[string]any{nil},
		},
		{
			name:         "zerr sentinel",
			err:          zerr.New("cache version mismatch"),
			wantMessages: []string{"cache version mismatch"},
			wantMetadata: []map[string]any{{}},
		},
		{
			name: "wrapped chain",
			err: zerr.Wrap(
				zerr.Wrap(errors.New("no such file"), "failed to read pack file"),
				"cache unreadable",
			),
			wantMessages: []string{"cache unreadable", "failed to read pack file", "no such file"},
			wantMetadata: []map[string]any{{}, {}, nil},
		},
		{
			name: "metadata accumulates on one entry",
			err: zerr.With(
				zerr.With(zerr.New("snapshot mismatch"), "group", "compile"),
				"changed", 3,
			),
			wantMessages: []string{"snapshot mismatch"},
			wantMetadata: []map[string]any{{"group": "compile", "changed": 3}},
		},
		{
			name: "metadata stays with its layer",
			err: func() error {
				inner := zerr.With(zerr.New("etag mismatch"), "key", "resolve:compile")
				return zerr.With(zerr.Wrap(inner, "hydration failed"), "pack", "0001.pack")
			}(),
			wantMessages: []string{"hydration failed", "etag mismatch"},
			wantMetadata: []map[string]any{
				{"pack": "0001.pack"},
				{"key": "resolve:compile"},
			},
		},
		{
			name:         "nil error",
			err:          nil,
			wantMessages: nil,
			wantMetadata: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := logger.CollectErrorEntriesExported(tt.err)

			if tt.err == nil {
				assert.Empty(t, entries)
				return
			}

			assert.Len(t, entries, len(tt.wantMessages))
			for i, wantMsg := range tt.wantMessages {
				assert.Equal(t, wantMsg, entries[i].Message, "message at index %d", i)
				assert.Equal(t, tt.wantMetadata[i], entries[i].Metadata, "metadata at index %d", i)
			}
		})
	}
}

func TestFormatErrorEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []logger.ErrorEntry
		want    string
	}{
		{
			name:    "single entry",
			entries: []logger.ErrorEntry{{Message: "cache flush failed"}},
			want:    "Error: cache flush failed",
		},
		{
			name: "cause chain",
			entries: []logger.ErrorEntry{
				{Message: "cache flush failed"},
				{Message: "failed to write pack file"},
				{Message: "disk full"},
			},
			want: "Error: cache flush failed\n\n  Caused by:\n    → failed to write pack file\n    → disk full",
		},
		{
			name: "metadata on the top entry",
			entries: []logger.ErrorEntry{
				{Message: "snapshot mismatch", Metadata: map[string]any{"group": "compile"}},
			},
			want: "Error: snapshot mismatch\n       group: compile",
		},
		{
			name: "metadata on a cause",
			entries: []logger.ErrorEntry{
				{Message: "cache unreadable"},
				{Message: "pack file corrupt", Metadata: map[string]any{"path": "0001.pack"}},
			},
			want: "Error: cache unreadable\n\n  Caused by:\n    → pack file corrupt\n      path: 0001.pack",
		},
		{
			name:    "multiline message keeps indentation",
			entries: []logger.ErrorEntry{{Message: "line1\nline2"}},
			want:    "Error: line1\n       line2",
		},
		{
			name:    "no entries",
			entries: []logger.ErrorEntry{},
			want:    "",
		},
		{
			name: "metadata keys sorted",
			entries: []logger.ErrorEntry{
				{
					Message: "etag mismatch",
					Metadata: map[string]any{
						"version": "v2",
						"group":   "compile",
						"key":     "resolve:compile",
					},
				},
			},
			want: "Error: etag mismatch\n       group: compile\n       key: resolve:compile\n       version: v2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.FormatErrorEntriesExported(tt.entries))
		})
	}
}

func TestCollectAndFormatIntegration(t *testing.T) {
	inner := zerr.With(zerr.New("failed to stat path"), "path", "build/compile.js")
	err := zerr.With(zerr.Wrap(inner, "snapshot capture failed"), "group", "compile")

	entries := logger.CollectErrorEntriesExported(err)
	got := logger.FormatErrorEntriesExported(entries)

	want := "Error: snapshot capture failed\n" +
		"       group: compile\n\n" +
		"  Caused by:\n" +
		"    → failed to stat path\n" +
		"      path: build/compile.js"
	assert.Equal(t, want, got)
}
