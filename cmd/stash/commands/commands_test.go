package commands_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/stash/cmd/stash/commands"
	"go.trai.ch/stash/internal/app"
	"go.trai.ch/stash/internal/build"
	"go.trai.ch/zerr"
)

type mockApp struct {
	statusFunc func(ctx context.Context) (*app.Status, error)
	gcFunc     func(ctx context.Context) error
	watchFunc  func(ctx context.Context) error
	cleanFunc  func(ctx context.Context) error
}

func (m *mockApp) Status(ctx context.Context) (*app.Status, error) {
	if m.statusFunc != nil {
		return m.statusFunc(ctx)
	}
	return &app.Status{}, nil
}

func (m *mockApp) GC(ctx context.Context) error {
	if m.gcFunc != nil {
		return m.gcFunc(ctx)
	}
	return nil
}

func (m *mockApp) Watch(ctx context.Context) error {
	if m.watchFunc != nil {
		return m.watchFunc(ctx)
	}
	return nil
}

func (m *mockApp) Clean(ctx context.Context) error {
	if m.cleanFunc != nil {
		return m.cleanFunc(ctx)
	}
	return nil
}

func execute(t *testing.T, mock *mockApp, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	cli := commands.New(mock, nil)
	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs(args)
	return buf, cli.Execute(t.Context())
}

func TestCommands_Status(t *testing.T) {
	t.Run("renders packs", func(t *testing.T) {
		mock := &mockApp{
			statusFunc: func(context.Context) (*app.Status, error) {
				return &app.Status{
					State:      app.StateWarmBuild,
					Name:       "default",
					CacheDir:   "/repo/.stash/cache/default",
					Persistent: true,
					Packs: []app.PackStatus{
						{Path: "/repo/.stash/cache/default/1700000000.pack", Version: "v1", CreatedAt: time.Unix(1700000000, 0), Entries: 3, Valid: true},
					},
				}, nil
			},
		}

		buf, err := execute(t, mock, "status")
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "cache default")
		assert.Contains(t, buf.String(), "1700000000.pack")
		assert.Contains(t, buf.String(), "3 entries")
	})

	t.Run("reports disabled persistence", func(t *testing.T) {
		mock := &mockApp{
			statusFunc: func(context.Context) (*app.Status, error) {
				return &app.Status{Name: "default", Persistent: false}, nil
			},
		}

		buf, err := execute(t, mock, "status")
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "persistence: disabled")
	})

	t.Run("emits json", func(t *testing.T) {
		mock := &mockApp{
			statusFunc: func(context.Context) (*app.Status, error) {
				return &app.Status{State: app.StateWarmBuild, Name: "default", Persistent: true}, nil
			},
		}

		buf, err := execute(t, mock, "status", "--json")
		require.NoError(t, err)
		assert.Contains(t, buf.String(), `"state": "warm-build"`)
		assert.Contains(t, buf.String(), `"name": "default"`)
	})

	t.Run("propagates errors", func(t *testing.T) {
		mock := &mockApp{
			statusFunc: func(context.Context) (*app.Status, error) {
				return nil, zerr.New("cache unreadable")
			},
		}

		_, err := execute(t, mock, "status")
		assert.ErrorContains(t, err, "cache unreadable")
	})
}

func TestCommands_GC(t *testing.T) {
	called := false
	mock := &mockApp{
		gcFunc: func(context.Context) error {
			called = true
			return nil
		},
	}

	_, err := execute(t, mock, "gc")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCommands_Watch(t *testing.T) {
	called := false
	mock := &mockApp{
		watchFunc: func(context.Context) error {
			called = true
			return nil
		},
	}

	_, err := execute(t, mock, "watch")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCommands_Clean(t *testing.T) {
	mock := &mockApp{
		cleanFunc: func(context.Context) error {
			return zerr.New("persistent cache is disabled")
		},
	}

	_, err := execute(t, mock, "clean")
	assert.ErrorContains(t, err, "persistent cache is disabled")
}

func TestCommands_Version(t *testing.T) {
	buf, err := execute(t, &mockApp{}, "version")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), build.Version)
}

func TestCommands_UnknownCommand(t *testing.T) {
	_, err := execute(t, &mockApp{}, "frobnicate")
	assert.Error(t, err)
}
