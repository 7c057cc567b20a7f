package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/stash/internal/core/ports"
)

const (
	// ReaderNodeID is the graft node providing the filesystem reader.
	ReaderNodeID graft.ID = "adapter.fs.reader"
	// WalkerNodeID is the graft node providing the file walker.
	WalkerNodeID graft.ID = "adapter.fs.walker"
)

func init() {
	graft.Register(graft.Node[ports.FileReader]{
		ID:        ReaderNodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (ports.FileReader, error) {
			return NewReader(), nil
		},
	})

	graft.Register(graft.Node[*Walker]{
		ID:        WalkerNodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (*Walker, error) {
			return NewWalker(), nil
		},
	})
}
