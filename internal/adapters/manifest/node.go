package manifest

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/stash/internal/core/ports"
)

// ReaderNodeID is the graft node providing the package manifest reader.
const ReaderNodeID graft.ID = "adapter.manifest.reader"

func init() {
	graft.Register(graft.Node[ports.PackageReader]{
		ID:        ReaderNodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (ports.PackageReader, error) {
			return NewReader(), nil
		},
	})
}
