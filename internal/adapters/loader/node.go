package loader

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/stash/internal/core/ports"
)

// LoaderNodeID is the graft node providing the module loader.
const LoaderNodeID graft.ID = "adapter.loader.modules"

func init() {
	graft.Register(graft.Node[ports.ModuleLoader]{
		ID:        LoaderNodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (ports.ModuleLoader, error) {
			return NewLoader(), nil
		},
	})
}
