package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/stash/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/stash/internal/adapters/fs"        //nolint:depguard // Wired in app layer
	"go.trai.ch/stash/internal/adapters/loader"    //nolint:depguard // Wired in app layer
	"go.trai.ch/stash/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/stash/internal/adapters/manifest"  //nolint:depguard // Wired in app layer
	"go.trai.ch/stash/internal/adapters/telemetry" //nolint:depguard // Wired in app layer
	"go.trai.ch/stash/internal/adapters/watcher"   //nolint:depguard // Wired in app layer
	"go.trai.ch/stash/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.LoaderNodeID,
			watcher.WatcherNodeID,
			fs.ReaderNodeID,
			manifest.ReaderNodeID,
			loader.LoaderNodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
		},
		Run: runAppNode,
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	cfgLoader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	w, err := graft.Dep[ports.Watcher](ctx)
	if err != nil {
		return nil, err
	}

	files, err := graft.Dep[ports.FileReader](ctx)
	if err != nil {
		return nil, err
	}

	packages, err := graft.Dep[ports.PackageReader](ctx)
	if err != nil {
		return nil, err
	}

	modules, err := graft.Dep[ports.ModuleLoader](ctx)
	if err != nil {
		return nil, err
	}

	lg, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	return New(cfgLoader, w, files, packages, modules, lg, tracer), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	application, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	lg, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		App:    application,
		Logger: lg,
		Tracer: tracer,
	}, nil
}
