package app

import (
	"go.trai.ch/stash/internal/core/ports"
)

// Components contains the initialized application components the CLI layer
// needs: the app itself plus the logger and tracer it configures and shuts
// down around commands.
type Components struct {
	App    *App
	Logger ports.Logger
	Tracer ports.Tracer
}
