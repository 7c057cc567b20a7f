package ports

import "go.trai.ch/stash/internal/core/domain"

// ConfigLoader loads and validates the stash configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load discovers the configuration file starting from cwd and walking
	// up, then returns the validated configuration.
	Load(cwd string) (*domain.Config, error)
}
