package config

// Stashfile represents the structure of the stash.yaml configuration file.
type Stashfile struct {
	Cache    CacheDTO    `yaml:"cache"`
	Snapshot SnapshotDTO `yaml:"snapshot"`
}

// CacheDTO holds the cache section of the configuration.
type CacheDTO struct {
	Type                       string              `yaml:"type"`
	Version                    string              `yaml:"version"`
	Name                       string              `yaml:"name"`
	BuildDependencies          map[string][]string `yaml:"buildDependencies"`
	IdleTimeout                string              `yaml:"idleTimeout"`
	IdleTimeoutForInitialStore string              `yaml:"idleTimeoutForInitialStore"`
	MaxAge                     string              `yaml:"maxAge"`
}

// SnapshotDTO holds the snapshot section of the configuration.
type SnapshotDTO struct {
	ManagedPaths             []string `yaml:"managedPaths"`
	ImmutablePaths           []string `yaml:"immutablePaths"`
	Resolve                  string   `yaml:"resolve"`
	Module                   string   `yaml:"module"`
	BuildDependencies        string   `yaml:"buildDependencies"`
	ResolveBuildDependencies string   `yaml:"resolveBuildDependencies"`
}
