package domain

// Resolution is the cached outcome of expanding one build dependency root
// group: the dependency set it covered and the snapshot taken of it. It is
// the payload stored per root group, so a warm start replays the expansion
// without touching package manifests or the module graph.
type Resolution struct {
	// Root is the configured root group name.
	Root string
	// Deps is the expanded dependency closure.
	Deps *DependencySet
	// State is the snapshot captured over Deps at resolution time.
	State *Snapshot
}
