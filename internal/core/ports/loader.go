package ports

// ModuleLoader exposes the module-load graph of the build tool's own code.
// Given a module path it returns the paths that loading the module touches
// directly; the resolver takes the transitive closure. Discovery is
// load-order-based rather than purely static, so the closure covers exactly
// the code paths the current configuration exercises. The ecosystem-specific
// loading semantics stay behind this interface.
//
//go:generate mockgen -source=loader.go -destination=mocks/mock_loader.go -package=mocks
type ModuleLoader interface {
	// Load returns the direct dependencies of the module at path, resolved
	// to filesystem paths, or domain.ErrModuleLoadFailed.
	Load(path string) ([]string, error)
}
