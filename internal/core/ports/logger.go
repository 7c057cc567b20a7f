package ports

// Logger defines the interface for logging. Every cache invalidation and
// entry-drop event goes through here with enough context to diagnose it.
//
//go:generate mockgen -source=logger.go -destination=mocks/mock_logger.go -package=mocks
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(err error)
}
