// Package logging provides a minimal logging interface and adapters for reviewmesh.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the engine, worker and server use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping go.uber.org/zap, used by the command line tool
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text"})
//	eng := engine.New(reg, clients, tools, func(o *engine.Options) { o.Logger = logger })
package logging
