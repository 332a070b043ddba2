// Package logger defines the logging contract used across the handshake.
package logger

// Logger is implemented by the zap adapter and by NoopLogger. Fields are
// free-form key/value context (route, network, signature, ...).
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger drops everything. It is the default so library users opt in
// to logging explicitly.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
