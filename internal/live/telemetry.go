package live

import "time"

// Telemetry receives gateway metrics. The InfluxDB client satisfies it.
type Telemetry interface {
	SessionOpened(sessionID string)
	SessionClosed(sessionID string, lifetime time.Duration)
	RequestHandled(resource, op string, latency time.Duration, err error)
	BackfillCompleted(resource string, events int, latency time.Duration)
}

type noopTelemetry struct{}

func (noopTelemetry) SessionOpened(string)                                {}
func (noopTelemetry) SessionClosed(string, time.Duration)                 {}
func (noopTelemetry) RequestHandled(string, string, time.Duration, error) {}
func (noopTelemetry) BackfillCompleted(string, int, time.Duration)        {}

// Logger is the logging interface used by the live layer.
// It is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
