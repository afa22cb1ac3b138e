package smartnpc

import (
	"fmt"
	"log/slog"
)

// Logger receives the package's diagnostics. Failures that reach a
// callback are not logged; only unhandled ones are.
type Logger interface {
	DebugPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	ErrorPrintf(format string, args ...any)
}

// DefaultLogger logs through slog.Default at the time of each call.
func DefaultLogger() Logger {
	return slogLogger{}
}

// SlogLogger logs through l with a component=smartnpc attribute.
func SlogLogger(l *slog.Logger) Logger {
	return slogLogger{l: l.With("component", "smartnpc")}
}

type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) logger() *slog.Logger {
	if s.l == nil {
		return slog.Default().With("component", "smartnpc")
	}
	return s.l
}

func (s slogLogger) DebugPrintf(format string, args ...any) {
	s.logger().Debug(fmt.Sprintf(format, args...))
}

func (s slogLogger) InfoPrintf(format string, args ...any) {
	s.logger().Info(fmt.Sprintf(format, args...))
}

func (s slogLogger) WarnPrintf(format string, args ...any) {
	s.logger().Warn(fmt.Sprintf(format, args...))
}

func (s slogLogger) ErrorPrintf(format string, args ...any) {
	s.logger().Error(fmt.Sprintf(format, args...))
}
