package pipeline

import (
	"fmt"
	"log/slog"
)

// Logger is the interface for logging in pipeline.
type Logger interface {
	ErrorPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
}

const logPrefix = "pipeline: "

// DefaultLogger returns a Logger writing to slog.Default().
func DefaultLogger() Logger {
	return SlogLogger(nil)
}

// SlogLogger creates a Logger from a slog.Logger. A nil l uses
// slog.Default() at the time of each call.
func SlogLogger(l *slog.Logger) Logger {
	return slogLogger{l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) logger() *slog.Logger {
	if s.l == nil {
		return slog.Default()
	}
	return s.l
}

func (s slogLogger) ErrorPrintf(format string, args ...any) {
	s.logger().Error(logPrefix + fmt.Sprintf(format, args...))
}

func (s slogLogger) WarnPrintf(format string, args ...any) {
	s.logger().Warn(logPrefix + fmt.Sprintf(format, args...))
}

func (s slogLogger) InfoPrintf(format string, args ...any) {
	s.logger().Info(logPrefix + fmt.Sprintf(format, args...))
}

func (s slogLogger) DebugPrintf(format string, args ...any) {
	s.logger().Debug(logPrefix + fmt.Sprintf(format, args...))
}
