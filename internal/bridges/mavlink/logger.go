package mavlink

import "sync"

// Logger defines the logging interface used by the bridge.
// This allows injection of any logger implementation.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// logSink holds an optional logger. It is embedded by the bridge components
// so each can be given a logger after construction.
type logSink struct {
	logger   Logger
	loggerMu sync.RWMutex
}

// SetLogger sets the logger.
func (s *logSink) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

func (s *logSink) current() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// logDebug logs a debug message if logger is set.
func (s *logSink) logDebug(msg string, keysAndValues ...any) {
	if l := s.current(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (s *logSink) logInfo(msg string, keysAndValues ...any) {
	if l := s.current(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (s *logSink) logWarn(msg string, keysAndValues ...any) {
	if l := s.current(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (s *logSink) logError(msg string, err error, keysAndValues ...any) {
	if l := s.current(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
