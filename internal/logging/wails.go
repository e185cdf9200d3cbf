package logging

import (
	"go.uber.org/zap"
)

// WailsLogger routes framework log output into zap. It satisfies the
// github.com/wailsapp/wails/v2/pkg/logger.Logger interface.
type WailsLogger struct {
	log *zap.Logger
}

func NewWailsLogger(log *zap.Logger) *WailsLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &WailsLogger{log: log.Named("wails")}
}

func (l *WailsLogger) Print(message string)   { l.log.Info(message) }
func (l *WailsLogger) Trace(message string)   { l.log.Debug(message) }
func (l *WailsLogger) Debug(message string)   { l.log.Debug(message) }
func (l *WailsLogger) Info(message string)    { l.log.Info(message) }
func (l *WailsLogger) Warning(message string) { l.log.Warn(message) }
func (l *WailsLogger) Error(message string)   { l.log.Error(message) }

// Fatal logs at error level. Exiting is left to the framework.
func (l *WailsLogger) Fatal(message string) { l.log.Error(message, zap.Bool("fatal", true)) }
