package log

import (
	"fmt"
	"strings"
)

// PahoLogger adapts a Logger to the Println/Printf interface expected by the
// paho and autopaho debug hooks.
type PahoLogger struct {
	logger Logger
	warn   bool
}

// NewPahoLogger returns a debug-level adapter. When warn is true the messages
// are emitted at WarnLevel instead, which suits the error hooks.
func NewPahoLogger(logger Logger, warn bool) PahoLogger {
	return PahoLogger{logger: logger, warn: warn}
}

func (p PahoLogger) Println(v ...any) {
	p.emit(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p PahoLogger) Printf(format string, v ...any) {
	p.emit(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (p PahoLogger) emit(msg string) {
	if p.logger == nil {
		return
	}
	if p.warn {
		p.logger.Warn(msg)
		return
	}
	p.logger.Debug(msg)
}
