package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// PrintAdapter адаптирует slog.Logger под Print-интерфейс,
// который ожидает middleware.DefaultLogFormatter из chi.
type PrintAdapter struct {
	Logger *slog.Logger
}

// Print реализует middleware.LoggerInterface.
func (a *PrintAdapter) Print(v ...interface{}) {
	// Сообщения проходят через основной маскировщик.
	a.Logger.Info(strings.TrimSpace(fmt.Sprint(v...)))
}

// Printf пишет форматированное сообщение уровнем Info.
func (a *PrintAdapter) Printf(format string, v ...interface{}) {
	a.Logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
