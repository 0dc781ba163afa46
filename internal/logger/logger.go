// Package logger provides the process-wide structured logger and prefixed
// component loggers derived from it.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Logger is the global logger instance.
var Logger *log.Logger

func init() {
	Logger = log.New(os.Stderr)
	Logger.SetTimeFormat("")
	Logger.SetLevel(log.InfoLevel)
}

// Configure sets the level and destination of the global logger. The level
// falls back to RECIPE_CHAT_LOG_LEVEL and then to info; an empty logFile
// keeps stderr.
func Configure(level string, logFile string) error {
	if level == "" {
		level = os.Getenv("RECIPE_CHAT_LOG_LEVEL")
	}

	var output io.Writer = os.Stderr
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return err
		}
		output = file
	}

	Logger = log.NewWithOptions(output, log.Options{
		ReportTimestamp: logFile != "",
		Level:           parseLevel(level),
	})
	Logger.SetStyles(levelStyles())
	return nil
}

func parseLevel(level string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func levelStyles() *log.Styles {
	styles := log.DefaultStyles()
	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Bold(true).
		Foreground(lipgloss.Color("214"))
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styles.Values["error"] = lipgloss.NewStyle().Bold(true)
	styles.Keys["tab"] = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	return styles
}

// For returns a logger for one component, e.g. For("store").
func For(component string) *log.Logger {
	return Logger.WithPrefix(component)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
