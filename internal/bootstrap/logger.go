// Package bootstrap wires scanwarden's subsystems together at startup:
// logger construction, configuration loading and assembly of the validator,
// session manager, supervisor and scan coordinator.
package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/scanwarden/scanwarden/internal/common"
	"github.com/scanwarden/scanwarden/internal/logging"
	"github.com/scanwarden/scanwarden/internal/terminal"
)

// LoggerConfig holds all configuration for logger setup.
type LoggerConfig struct {
	Level  slog.Level
	LogDir string
	RunID  string
	// ConsoleWriter receives non-interactive console output; defaults to
	// stdout.
	ConsoleWriter io.Writer
	// InteractiveWriter receives interactive output; defaults to stderr.
	InteractiveWriter io.Writer
	ForceInteractive  bool
	ForceQuiet        bool
}

// SetupLogger builds the handler stack for one run: an interactive stderr
// handler for terminal sessions, a plain text handler for headless runs, and
// an optional per-run JSON log file. The returned closer releases the log
// file, if any.
func SetupLogger(config LoggerConfig) (*slog.Logger, func() error, error) {
	capabilities := terminal.NewCapabilities(terminal.Options{
		DetectorOptions: terminal.DetectorOptions{
			ForceInteractive:    config.ForceInteractive,
			ForceNonInteractive: config.ForceQuiet,
		},
	})

	var handlers []slog.Handler

	interactiveWriter := config.InteractiveWriter
	if interactiveWriter == nil {
		interactiveWriter = os.Stderr
	}
	interactiveHandler, err := logging.NewInteractiveHandler(logging.InteractiveHandlerOptions{
		Level:        config.Level,
		Writer:       interactiveWriter,
		Capabilities: capabilities,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create interactive handler: %w", err)
	}
	handlers = append(handlers, interactiveHandler)

	consoleWriter := config.ConsoleWriter
	if consoleWriter == nil {
		consoleWriter = os.Stdout
	}
	textHandler, err := logging.NewConditionalTextHandler(logging.ConditionalTextHandlerOptions{
		TextHandlerOptions: &slog.HandlerOptions{Level: config.Level},
		Writer:             consoleWriter,
		Capabilities:       capabilities,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create text handler: %w", err)
	}
	handlers = append(handlers, textHandler)

	closer := func() error { return nil }
	if config.LogDir != "" {
		hostname := common.GetHostname()
		logFile, err := logging.OpenRunLogFile(config.LogDir, hostname, config.RunID)
		if err != nil {
			return nil, nil, err
		}
		jsonHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: config.Level}).
			WithAttrs([]slog.Attr{
				slog.String("hostname", hostname),
				slog.Int("pid", os.Getpid()),
				slog.String("run_id", config.RunID),
			})
		handlers = append(handlers, jsonHandler)
		closer = logFile.Close
	}

	logger := slog.New(logging.NewMultiHandler(handlers...))
	logger.Debug("Logger initialized",
		"level", config.Level.String(),
		"log_dir", config.LogDir,
		"run_id", config.RunID,
		"interactive", capabilities.IsInteractive())
	return logger, closer, nil
}

// ParseLevel maps a configuration level string to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
