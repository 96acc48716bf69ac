// Package main provides the scanwarden command-line frontend. It loads the
// configuration, assembles the scan coordinator and runs one scan to
// completion, relaying scanner output and state changes to the console.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scanwarden/scanwarden/internal/bootstrap"
	"github.com/scanwarden/scanwarden/internal/logging"
	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// stopResolveTimeout bounds the drain after an interrupt. It exceeds the
// default watchdog budget so forced stops can land before the process exits.
const stopResolveTimeout = 15 * time.Second

// Error definitions.
var (
	ErrUnknownKind = errors.New("unknown scan kind")
	ErrScanFailed  = errors.New("scan failed")
)

var (
	configPath  = flag.String("config", "", "path to config file (optional; built-in defaults used when empty)")
	logLevel    = flag.String("log-level", "", "log level (debug, info, warn, error); overrides config")
	logDir      = flag.String("log-dir", "", "directory to place per-run JSON log (auto-named); overrides config")
	kindFlag    = flag.String("kind", string(scantypes.ScanKindMalware), "scan kind to run")
	target      = flag.String("target", "", "path to scan (template default when empty)")
	listKinds   = flag.Bool("list-kinds", false, "list available scan kinds and exit")
	validateCfg = flag.Bool("validate", false, "validate configuration file and exit")
	interactive = flag.Bool("interactive", false, "force interactive output")
	quiet       = flag.Bool("quiet", false, "force non-interactive output")
)

func main() {
	runID := logging.NewRunID()
	if err := run(runID); err != nil {
		fmt.Fprintf(os.Stderr, "scanwarden: %v\n", err)
		os.Exit(1)
	}
}

func run(runID string) error {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	spec, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *validateCfg {
		fmt.Printf("configuration OK (%d executable rules)\n", len(spec.Validator.Rules))
		return nil
	}

	// Command-line flags override the config file's logging section.
	level := spec.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}
	slogLevel, err := bootstrap.ParseLevel(level)
	if err != nil {
		return err
	}
	dir := spec.Logging.Dir
	if *logDir != "" {
		dir = *logDir
	}

	logger, closeLog, err := bootstrap.SetupLogger(bootstrap.LoggerConfig{
		Level:            slogLevel,
		LogDir:           dir,
		RunID:            runID,
		ForceInteractive: *interactive,
		ForceQuiet:       *quiet,
	})
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "scanwarden: failed to close log file: %v\n", err)
		}
	}()
	slog.SetDefault(logger)

	app, err := bootstrap.BuildApp(spec, logger)
	if err != nil {
		return err
	}

	if *listKinds {
		for _, kind := range app.Templates.Kinds() {
			fmt.Println(kind)
		}
		return nil
	}

	if err := app.Mechanism.Available(); err != nil {
		return fmt.Errorf("elevation mechanism unavailable: %w", err)
	}

	kind := scantypes.ScanKind(*kindFlag)
	channel, err := channelForKind(kind)
	if err != nil {
		return err
	}

	return runScan(ctx, app, channel, kind, *target, logger)
}

// channelForKind maps a scan kind to its dedicated channel.
func channelForKind(kind scantypes.ScanKind) (scantypes.ChannelID, error) {
	switch kind {
	case scantypes.ScanKindMalware:
		return scantypes.ChannelMalware, nil
	case scantypes.ScanKindRootkit:
		return scantypes.ChannelRootkit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// runScan starts one scan and relays its events until the channel returns to
// idle. An interrupt triggers a stop request; the scan is then drained so the
// terminal outcome still reaches the console.
func runScan(ctx context.Context, app *bootstrap.App, channel scantypes.ChannelID, kind scantypes.ScanKind, target string, logger *slog.Logger) error {
	sub, err := app.Coordinator.Subscribe(channel)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	if err := app.Coordinator.StartScan(ctx, channel, kind, target); err != nil {
		return err
	}

	stopRequested := false
	drainDeadline := (<-chan time.Time)(nil)
	var outcome *scantypes.Outcome

	for {
		select {
		case <-ctx.Done():
			if !stopRequested {
				stopRequested = true
				logger.Info("Interrupt received, stopping scan", "channel", channel)
				stopCtx, cancel := context.WithTimeout(context.Background(), stopResolveTimeout)
				if err := app.Coordinator.StopScan(stopCtx, channel); err != nil {
					logger.Warn("Stop request failed", "channel", channel, "error", err)
				}
				cancel()
				drainDeadline = time.After(stopResolveTimeout)
			}
			ctx = context.Background() // stop re-entering this case
		case <-drainDeadline:
			return fmt.Errorf("%w: scan did not resolve after stop request", ErrScanFailed)
		case ev, ok := <-sub.Events():
			if !ok {
				return fmt.Errorf("%w: event stream closed unexpectedly", ErrScanFailed)
			}
			switch ev.Kind {
			case scantypes.EventProgress:
				if ev.HasPercent() {
					fmt.Printf("[%3d%%] %s\n", ev.Percent, ev.RawLine)
				} else {
					fmt.Println(ev.RawLine)
				}
			case scantypes.EventStateChange:
				logger.Info("Scan state changed",
					"channel", ev.Channel, "from", ev.From.String(), "to", ev.To.String())
				if ev.To.IsTerminal() && ev.Outcome != nil {
					o := *ev.Outcome
					outcome = &o
				}
				if ev.To == scantypes.StateIdle && outcome != nil {
					return reportOutcome(*outcome, logger)
				}
			}
		}
	}
}

// reportOutcome logs the terminal outcome and maps it to the process exit
// status.
func reportOutcome(outcome scantypes.Outcome, logger *slog.Logger) error {
	switch outcome.State {
	case scantypes.StateCompleted:
		logger.Info("Scan completed", "exit_code", outcome.ExitCode)
		return nil
	case scantypes.StateStopped:
		logger.Info("Scan stopped", "method", outcome.StopMethod.String())
		return nil
	default:
		for _, line := range outcome.OutputTail {
			fmt.Fprintln(os.Stderr, line)
		}
		if outcome.Err != nil {
			return fmt.Errorf("%w: %v", ErrScanFailed, outcome.Err)
		}
		return fmt.Errorf("%w: exit code %d", ErrScanFailed, outcome.ExitCode)
	}
}
