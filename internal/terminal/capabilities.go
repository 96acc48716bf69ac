package terminal

import "os"

// Options bundles all terminal-related overrides.
type Options struct {
	DetectorOptions DetectorOptions
	ForceColor      bool
	DisableColor    bool
}

// Capabilities is the read side consumed by log handlers.
type Capabilities interface {
	IsInteractive() bool
	SupportsColor() bool
}

// DefaultCapabilities resolves interactivity and color support from
// command-line overrides, environment conventions and TTY state.
type DefaultCapabilities struct {
	detector *Detector
	options  Options
}

// NewCapabilities creates a Capabilities instance with the given options.
func NewCapabilities(options Options) Capabilities {
	return &DefaultCapabilities{
		detector: NewDetector(options.DetectorOptions),
		options:  options,
	}
}

// IsInteractive reports whether the environment is interactive.
func (c *DefaultCapabilities) IsInteractive() bool {
	return c.detector.IsInteractive()
}

// SupportsColor resolves the color decision in conventional priority order:
// command-line flags, CLICOLOR_FORCE, NO_COLOR, then TTY capability with
// CLICOLOR honored only in interactive mode.
func (c *DefaultCapabilities) SupportsColor() bool {
	if c.options.ForceColor {
		return true
	}
	if c.options.DisableColor {
		return false
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && isTruthy(force) {
		return true
	}
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}

	if !c.IsInteractive() || !terminalSupportsColor() {
		return false
	}
	if cliColor := os.Getenv("CLICOLOR"); cliColor != "" {
		return isTruthy(cliColor)
	}
	return true
}

// terminalSupportsColor checks the TERM variable for color capability.
func terminalSupportsColor() bool {
	termEnv := os.Getenv("TERM")
	if termEnv == "" || termEnv == "dumb" {
		return false
	}
	return true
}
