// Package terminal detects whether scanwarden is talking to an interactive
// terminal and whether colored output is appropriate. The frontend runs both
// from desktop launchers and from scripts, so the distinction drives which
// log handlers get attached.
package terminal

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ciEnvVars contains common CI environment variables.
var ciEnvVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"BUILDKITE",
	"DRONE",
	"TF_BUILD",
}

// DetectorOptions contains command-line overrides for interactive detection.
type DetectorOptions struct {
	ForceInteractive    bool
	ForceNonInteractive bool
}

// Detector reports whether the process should behave interactively.
type Detector struct {
	options DetectorOptions
}

// NewDetector creates a detector with the given overrides.
func NewDetector(options DetectorOptions) *Detector {
	return &Detector{options: options}
}

// IsInteractive reports whether the environment is interactive. Command-line
// overrides win, then CI detection, then a TTY check.
func (d *Detector) IsInteractive() bool {
	if d.options.ForceInteractive {
		return true
	}
	if d.options.ForceNonInteractive {
		return false
	}
	if d.IsCIEnvironment() {
		return false
	}
	return d.IsTerminal()
}

// IsTerminal checks whether stdout and stderr are both connected to a
// terminal.
func (d *Detector) IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

// IsCIEnvironment checks whether the process appears to run under a CI
// system. CI=false and CI=0 do not count.
func (d *Detector) IsCIEnvironment() bool {
	for _, envVar := range ciEnvVars {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		if envVar == "CI" {
			return isTruthy(value)
		}
		return true
	}
	return false
}

// isTruthy treats "1", "true" and "yes" as true, case insensitively.
func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
