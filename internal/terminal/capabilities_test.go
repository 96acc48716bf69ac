package terminal

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearColorEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CLICOLOR_FORCE", "")
	t.Setenv("CLICOLOR", "")
	// NO_COLOR counts as set even when empty; t.Setenv registers the restore,
	// then the variable is removed for the test body.
	t.Setenv("NO_COLOR", "")
	os.Unsetenv("NO_COLOR")
}

func TestCapabilities_CommandLineFlagsWin(t *testing.T) {
	clearColorEnv(t)

	c := NewCapabilities(Options{ForceColor: true})
	assert.True(t, c.SupportsColor())

	c = NewCapabilities(Options{DisableColor: true})
	assert.False(t, c.SupportsColor())

	// ForceColor beats even NO_COLOR.
	t.Setenv("NO_COLOR", "1")
	c = NewCapabilities(Options{ForceColor: true})
	assert.True(t, c.SupportsColor())
}

func TestCapabilities_CLIColorForce(t *testing.T) {
	clearColorEnv(t)
	t.Setenv("CLICOLOR_FORCE", "1")

	// CLICOLOR_FORCE enables color even when non-interactive.
	c := NewCapabilities(Options{DetectorOptions: DetectorOptions{ForceNonInteractive: true}})
	assert.True(t, c.SupportsColor())
}

func TestCapabilities_NoColor(t *testing.T) {
	clearColorEnv(t)
	t.Setenv("NO_COLOR", "")

	c := NewCapabilities(Options{DetectorOptions: DetectorOptions{ForceInteractive: true}})
	assert.False(t, c.SupportsColor())
}

func TestCapabilities_NonInteractiveHasNoColor(t *testing.T) {
	clearColorEnv(t)

	c := NewCapabilities(Options{DetectorOptions: DetectorOptions{ForceNonInteractive: true}})
	assert.False(t, c.SupportsColor())
}

func TestCapabilities_DumbTerminal(t *testing.T) {
	clearColorEnv(t)
	t.Setenv("TERM", "dumb")

	c := NewCapabilities(Options{DetectorOptions: DetectorOptions{ForceInteractive: true}})
	assert.False(t, c.SupportsColor())
}

func TestCapabilities_InteractiveColorTerminal(t *testing.T) {
	clearColorEnv(t)
	t.Setenv("TERM", "xterm-256color")

	c := NewCapabilities(Options{DetectorOptions: DetectorOptions{ForceInteractive: true}})
	assert.True(t, c.SupportsColor())

	t.Setenv("CLICOLOR", "0")
	assert.False(t, c.SupportsColor())
}
