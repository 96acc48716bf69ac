package bootstrap

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

func TestLoadConfig_DefaultSpecFromTemplates(t *testing.T) {
	spec, err := LoadConfig("")
	require.NoError(t, err)

	assert.NotEmpty(t, spec.Validator.Rules)
	paths := make([]string, 0, len(spec.Validator.Rules))
	for _, rule := range spec.Validator.Rules {
		paths = append(paths, rule.Path)
	}
	assert.Contains(t, paths, "/usr/bin/clamscan")
	assert.Contains(t, paths, "/usr/bin/rkhunter")
	assert.Equal(t, 30, spec.Auth.GracePeriodSeconds)
}

func TestLoadConfig_RejectsRelativePath(t *testing.T) {
	_, err := LoadConfig("scanwarden.toml")
	assert.Error(t, err)
}

func TestBuildApp_AssemblesStack(t *testing.T) {
	spec, err := LoadConfig("")
	require.NoError(t, err)

	app, err := BuildApp(spec, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, app.Coordinator)
	require.NotNil(t, app.Sessions)
	require.NotNil(t, app.Templates)
	require.NotNil(t, app.Mechanism)

	assert.ElementsMatch(t,
		[]scantypes.ChannelID{scantypes.ChannelMalware, scantypes.ChannelRootkit},
		app.Coordinator.Channels())

	state, err := app.Coordinator.State(scantypes.ChannelMalware)
	require.NoError(t, err)
	assert.Equal(t, scantypes.StateIdle, state)
}
