package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

const minimalConfig = `
version = "1.0"

[validator]
allowed_roots = ["/home"]

[[validator.rule]]
path = "/usr/bin/clamscan"
flags = ["--recursive", "--infected", "--stdout"]
`

func TestParse_MinimalConfigGetsDefaults(t *testing.T) {
	loader := NewLoader()
	spec, err := loader.Parse([]byte(minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, DefaultGracePeriodSeconds, spec.Auth.GracePeriodSeconds)
	assert.Equal(t, DefaultSessionDurationSeconds, spec.Auth.SessionDurationSeconds)
	assert.Equal(t, DefaultWatchdogTimeoutSeconds, spec.Supervisor.WatchdogTimeoutSeconds)
	assert.Equal(t, DefaultTailLines, spec.Supervisor.TailLines)
	assert.Equal(t, DefaultRetention, spec.Supervisor.Retention)
	assert.Equal(t, DefaultMaxArguments, spec.Validator.MaxArguments)
	assert.Equal(t, DefaultLogLevel, spec.Logging.Level)

	assert.Equal(t, 30*time.Second, spec.Auth.GracePeriod())
	assert.Equal(t, 60*time.Second, spec.Auth.SessionDuration())
	assert.Equal(t, 5*time.Second, spec.Supervisor.WatchdogTimeout())
}

func TestParse_FullConfig(t *testing.T) {
	content := `
version = "1.0"

[validator]
allowed_roots = ["/home", "/srv"]
max_arguments = 16
int_min = 1
int_max = 4096

[[validator.rule]]
path = "/usr/bin/clamscan"
flags = ["--recursive"]

[[validator.rule]]
path = "/usr/bin/rkhunter"
flags = ["--check", "--sk"]

[auth]
grace_period_seconds = 20
session_duration_seconds = 90

[[auth.domain]]
name = "rkhunter"
grace_period_seconds = 10
session_duration_seconds = 45

[supervisor]
watchdog_timeout_seconds = 8
tail_lines = 64
retention = 512

[elevation]
pkexec_path = "/usr/local/bin/pkexec"

[logging]
level = "debug"
dir = "/var/log/scanwarden"
`
	loader := NewLoader()
	spec, err := loader.Parse([]byte(content))
	require.NoError(t, err)

	assert.Len(t, spec.Validator.Rules, 2)
	assert.Equal(t, 16, spec.Validator.MaxArguments)
	require.NotNil(t, spec.Validator.IntMin)
	assert.Equal(t, int64(1), *spec.Validator.IntMin)

	vcfg := spec.Validator.ValidatorConfig()
	assert.Equal(t, []string{"/home", "/srv"}, vcfg.AllowedRoots)
	assert.Equal(t, int64(4096), vcfg.IntMax)

	global, overrides := spec.Auth.SessionTiming()
	assert.Equal(t, 20*time.Second, global.GracePeriod)
	assert.Equal(t, 90*time.Second, global.SessionDuration)
	require.Contains(t, overrides, scantypes.PrivilegeDomain("rkhunter"))
	assert.Equal(t, 10*time.Second, overrides["rkhunter"].GracePeriod)
	assert.Equal(t, 45*time.Second, overrides["rkhunter"].SessionDuration)

	assert.Equal(t, 8*time.Second, spec.Supervisor.WatchdogTimeout())
	assert.Equal(t, "/usr/local/bin/pkexec", spec.Elevation.PkexecPath)
	assert.Equal(t, "debug", spec.Logging.Level)
}

func TestParse_DomainOverrideInheritsGlobalWindows(t *testing.T) {
	content := minimalConfig + `
[auth]
grace_period_seconds = 15
session_duration_seconds = 40

[[auth.domain]]
name = "clamav"
grace_period_seconds = 5
`
	loader := NewLoader()
	spec, err := loader.Parse([]byte(content))
	require.NoError(t, err)

	_, overrides := spec.Auth.SessionTiming()
	require.Contains(t, overrides, scantypes.PrivilegeDomain("clamav"))
	assert.Equal(t, 5*time.Second, overrides["clamav"].GracePeriod)
	assert.Equal(t, 40*time.Second, overrides["clamav"].SessionDuration)
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "no rules",
			content: `version = "1.0"`,
			field:   "validator.rule",
		},
		{
			name: "relative executable path",
			content: `
[[validator.rule]]
path = "clamscan"
`,
			field: "validator.rule[0].path",
		},
		{
			name: "relative allowed root",
			content: `
[validator]
allowed_roots = ["home"]

[[validator.rule]]
path = "/usr/bin/clamscan"
`,
			field: "validator.allowed_roots[0]",
		},
		{
			name: "grace exceeds session",
			content: minimalConfig + `
[auth]
grace_period_seconds = 90
session_duration_seconds = 60
`,
			field: "auth.grace_period_seconds",
		},
		{
			name: "duplicate domain override",
			content: minimalConfig + `
[[auth.domain]]
name = "clamav"

[[auth.domain]]
name = "clamav"
`,
			field: "auth.domain[1].name",
		},
		{
			name: "bad log level",
			content: minimalConfig + `
[logging]
level = "verbose"
`,
			field: "logging.level",
		},
		{
			name: "relative pkexec path",
			content: minimalConfig + `
[elevation]
pkexec_path = "pkexec"
`,
			field: "elevation.pkexec_path",
		},
	}

	loader := NewLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Parse([]byte(tt.content))
			require.Error(t, err)
			if tt.field != "" {
				var fieldErr *FieldError
				require.ErrorAs(t, err, &fieldErr)
				assert.Equal(t, tt.field, fieldErr.Field)
			}
		})
	}
}

func TestParse_MalformedTOML(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Parse([]byte(`[validator`))
	assert.Error(t, err)
}

func TestLoad_RejectsRelativePath(t *testing.T) {
	loader := NewLoader()
	_, err := loader.Load("scanwarden.toml")
	assert.ErrorIs(t, err, ErrInvalidConfigPath)
}
