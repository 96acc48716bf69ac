// Package config provides loading and validation of the scanwarden
// configuration file. The file is TOML and describes the executable
// allowlist, authentication session timing, supervisor limits and logging
// destinations. All durations are expressed in whole seconds.
package config

import (
	"time"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// Default values applied to fields the configuration file leaves unset.
const (
	DefaultGracePeriodSeconds     = 30
	DefaultSessionDurationSeconds = 60
	DefaultWatchdogTimeoutSeconds = 5
	DefaultMaxArguments           = 32
	DefaultTailLines              = 32
	DefaultRetention              = 256
	DefaultLogLevel               = "info"
)

// Spec is the root of the parsed configuration file.
type Spec struct {
	Version    string         `toml:"version"`
	Validator  ValidatorSpec  `toml:"validator"`
	Auth       AuthSpec       `toml:"auth"`
	Supervisor SupervisorSpec `toml:"supervisor"`
	Elevation  ElevationSpec  `toml:"elevation"`
	Logging    LoggingSpec    `toml:"logging"`
}

// ValidatorSpec configures the command allowlist.
type ValidatorSpec struct {
	// Rules lists the approved executables and their permitted flags.
	Rules []RuleSpec `toml:"rule"`
	// AllowedRoots lists directory trees scan targets must stay inside.
	AllowedRoots []string `toml:"allowed_roots"`
	// MaxArguments caps argv length; zero selects the default.
	MaxArguments int    `toml:"max_arguments"`
	IntMin       *int64 `toml:"int_min"`
	IntMax       *int64 `toml:"int_max"`
}

// RuleSpec is one allowlist entry.
type RuleSpec struct {
	Path  string   `toml:"path"`
	Flags []string `toml:"flags"`
}

// AuthSpec configures elevation session timing. Domains may override the
// global windows individually.
type AuthSpec struct {
	GracePeriodSeconds     int          `toml:"grace_period_seconds"`
	SessionDurationSeconds int          `toml:"session_duration_seconds"`
	Domains                []DomainSpec `toml:"domain"`
}

// DomainSpec overrides session timing for one privilege domain.
type DomainSpec struct {
	Name                   string `toml:"name"`
	GracePeriodSeconds     int    `toml:"grace_period_seconds"`
	SessionDurationSeconds int    `toml:"session_duration_seconds"`
}

// SupervisorSpec configures the privileged process supervisor.
type SupervisorSpec struct {
	WatchdogTimeoutSeconds int `toml:"watchdog_timeout_seconds"`
	// TailLines is the number of trailing output lines kept for diagnostics.
	TailLines int `toml:"tail_lines"`
	// Retention is the per-scan event replay window.
	Retention int `toml:"retention"`
}

// ElevationSpec configures the privilege elevation mechanism.
type ElevationSpec struct {
	// PkexecPath overrides the pkexec binary location; empty selects the
	// platform default.
	PkexecPath string `toml:"pkexec_path"`
}

// LoggingSpec configures log output.
type LoggingSpec struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
	// Dir receives one machine-readable JSON log file per run. Empty
	// disables file logging.
	Dir string `toml:"dir"`
}

// ApplyDefaults fills unset fields with their default values.
func ApplyDefaults(spec *Spec) {
	if spec.Auth.GracePeriodSeconds == 0 {
		spec.Auth.GracePeriodSeconds = DefaultGracePeriodSeconds
	}
	if spec.Auth.SessionDurationSeconds == 0 {
		spec.Auth.SessionDurationSeconds = DefaultSessionDurationSeconds
	}
	if spec.Supervisor.WatchdogTimeoutSeconds == 0 {
		spec.Supervisor.WatchdogTimeoutSeconds = DefaultWatchdogTimeoutSeconds
	}
	if spec.Supervisor.TailLines == 0 {
		spec.Supervisor.TailLines = DefaultTailLines
	}
	if spec.Supervisor.Retention == 0 {
		spec.Supervisor.Retention = DefaultRetention
	}
	if spec.Validator.MaxArguments == 0 {
		spec.Validator.MaxArguments = DefaultMaxArguments
	}
	if spec.Logging.Level == "" {
		spec.Logging.Level = DefaultLogLevel
	}
}

// GracePeriod returns the global grace window as a duration.
func (a AuthSpec) GracePeriod() time.Duration {
	return time.Duration(a.GracePeriodSeconds) * time.Second
}

// SessionDuration returns the global session window as a duration.
func (a AuthSpec) SessionDuration() time.Duration {
	return time.Duration(a.SessionDurationSeconds) * time.Second
}

// WatchdogTimeout returns the stop escalation bound as a duration.
func (s SupervisorSpec) WatchdogTimeout() time.Duration {
	return time.Duration(s.WatchdogTimeoutSeconds) * time.Second
}

// DomainOverrides converts the per-domain timing entries into the map form
// the session manager consumes. Domains without an explicit override inherit
// the global windows.
func (a AuthSpec) DomainOverrides() map[scantypes.PrivilegeDomain]DomainTiming {
	if len(a.Domains) == 0 {
		return nil
	}
	overrides := make(map[scantypes.PrivilegeDomain]DomainTiming, len(a.Domains))
	for _, d := range a.Domains {
		grace := d.GracePeriodSeconds
		if grace == 0 {
			grace = a.GracePeriodSeconds
		}
		session := d.SessionDurationSeconds
		if session == 0 {
			session = a.SessionDurationSeconds
		}
		overrides[scantypes.PrivilegeDomain(d.Name)] = DomainTiming{
			GracePeriod:     time.Duration(grace) * time.Second,
			SessionDuration: time.Duration(session) * time.Second,
		}
	}
	return overrides
}

// DomainTiming is a resolved per-domain timing override.
type DomainTiming struct {
	GracePeriod     time.Duration
	SessionDuration time.Duration
}
