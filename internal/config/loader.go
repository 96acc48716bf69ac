package config

import (
	"fmt"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/scanwarden/scanwarden/internal/common"
)

// Loader handles loading and validating configuration files.
type Loader struct {
	fs common.FileSystem
}

// NewLoader creates a config loader backed by the real filesystem.
func NewLoader() *Loader {
	return NewLoaderWithFS(common.NewDefaultFileSystem())
}

// NewLoaderWithFS creates a config loader with a custom FileSystem.
func NewLoaderWithFS(fs common.FileSystem) *Loader {
	return &Loader{fs: fs}
}

// Load reads, parses and validates the configuration at path. Defaults are
// applied before validation, so a minimal file with only an allowlist is
// complete.
func (l *Loader) Load(path string) (*Spec, error) {
	if path == "" || !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %q (must be absolute)", ErrInvalidConfigPath, path)
	}

	content, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return l.Parse(content)
}

// Parse parses and validates configuration content.
func (l *Loader) Parse(content []byte) (*Spec, error) {
	var spec Spec
	if err := toml.Unmarshal(content, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&spec)
	if err := Validate(&spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks a spec for semantic errors: missing allowlist entries,
// relative paths, inverted timing windows. Structural (TOML) errors are the
// parser's business; this covers everything the parser cannot see.
func Validate(spec *Spec) error {
	if len(spec.Validator.Rules) == 0 {
		return &FieldError{Field: "validator.rule", Detail: "at least one executable rule is required"}
	}
	for i, rule := range spec.Validator.Rules {
		if rule.Path == "" {
			return &FieldError{Field: fmt.Sprintf("validator.rule[%d].path", i), Detail: "path is required"}
		}
		if !filepath.IsAbs(rule.Path) {
			return &FieldError{Field: fmt.Sprintf("validator.rule[%d].path", i), Detail: "path must be absolute"}
		}
	}
	for i, root := range spec.Validator.AllowedRoots {
		if !filepath.IsAbs(root) {
			return &FieldError{Field: fmt.Sprintf("validator.allowed_roots[%d]", i), Detail: "root must be absolute"}
		}
	}

	if spec.Auth.GracePeriodSeconds < 0 || spec.Auth.SessionDurationSeconds < 0 {
		return &FieldError{Field: "auth", Detail: "timing windows must not be negative"}
	}
	if spec.Auth.GracePeriodSeconds > spec.Auth.SessionDurationSeconds {
		return &FieldError{Field: "auth.grace_period_seconds", Detail: "grace period must not exceed session duration"}
	}
	seen := make(map[string]struct{}, len(spec.Auth.Domains))
	for i, d := range spec.Auth.Domains {
		if d.Name == "" {
			return &FieldError{Field: fmt.Sprintf("auth.domain[%d].name", i), Detail: "name is required"}
		}
		if _, dup := seen[d.Name]; dup {
			return &FieldError{Field: fmt.Sprintf("auth.domain[%d].name", i), Detail: "duplicate domain " + d.Name}
		}
		seen[d.Name] = struct{}{}
		grace := d.GracePeriodSeconds
		if grace == 0 {
			grace = spec.Auth.GracePeriodSeconds
		}
		session := d.SessionDurationSeconds
		if session == 0 {
			session = spec.Auth.SessionDurationSeconds
		}
		if grace < 0 || session < 0 || grace > session {
			return &FieldError{Field: fmt.Sprintf("auth.domain[%d]", i), Detail: "timing windows invalid for domain " + d.Name}
		}
	}

	if spec.Supervisor.WatchdogTimeoutSeconds < 0 {
		return &FieldError{Field: "supervisor.watchdog_timeout_seconds", Detail: "must not be negative"}
	}
	if spec.Elevation.PkexecPath != "" && !filepath.IsAbs(spec.Elevation.PkexecPath) {
		return &FieldError{Field: "elevation.pkexec_path", Detail: "path must be absolute"}
	}

	switch spec.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &FieldError{Field: "logging.level", Detail: "must be one of debug, info, warn, error"}
	}
	return nil
}
