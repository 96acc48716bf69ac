// Package cmdvalidate implements the secure command validator: a pure
// decision function that approves or rejects a proposed privileged command
// against a fixed allowlist before it is ever handed to the elevation
// mechanism. It holds no mutable state and never panics on malformed input;
// adversarial input is the expected case and is handled as a normal
// rejection.
package cmdvalidate

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// Default bounds applied when the configuration leaves them unset.
const (
	// DefaultMaxArguments caps argv length to defend against resource
	// exhaustion via argv bloat.
	DefaultMaxArguments = 32

	// DefaultIntMin and DefaultIntMax bound numeric arguments.
	DefaultIntMin = 0
	DefaultIntMax = 1 << 20
)

// shellMetaChars are rejected in every argument regardless of destination.
// The supervisor never pipes constructed strings through a shell, so these
// have no legitimate use in an argv.
const shellMetaChars = ";|&$`\n\r"

// ExecutableRule declares the allowed invocation shape for one executable.
type ExecutableRule struct {
	// Path is the absolute executable path, matched byte for byte. No PATH
	// search, no symlink resolution trust.
	Path string

	// Flags is the set of exact flag literals accepted for this executable.
	Flags []string
}

// Config holds the validator's allowlist configuration.
type Config struct {
	// Rules lists the known-safe executables and their accepted flags.
	Rules []ExecutableRule

	// AllowedRoots lists absolute directories under which path-like
	// arguments must resolve.
	AllowedRoots []string

	// MaxArguments caps the argument count; zero means DefaultMaxArguments.
	MaxArguments int

	// IntMin and IntMax bound numeric arguments; both zero means the
	// package defaults.
	IntMin int64
	IntMax int64
}

// Validator approves or rejects CommandSpecs. It is immutable after
// construction and safe for concurrent use.
type Validator struct {
	flagsByExecutable map[string]map[string]struct{}
	allowedRoots      []string
	maxArguments      int
	intMin            int64
	intMax            int64
}

// NewValidator creates a validator from the given configuration. The
// configuration is validated eagerly so a misconfigured allowlist fails at
// startup rather than at first scan.
func NewValidator(cfg *Config) (*Validator, error) {
	if cfg == nil || len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("%w: no executable rules configured", ErrInvalidConfig)
	}

	v := &Validator{
		flagsByExecutable: make(map[string]map[string]struct{}, len(cfg.Rules)),
		maxArguments:      cfg.MaxArguments,
		intMin:            cfg.IntMin,
		intMax:            cfg.IntMax,
	}
	if v.maxArguments <= 0 {
		v.maxArguments = DefaultMaxArguments
	}
	if v.intMin == 0 && v.intMax == 0 {
		v.intMin = DefaultIntMin
		v.intMax = DefaultIntMax
	}
	if v.intMin > v.intMax {
		return nil, fmt.Errorf("%w: integer bounds inverted (min %d > max %d)", ErrInvalidConfig, v.intMin, v.intMax)
	}

	for _, rule := range cfg.Rules {
		if !filepath.IsAbs(rule.Path) || filepath.Clean(rule.Path) != rule.Path {
			return nil, fmt.Errorf("%w: executable path must be absolute and clean: %q", ErrInvalidConfig, rule.Path)
		}
		flags := make(map[string]struct{}, len(rule.Flags))
		for _, f := range rule.Flags {
			flags[f] = struct{}{}
		}
		v.flagsByExecutable[rule.Path] = flags
	}

	for _, root := range cfg.AllowedRoots {
		if !filepath.IsAbs(root) || filepath.Clean(root) != root {
			return nil, fmt.Errorf("%w: allowed root must be absolute and clean: %q", ErrInvalidConfig, root)
		}
		v.allowedRoots = append(v.allowedRoots, root)
	}

	return v, nil
}

// Validate approves or rejects the given spec. A nil return means approval;
// any error is a *ValidationError wrapping a rejection sentinel. Validate is
// pure: it performs no I/O and mutates nothing.
func (v *Validator) Validate(spec scantypes.CommandSpec) error {
	flags, ok := v.flagsByExecutable[spec.ExecutablePath]
	if !ok {
		return &ValidationError{Executable: spec.ExecutablePath, ArgIndex: -1, Reason: ErrUnknownExecutable}
	}

	if len(spec.Args) > v.maxArguments {
		return &ValidationError{Executable: spec.ExecutablePath, ArgIndex: -1, Reason: ErrTooManyArguments}
	}

	for i, arg := range spec.Args {
		if err := v.validateArgument(flags, arg); err != nil {
			return &ValidationError{Executable: spec.ExecutablePath, ArgIndex: i, Arg: arg, Reason: err}
		}
	}

	if spec.WorkDir != "" {
		if err := v.validatePath(spec.WorkDir); err != nil {
			return &ValidationError{Executable: spec.ExecutablePath, ArgIndex: -1, Arg: spec.WorkDir, Reason: err}
		}
	}

	return nil
}

// validateArgument checks one argument against the accepted shapes:
// an exact flag literal, a bounded integer, or a path under an allowed root.
func (v *Validator) validateArgument(flags map[string]struct{}, arg string) error {
	if arg == "" {
		return ErrDisallowedArgument
	}
	if strings.ContainsAny(arg, shellMetaChars) {
		return ErrDisallowedArgument
	}

	if _, ok := flags[arg]; ok {
		return nil
	}

	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		if n < v.intMin || n > v.intMax {
			return ErrDisallowedArgument
		}
		return nil
	}

	if filepath.IsAbs(arg) {
		return v.validatePath(arg)
	}

	return ErrDisallowedArgument
}

// validatePath checks that an absolute path argument contains no parent
// references and resolves under one of the allowed roots. Normalization is
// purely lexical; the validator deliberately does not follow symlinks, since
// symlink trust belongs to neither the validator nor the allowlist.
func (v *Validator) validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathEscape
	}
	for _, segment := range strings.Split(path, string(filepath.Separator)) {
		if segment == ".." {
			return ErrPathEscape
		}
	}

	cleaned := filepath.Clean(path)
	for _, root := range v.allowedRoots {
		if cleaned == root || strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
			return nil
		}
	}
	return ErrPathEscape
}
