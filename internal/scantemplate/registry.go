// Package scantemplate holds the closed set of trusted command templates.
// Every privileged invocation in the system is built here from typed
// parameters; free-form string concatenation of commands is structurally
// impossible for callers.
package scantemplate

import (
	"fmt"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// Definition describes how one scan kind is invoked. Definitions are vetted
// configuration, not user input; the validator still approves every spec
// they produce before launch.
type Definition struct {
	Kind       scantypes.ScanKind
	Domain     scantypes.PrivilegeDomain
	Executable string
	// FixedArgs are always passed, in order, before any target path.
	FixedArgs []string
	// AcceptsTarget reports whether a target path may be appended.
	AcceptsTarget bool
	// DefaultTarget is appended when AcceptsTarget is true and the caller
	// supplies no target. Empty means no default.
	DefaultTarget string
}

// Build constructs a CommandSpec for the given target path. Target is the
// only caller-influenced parameter and is subject to the validator's path
// rules downstream.
func (d Definition) Build(target string) scantypes.CommandSpec {
	args := make([]string, 0, len(d.FixedArgs)+1)
	args = append(args, d.FixedArgs...)
	if d.AcceptsTarget {
		if target == "" {
			target = d.DefaultTarget
		}
		if target != "" {
			args = append(args, target)
		}
	}
	return scantypes.CommandSpec{
		ExecutablePath: d.Executable,
		Args:           args,
		Domain:         d.Domain,
	}
}

// Registry maps scan kinds to their definitions.
type Registry struct {
	defs map[scantypes.ScanKind]Definition
}

// NewRegistry creates a registry from the given definitions. Duplicate kinds
// are an error; a registry with a silently shadowed template would defeat
// the point of a closed set.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{defs: make(map[scantypes.ScanKind]Definition, len(defs))}
	for _, d := range defs {
		if _, exists := r.defs[d.Kind]; exists {
			return nil, fmt.Errorf("duplicate template for scan kind %q", d.Kind)
		}
		r.defs[d.Kind] = d
	}
	return r, nil
}

// Lookup returns the definition for a scan kind.
func (r *Registry) Lookup(kind scantypes.ScanKind) (Definition, error) {
	d, ok := r.defs[kind]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", scantypes.ErrUnknownScanKind, kind)
	}
	return d, nil
}

// Kinds returns the registered scan kinds.
func (r *Registry) Kinds() []scantypes.ScanKind {
	kinds := make([]scantypes.ScanKind, 0, len(r.defs))
	for k := range r.defs {
		kinds = append(kinds, k)
	}
	return kinds
}

// DefaultDefinitions returns the built-in templates for the supported
// scanners. Paths here must agree with the validator allowlist in the
// default configuration.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Kind:          scantypes.ScanKindMalware,
			Domain:        "clamav",
			Executable:    "/usr/bin/clamscan",
			FixedArgs:     []string{"--recursive", "--infected", "--stdout"},
			AcceptsTarget: true,
			DefaultTarget: "/home",
		},
		{
			Kind:       scantypes.ScanKindRootkit,
			Domain:     "rkhunter",
			Executable: "/usr/bin/rkhunter",
			FixedArgs:  []string{"--check", "--sk", "--nocolors"},
		},
	}
}
