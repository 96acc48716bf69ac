package config

import (
	"github.com/scanwarden/scanwarden/internal/authsession"
	"github.com/scanwarden/scanwarden/internal/cmdvalidate"
	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// ValidatorConfig converts the parsed validator section into the allowlist
// configuration the command validator consumes.
func (v ValidatorSpec) ValidatorConfig() *cmdvalidate.Config {
	cfg := &cmdvalidate.Config{
		AllowedRoots: v.AllowedRoots,
		MaxArguments: v.MaxArguments,
	}
	for _, rule := range v.Rules {
		cfg.Rules = append(cfg.Rules, cmdvalidate.ExecutableRule{
			Path:  rule.Path,
			Flags: rule.Flags,
		})
	}
	if v.IntMin != nil {
		cfg.IntMin = *v.IntMin
	}
	if v.IntMax != nil {
		cfg.IntMax = *v.IntMax
	}
	return cfg
}

// SessionTiming converts the parsed auth section into the session manager's
// global timing plus per-domain overrides.
func (a AuthSpec) SessionTiming() (authsession.Timing, map[scantypes.PrivilegeDomain]authsession.Timing) {
	global := authsession.Timing{
		GracePeriod:     a.GracePeriod(),
		SessionDuration: a.SessionDuration(),
	}
	resolved := a.DomainOverrides()
	if len(resolved) == 0 {
		return global, nil
	}
	overrides := make(map[scantypes.PrivilegeDomain]authsession.Timing, len(resolved))
	for domain, t := range resolved {
		overrides[domain] = authsession.Timing{
			GracePeriod:     t.GracePeriod,
			SessionDuration: t.SessionDuration,
		}
	}
	return global, overrides
}
