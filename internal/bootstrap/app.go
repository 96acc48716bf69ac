package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/scanwarden/scanwarden/internal/authsession"
	"github.com/scanwarden/scanwarden/internal/cmdvalidate"
	"github.com/scanwarden/scanwarden/internal/config"
	"github.com/scanwarden/scanwarden/internal/elevation"
	"github.com/scanwarden/scanwarden/internal/lifecycle"
	"github.com/scanwarden/scanwarden/internal/scantemplate"
	"github.com/scanwarden/scanwarden/internal/scantypes"
	"github.com/scanwarden/scanwarden/internal/supervisor"
)

// App bundles the assembled subsystems for one run.
type App struct {
	Config      *config.Spec
	Coordinator *lifecycle.Coordinator
	Sessions    *authsession.Manager
	Templates   *scantemplate.Registry
	Mechanism   *elevation.PkexecMechanism
}

// LoadConfig loads the configuration file, or synthesizes a default spec
// from the built-in scan templates when no path is given.
func LoadConfig(path string) (*config.Spec, error) {
	if path != "" {
		return config.NewLoader().Load(path)
	}

	spec := &config.Spec{}
	for _, def := range scantemplate.DefaultDefinitions() {
		rule := config.RuleSpec{Path: def.Executable, Flags: def.FixedArgs}
		spec.Validator.Rules = append(spec.Validator.Rules, rule)
		if def.DefaultTarget != "" {
			spec.Validator.AllowedRoots = append(spec.Validator.AllowedRoots, def.DefaultTarget)
		}
	}
	config.ApplyDefaults(spec)
	if err := config.Validate(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// BuildApp assembles the full subsystem stack from a validated spec.
func BuildApp(spec *config.Spec, logger *slog.Logger) (*App, error) {
	validator, err := cmdvalidate.NewValidator(spec.Validator.ValidatorConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to build command validator: %w", err)
	}

	timing, overrides := spec.Auth.SessionTiming()
	sessions, err := authsession.NewManager(timing, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to build session manager: %w", err)
	}

	templates, err := scantemplate.NewRegistry(scantemplate.DefaultDefinitions())
	if err != nil {
		return nil, fmt.Errorf("failed to build template registry: %w", err)
	}

	mechanism := elevation.NewPkexecMechanism(spec.Elevation.PkexecPath, nil, logger)

	sup, err := supervisor.New(supervisor.Options{
		Validator:       validator,
		Sessions:        sessions,
		Mechanism:       mechanism,
		Signaler:        elevation.DirectSignaler{},
		Logger:          logger,
		WatchdogTimeout: spec.Supervisor.WatchdogTimeout(),
		Retention:       spec.Supervisor.Retention,
		TailLines:       spec.Supervisor.TailLines,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build supervisor: %w", err)
	}

	coordinator, err := lifecycle.New(lifecycle.Options{
		Supervisor: sup,
		Templates:  templates,
		Sessions:   sessions,
		Logger:     logger,
		Channels:   []scantypes.ChannelID{scantypes.ChannelMalware, scantypes.ChannelRootkit},
		Retention:  spec.Supervisor.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build scan coordinator: %w", err)
	}

	return &App{
		Config:      spec,
		Coordinator: coordinator,
		Sessions:    sessions,
		Templates:   templates,
		Mechanism:   mechanism,
	}, nil
}
