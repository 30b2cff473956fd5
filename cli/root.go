// Package cli is the sequencer command line: it loads a stack file, resolves
// a variant and drives the Docker platform through the sequencer.
package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ezenkico/deploy-commander/sequencer/config"
	"github.com/ezenkico/deploy-commander/sequencer/interfaces"
	"github.com/ezenkico/deploy-commander/sequencer/logging"
	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services/agent"
	"github.com/ezenkico/deploy-commander/sequencer/services/sequencer"
	"github.com/ezenkico/deploy-commander/sequencer/services/stack"
)

type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// Execute loads the environment configuration and runs the command line.
func Execute(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return NewRootCommand(cfg).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Flags default to the values in cfg
// and override them when given.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	a := &app{cfg: cfg, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "sequencer",
		Short:         "Health-gated startup of a container stack",
		Long:          "Builds or pulls images, creates volumes and starts services one at a time in dependency order, waiting for each dependency's health check before starting its dependents.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			a.logger = logging.NewLogger(a.cfg)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&cfg.StackFile, "file", "f", cfg.StackFile, "stack file (env STACK_FILE)")
	flags.StringVar(&cfg.Variant, "variant", cfg.Variant, "environment variant to resolve (env VARIANT)")
	flags.StringVarP(&cfg.ProjectName, "project", "p", cfg.ProjectName, "project name, defaults to the stack name (env PROJECT_NAME)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (env LOG_LEVEL)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or console (env LOG_FORMAT)")

	root.AddCommand(
		newUpCommand(a),
		newStopCommand(a),
		newDownCommand(a),
		newValidateCommand(a),
		newPortsCommand(a),
		newVerifyVolumeCommand(a),
	)

	return root
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, sequencer.ErrInvalidDescriptor):
		return 2
	case errors.Is(err, sequencer.ErrDependencyUnhealthy):
		return 3
	case errors.Is(err, sequencer.ErrBuildFailure):
		return 4
	case errors.Is(err, sequencer.ErrStartFailure):
		return 5
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func (a *app) loadStack() (*models.Stack, error) {
	s, err := stack.LoadStack(a.cfg.StackFile)
	if err != nil {
		return nil, &sequencer.StartupError{Kind: sequencer.ErrInvalidDescriptor, Err: err}
	}
	return s, nil
}

func (a *app) resolve(s *models.Stack, variant string) (models.Deployment, error) {
	d, err := stack.Resolve(s, variant, filepath.Dir(a.cfg.StackFile))
	if err != nil {
		return models.Deployment{}, &sequencer.StartupError{Kind: sequencer.ErrInvalidDescriptor, Err: err}
	}
	if a.cfg.ProjectName != "" {
		d.Project = a.cfg.ProjectName
	}
	return d, nil
}

// loadDeployment resolves the configured variant, which must be set.
func (a *app) loadDeployment() (models.Deployment, error) {
	if a.cfg.Variant == "" {
		return models.Deployment{}, errors.New("a variant is required (--variant or VARIANT)")
	}
	s, err := a.loadStack()
	if err != nil {
		return models.Deployment{}, err
	}
	return a.resolve(s, a.cfg.Variant)
}

// variants returns the configured variant, or every variant of the stack
// when none is set.
func (a *app) variants(s *models.Stack) []string {
	if a.cfg.Variant != "" {
		return []string{a.cfg.Variant}
	}
	return s.VariantNames()
}

func (a *app) runConfiguration(d models.Deployment, action models.Action) models.Configuration {
	return models.Configuration{
		Project: d.Project,
		Run:     uuid.New(),
		Variant: d.Variant,
		Action:  action,
	}
}

func (a *app) runLogger(run models.Configuration) zerolog.Logger {
	return a.logger.With().
		Str("project", run.Project).
		Str("variant", run.Variant).
		Str("run", run.Run.String()).
		Str("action", string(run.Action)).
		Logger()
}

// eventSink returns the controller client, or nil when no endpoint is set.
func (a *app) eventSink() (interfaces.EventSink, error) {
	if a.cfg.AgentEndpoint == "" {
		return nil, nil
	}
	ac, err := agent.NewAgentCommunication(a.cfg.AgentEndpoint, a.cfg.Token)
	if err != nil {
		return nil, err
	}
	return ac, nil
}

func (a *app) sequencerOptions() ([]sequencer.Option, error) {
	opts := []sequencer.Option{sequencer.WithHealthDefaults(a.cfg.HealthDefaults())}

	sink, err := a.eventSink()
	if err != nil {
		return nil, err
	}
	if sink != nil {
		opts = append(opts, sequencer.WithEventSink(sink))
	}
	return opts, nil
}
