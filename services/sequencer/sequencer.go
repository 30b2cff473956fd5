// Package sequencer starts a deployment one service at a time, in dependency
// order, and gates every dependent on its dependencies' health checks.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ezenkico/deploy-commander/sequencer/interfaces"
	"github.com/ezenkico/deploy-commander/sequencer/metrics"
	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services"
	"github.com/ezenkico/deploy-commander/sequencer/services/graph"
)

// DefaultHealth is used for health check fields neither the stack nor the
// caller set.
var DefaultHealth = models.HealthDefaults{
	Interval: 2 * time.Second,
	Timeout:  5 * time.Second,
	Retries:  30,
}

type Sequencer struct {
	platform interfaces.Platform
	events   interfaces.EventSink
	metrics  *metrics.Sequencer
	logger   zerolog.Logger
	config   models.Configuration
	defaults models.HealthDefaults
}

type Option func(*Sequencer)

func WithEventSink(sink interfaces.EventSink) Option {
	return func(s *Sequencer) { s.events = sink }
}

func WithMetrics(m *metrics.Sequencer) Option {
	return func(s *Sequencer) { s.metrics = m }
}

func WithHealthDefaults(d models.HealthDefaults) Option {
	return func(s *Sequencer) { s.defaults = d }
}

func New(platform interfaces.Platform, config models.Configuration, logger zerolog.Logger, opts ...Option) *Sequencer {
	s := &Sequencer{
		platform: platform,
		config:   config,
		logger:   logger.With().Str("component", "sequencer").Logger(),
		defaults: DefaultHealth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks a deployment without touching the platform.
func Validate(d models.Deployment) (*graph.Graph, error) {
	g, err := graph.Build(d.Services)
	if err != nil {
		return nil, err
	}

	declared, err := services.DeclaredVolumeSet(d.Volumes)
	if err != nil {
		return nil, err
	}
	if err := services.CheckServiceVolumeMounts(d.Services, declared); err != nil {
		return nil, err
	}
	if err := services.CheckHostPortCollisions(d.Services); err != nil {
		return nil, err
	}

	return g, nil
}

// Start brings the deployment up. It returns the results of every service it
// started, including on failure, so callers can report partial progress.
func (s *Sequencer) Start(ctx context.Context, d models.Deployment) ([]models.StartResult, error) {
	g, err := Validate(d)
	if err != nil {
		return nil, s.fail(ctx, "", &StartupError{Kind: ErrInvalidDescriptor, Err: err})
	}

	order, err := g.Order()
	if err != nil {
		return nil, s.fail(ctx, "", &StartupError{Kind: ErrInvalidDescriptor, Err: err})
	}

	volumes := make(map[string]models.VolumeDescriptor, len(d.Volumes))
	for _, v := range d.Volumes {
		volumes[v.Name] = v
	}

	results := make([]models.StartResult, 0, len(order))
	satisfied := make(map[string]struct{}, len(order))

	for _, svc := range order {
		log := s.logger.With().Str("service", svc.Name).Logger()

		// Never start anything once the operator has aborted.
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("start %q: %w", svc.Name, err)
		}

		for _, e := range g.Dependencies(svc.Name) {
			if _, ok := satisfied[e.To]; !ok {
				return results, fmt.Errorf("start %q: dependency %q has not reached %q", svc.Name, e.To, e.Condition)
			}
		}

		s.publish(ctx, svc.Name, models.ServiceEventStarting, "")

		// 1) Image
		image, err := s.platform.PrepareImage(ctx, svc)
		if err != nil {
			if ctx.Err() != nil {
				return results, fmt.Errorf("prepare image for %q: %w", svc.Name, ctx.Err())
			}
			return results, s.fail(ctx, svc.Name, &StartupError{Kind: ErrBuildFailure, Service: svc.Name, Err: err})
		}

		// 2) Volumes this service mounts
		needed := []models.VolumeDescriptor{}
		for _, m := range svc.Volumes {
			if m.Type == models.VolumeMountNamed {
				needed = append(needed, volumes[m.Source])
			}
		}
		if len(needed) > 0 {
			if err := s.platform.EnsureVolumes(ctx, needed); err != nil {
				if ctx.Err() != nil {
					return results, fmt.Errorf("ensure volumes for %q: %w", svc.Name, ctx.Err())
				}
				return results, s.fail(ctx, svc.Name, &StartupError{Kind: ErrStartFailure, Service: svc.Name, Err: err})
			}
		}

		// 3) Container
		res, err := s.platform.StartService(ctx, svc, image)
		if err != nil {
			if ctx.Err() != nil {
				return results, fmt.Errorf("start %q: %w", svc.Name, ctx.Err())
			}
			return results, s.fail(ctx, svc.Name, &StartupError{Kind: ErrStartFailure, Service: svc.Name, Err: err})
		}
		res.Service = svc.Name
		res.Image = image
		s.metrics.ServiceStarted(svc.Name)
		s.publish(ctx, svc.Name, models.ServiceEventStarted, res.ContainerID)
		log.Info().Str("container", res.ContainerID).Interface("ports", res.Ports).Msg("service started")

		// 4) Health gate
		if svc.HasHealthCheck() {
			started := time.Now()
			attempts, err := s.waitHealthy(ctx, svc, res.ContainerID)
			res.Attempts = attempts
			if err != nil {
				results = append(results, res)
				if ctx.Err() != nil {
					return results, fmt.Errorf("wait for %q to become healthy: %w", svc.Name, ctx.Err())
				}
				s.publish(ctx, svc.Name, models.ServiceEventUnhealthy, err.Error())
				return results, s.fail(ctx, svc.Name, &StartupError{Kind: ErrDependencyUnhealthy, Service: svc.Name, Attempts: attempts, Err: err})
			}
			res.Healthy = true
			res.WaitedFor = time.Since(started)
			s.metrics.Healthy(svc.Name, res.WaitedFor)
			s.publish(ctx, svc.Name, models.ServiceEventHealthy, "")
			log.Info().Int("attempts", attempts).Dur("waited", res.WaitedFor).Msg("service healthy")
		}

		satisfied[svc.Name] = struct{}{}
		results = append(results, res)
	}

	return results, nil
}

// Stop stops every service, dependents first. It keeps going past failures
// and returns them joined.
func (s *Sequencer) Stop(ctx context.Context, d models.Deployment) error {
	g, err := graph.Build(d.Services)
	if err != nil {
		return &StartupError{Kind: ErrInvalidDescriptor, Err: err}
	}
	order, err := g.Reverse()
	if err != nil {
		return &StartupError{Kind: ErrInvalidDescriptor, Err: err}
	}

	var errs []error
	for _, svc := range order {
		if err := s.platform.StopService(ctx, svc); err != nil {
			errs = append(errs, fmt.Errorf("stop %q: %w", svc.Name, err))
			continue
		}
		s.publish(ctx, svc.Name, models.ServiceEventStopped, "")
		s.logger.Info().Str("service", svc.Name).Msg("service stopped")
	}

	return errors.Join(errs...)
}

// Down removes the project's containers and networks. Named volumes are only
// removed when removeVolumes is set.
func (s *Sequencer) Down(ctx context.Context, removeVolumes bool) error {
	if err := s.platform.Teardown(ctx, removeVolumes); err != nil {
		return fmt.Errorf("teardown project %q: %w", s.config.Project, err)
	}
	s.logger.Info().Bool("volumes", removeVolumes).Msg("project torn down")
	return nil
}

func (s *Sequencer) fail(ctx context.Context, service string, err *StartupError) error {
	s.metrics.StartupFailure(service, KindLabel(err.Kind))
	if service != "" {
		s.publish(ctx, service, models.ServiceEventFailed, err.Error())
	}
	s.logger.Error().Err(err).Str("service", service).Str("kind", KindLabel(err.Kind)).Msg("startup halted")
	return err
}

func (s *Sequencer) publish(ctx context.Context, service string, typ models.ServiceEventType, message string) {
	if s.events == nil {
		return
	}

	ev := models.ServiceEvent{
		ID:      uuid.New(),
		Run:     s.config.Run,
		Project: s.config.Project,
		Service: service,
		Type:    typ,
		Message: message,
		At:      time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("service", service).Str("event", string(typ)).Msg("publish event")
	}
}
