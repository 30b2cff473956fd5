package docker

import (
	"github.com/rs/zerolog"

	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services"

	"github.com/moby/moby/client"
)

// DockerPlatform implements interfaces.Platform for plain Docker (Engine API).
// Every object it creates is labelled with the project so teardown can find it.
type DockerPlatform struct {
	client *client.Client
	config models.Configuration
	logger zerolog.Logger

	networkReady bool
}

// NewDockerPlatform initializes the Docker platform using environment variables
// (e.g. DOCKER_HOST) and API version negotiation.
func NewDockerPlatform(config models.Configuration, logger zerolog.Logger) (*DockerPlatform, error) {
	c, err := client.New(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, err
	}

	return &DockerPlatform{
		client: c,
		config: config,
		logger: logger.With().Str("component", "docker").Logger(),
	}, nil
}

func (p *DockerPlatform) Close() error {
	return p.client.Close()
}

func (p *DockerPlatform) labels(extra map[string]string) map[string]string {
	l := map[string]string{
		services.LabelProject: p.config.Project,
		services.LabelRun:     p.config.Run.String(),
	}
	if p.config.Variant != "" {
		l[services.LabelVariant] = p.config.Variant
	}
	for k, v := range extra {
		l[k] = v
	}
	return l
}

func (p *DockerPlatform) projectFilter() client.Filters {
	return make(client.Filters).
		Add("label", services.LabelProject+"="+p.config.Project)
}
