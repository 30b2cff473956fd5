package docker

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services"

	"github.com/moby/moby/client"
)

// StopService stops the service container and keeps it, so a later start
// reuses its named volumes untouched. A missing container is not an error.
func (p *DockerPlatform) StopService(ctx context.Context, service models.ServiceDescriptor) error {
	containerName := services.DockerServiceName(p.config.Project, service.Name)

	if _, err := p.client.ContainerStop(ctx, containerName, client.ContainerStopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("stop container %q: %w", containerName, err)
	}

	return nil
}

// RestartService starts a previously stopped service container in place.
func (p *DockerPlatform) RestartService(ctx context.Context, service models.ServiceDescriptor) error {
	containerName := services.DockerServiceName(p.config.Project, service.Name)

	if _, err := p.client.ContainerStart(ctx, containerName, client.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("start container %q: %w", containerName, err)
	}

	return nil
}

// RemoveService stops and removes the service container. Its named volumes
// are kept.
func (p *DockerPlatform) RemoveService(ctx context.Context, service models.ServiceDescriptor) error {
	containerName := services.DockerServiceName(p.config.Project, service.Name)

	// Stop (best-effort) then remove
	_, _ = p.client.ContainerStop(ctx, containerName, client.ContainerStopOptions{})
	_, err := p.client.ContainerRemove(ctx, containerName, client.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: false,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %q: %w", containerName, err)
	}

	return nil
}
