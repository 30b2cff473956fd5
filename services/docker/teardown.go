package docker

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/moby/moby/client"
)

func (p *DockerPlatform) TearDownServices(ctx context.Context) error {
	containers, err := p.client.ContainerList(ctx, client.ContainerListOptions{
		All:     true,
		Filters: p.projectFilter(),
	})
	if err != nil {
		return fmt.Errorf("list project containers (project=%s): %w", p.config.Project, err)
	}

	for _, c := range containers.Items {
		// Stop (best-effort) then remove
		_, _ = p.client.ContainerStop(ctx, c.ID, client.ContainerStopOptions{})
		_, err = p.client.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{
			Force:         true,
			RemoveVolumes: false,
		})
		if err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("remove container %q: %w", c.ID, err)
		}
		p.logger.Info().Str("container", c.ID).Msg("container removed")
	}

	return nil
}

func (p *DockerPlatform) TearDownVolumes(ctx context.Context) error {
	vols, err := p.client.VolumeList(ctx, client.VolumeListOptions{
		Filters: p.projectFilter(),
	})
	if err != nil {
		return fmt.Errorf("list project volumes (project=%s): %w", p.config.Project, err)
	}

	for _, v := range vols.Items {
		if v.Name == "" {
			continue
		}

		if _, err := p.client.VolumeRemove(ctx, v.Name, client.VolumeRemoveOptions{}); err != nil {
			// Idempotent: if it vanished, ignore.
			if errdefs.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("remove volume %q: %w", v.Name, err)
		}
		p.logger.Info().Str("volume", v.Name).Msg("volume removed")
	}

	return nil
}

func (p *DockerPlatform) TearDownNetworks(ctx context.Context) error {
	nets, err := p.client.NetworkList(ctx, client.NetworkListOptions{
		Filters: p.projectFilter(),
	})
	if err != nil {
		return fmt.Errorf("list project networks (project=%s): %w", p.config.Project, err)
	}

	for _, n := range nets.Items {
		if n.Name == "" || n.ID == "" {
			continue
		}

		// Prefer removing by ID to avoid name collisions.
		if _, err := p.client.NetworkRemove(ctx, n.ID, client.NetworkRemoveOptions{}); err != nil {
			if errdefs.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("remove network %q (%s): %w", n.Name, n.ID, err)
		}
	}
	p.networkReady = false

	return nil
}

// Teardown removes containers, then volumes when asked, then networks.
func (p *DockerPlatform) Teardown(ctx context.Context, removeVolumes bool) error {
	if err := p.TearDownServices(ctx); err != nil {
		return err
	}
	if removeVolumes {
		if err := p.TearDownVolumes(ctx); err != nil {
			return err
		}
	}
	return p.TearDownNetworks(ctx)
}
