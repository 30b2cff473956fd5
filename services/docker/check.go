package docker

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/ezenkico/deploy-commander/sequencer/services"

	"github.com/moby/moby/client"
)

// checkVolumeOwner makes sure an existing docker volume belongs to this
// project before it is reused. It reports whether the volume exists.
func (p *DockerPlatform) checkVolumeOwner(ctx context.Context, volName string) (bool, error) {
	inspect, err := p.client.VolumeInspect(ctx, volName, client.VolumeInspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect volume %q: %w", volName, err)
	}

	owner := inspect.Volume.Labels[services.LabelProject]
	if owner != "" && owner != p.config.Project {
		return true, fmt.Errorf("volume %q belongs to project %q", volName, owner)
	}

	return true, nil
}

// Ping verifies the docker daemon is reachable.
func (p *DockerPlatform) Ping(ctx context.Context) error {
	if _, err := p.client.Ping(ctx, client.PingOptions{}); err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}
