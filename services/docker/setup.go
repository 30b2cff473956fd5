package docker

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strconv"

	"github.com/containerd/errdefs"
	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

func (p *DockerPlatform) EnsureVolumes(ctx context.Context, volumes []models.VolumeDescriptor) error {
	for _, vol := range volumes {
		name := services.DockerVolumeName(p.config.Project, vol.Name)

		// If it already exists, treat as success.
		exists, err := p.checkVolumeOwner(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		_, err = p.client.VolumeCreate(ctx, client.VolumeCreateOptions{
			Name:   name,
			Labels: p.labels(mergeLabels(vol.Labels, map[string]string{services.LabelVolume: vol.Name})),
		})
		if err != nil {
			// Created concurrently: re-check inspect rather than matching error strings.
			if _, ie := p.client.VolumeInspect(ctx, name, client.VolumeInspectOptions{}); ie == nil {
				continue
			}
			return fmt.Errorf("create volume %q: %w", name, err)
		}
		p.logger.Info().Str("volume", name).Msg("volume created")
	}

	return nil
}

func (p *DockerPlatform) ensureNetwork(ctx context.Context) (string, error) {
	netName := services.DockerNetworkName(p.config.Project)
	if p.networkReady {
		return netName, nil
	}

	_, err := p.client.NetworkInspect(ctx, netName, client.NetworkInspectOptions{})
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return "", fmt.Errorf("inspect network %q: %w", netName, err)
		}
		_, err = p.client.NetworkCreate(ctx, netName, client.NetworkCreateOptions{
			Labels: p.labels(nil),
		})
		if err != nil {
			// Race-safe: re-inspect
			if _, ie := p.client.NetworkInspect(ctx, netName, client.NetworkInspectOptions{}); ie != nil {
				return "", fmt.Errorf("create network %q: %w", netName, err)
			}
		}
	}

	p.networkReady = true
	return netName, nil
}

// StartService replaces any previous container of the service with a fresh
// one and starts it. Named volumes are never removed here.
func (p *DockerPlatform) StartService(ctx context.Context, service models.ServiceDescriptor, image string) (models.StartResult, error) {
	// 1) Network shared by the whole project; the service name is its DNS alias
	netName, err := p.ensureNetwork(ctx)
	if err != nil {
		return models.StartResult{}, err
	}

	// 2) Container name (project-scoped)
	containerName := services.DockerServiceName(p.config.Project, service.Name)

	// 3) Env, mounts, ports
	env := containerEnv(service.Environment)
	mounts := containerMounts(p.config.Project, service.Volumes)
	exposed, portMap, err := portBindings(service.Bindings)
	if err != nil {
		return models.StartResult{}, fmt.Errorf("service %q: %w", service.Name, err)
	}

	// 4) Replace any previous container
	if err := p.RemoveService(ctx, service); err != nil {
		return models.StartResult{}, err
	}

	// 5) Container configs
	cCfg := &container.Config{
		Image:        image,
		Env:          env,
		Labels:       p.labels(map[string]string{services.LabelService: service.Name}),
		ExposedPorts: exposed,
	}
	if len(service.Command) > 0 {
		cCfg.Cmd = service.Command
	}

	hCfg := &container.HostConfig{
		Mounts:       mounts,
		PortBindings: portMap,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
	}

	nCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			netName: {Aliases: []string{service.Name}},
		},
	}

	// 6) Create and start
	created, err := p.client.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:           cCfg,
		HostConfig:       hCfg,
		NetworkingConfig: nCfg,
		Name:             containerName,
	})
	if err != nil {
		return models.StartResult{}, fmt.Errorf("create container %q: %w", containerName, err)
	}

	if _, err := p.client.ContainerStart(ctx, created.ID, client.ContainerStartOptions{}); err != nil {
		// Leave nothing half-created behind, e.g. when the host port is taken.
		_, _ = p.client.ContainerRemove(ctx, created.ID, client.ContainerRemoveOptions{Force: true})
		return models.StartResult{}, fmt.Errorf("start container %q: %w", containerName, err)
	}

	// 7) Confirm it is running
	inspect, err := p.client.ContainerInspect(ctx, created.ID, client.ContainerInspectOptions{})
	if err != nil {
		return models.StartResult{}, fmt.Errorf("inspect container %q: %w", containerName, err)
	}
	if inspect.Container.State != nil && !inspect.Container.State.Running {
		return models.StartResult{}, fmt.Errorf("container %q exited right after start (status %q, exit code %d)",
			containerName, inspect.Container.State.Status, inspect.Container.State.ExitCode)
	}

	ports := make(map[int]int, len(service.Bindings))
	for _, b := range service.Bindings {
		ports[b.ContainerPort] = b.HostPort
	}

	return models.StartResult{
		Service:     service.Name,
		Image:       image,
		ContainerID: created.ID,
		Ports:       ports,
	}, nil
}

func containerEnv(environment map[string]string) []string {
	env := make([]string, 0, len(environment))
	for k, v := range environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)
	return env
}

func containerMounts(project string, volumes []models.VolumeMount) []mount.Mount {
	mounts := make([]mount.Mount, 0, len(volumes))
	for _, vm := range volumes {
		m := mount.Mount{
			Target:   vm.Target,
			ReadOnly: vm.ReadOnly,
		}
		switch vm.Type {
		case models.VolumeMountBind:
			m.Type = mount.TypeBind
			m.Source = vm.Source
		default:
			m.Type = mount.TypeVolume
			m.Source = services.DockerVolumeName(project, vm.Source)
		}
		mounts = append(mounts, m)
	}
	return mounts
}

func portBindings(bindings []models.BindingSpec) (network.PortSet, network.PortMap, error) {
	exposed := network.PortSet{}
	portMap := network.PortMap{}

	for _, b := range bindings {
		proto := b.Protocol
		if proto == "" {
			proto = "tcp"
		}

		port, ok := network.PortFrom(uint16(b.ContainerPort), network.IPProtocol(proto))
		if !ok {
			return nil, nil, fmt.Errorf("invalid container port %d/%s", b.ContainerPort, proto)
		}
		exposed[port] = struct{}{}

		hostIP := "0.0.0.0"
		if b.HostIP != "" {
			hostIP = b.HostIP
		}
		addr, err := netip.ParseAddr(hostIP)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid host_ip %q: %w", hostIP, err)
		}

		portMap[port] = append(portMap[port], network.PortBinding{
			HostIP:   addr,
			HostPort: strconv.Itoa(b.HostPort),
		})
	}

	return exposed, portMap, nil
}

func mergeLabels(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
