package docker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ezenkico/deploy-commander/sequencer/models"
	"github.com/ezenkico/deploy-commander/sequencer/services"

	"github.com/moby/moby/client"
)

// CheckHealth runs the service health check inside its container and
// reports the command's exit code.
func (p *DockerPlatform) CheckHealth(ctx context.Context, service models.ServiceDescriptor, containerID string) (models.ProbeResult, error) {
	if !service.HasHealthCheck() {
		return models.ProbeResult{}, fmt.Errorf("service %q has no healthcheck", service.Name)
	}

	cmd, err := healthCommand(service.HealthCheck.Test)
	if err != nil {
		return models.ProbeResult{}, fmt.Errorf("service %q: %w", service.Name, err)
	}

	exec, err := p.client.ExecCreate(ctx, containerID, client.ExecCreateOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return models.ProbeResult{}, fmt.Errorf("exec create in %q: %w", service.Name, err)
	}

	attach, err := p.client.ExecAttach(ctx, exec.ID, client.ExecAttachOptions{})
	if err != nil {
		return models.ProbeResult{}, fmt.Errorf("exec attach in %q: %w", service.Name, err)
	}
	defer attach.Close()

	// Closing the hijacked connection unblocks the read when ctx ends first.
	stop := context.AfterFunc(ctx, attach.Close)
	defer stop()

	var out bytes.Buffer
	if err := services.DemuxDockerLogs(&out, &out, attach.Reader); err != nil {
		if ctx.Err() != nil {
			return models.ProbeResult{}, ctx.Err()
		}
		return models.ProbeResult{}, fmt.Errorf("exec read output in %q: %w", service.Name, err)
	}

	inspect, err := p.client.ExecInspect(ctx, exec.ID, client.ExecInspectOptions{})
	if err != nil {
		return models.ProbeResult{}, fmt.Errorf("exec inspect in %q: %w", service.Name, err)
	}
	if inspect.Running {
		return models.ProbeResult{}, fmt.Errorf("health check in %q still running", service.Name)
	}

	return models.ProbeResult{
		ExitCode: inspect.ExitCode,
		Output:   out.String(),
	}, nil
}

// healthCommand turns a compose style test into an argv:
// ["CMD", args...] runs args, ["CMD-SHELL", script] runs script with /bin/sh,
// anything else is taken as argv.
func healthCommand(test []string) ([]string, error) {
	if len(test) == 0 {
		return nil, fmt.Errorf("empty healthcheck test")
	}

	switch test[0] {
	case "NONE":
		return nil, fmt.Errorf("healthcheck is disabled")
	case "CMD":
		if len(test) < 2 {
			return nil, fmt.Errorf("healthcheck CMD without a command")
		}
		return test[1:], nil
	case "CMD-SHELL":
		if len(test) != 2 {
			return nil, fmt.Errorf("healthcheck CMD-SHELL takes exactly one script")
		}
		return []string{"/bin/sh", "-c", test[1]}, nil
	default:
		if len(test) == 1 {
			return []string{"/bin/sh", "-c", test[0]}, nil
		}
		return test, nil
	}
}
