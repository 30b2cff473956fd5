package interfaces

import (
	"context"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

// Platform is the container runtime the sequencer drives. Every call acts on
// a single service; ordering and health gating live in the sequencer.
type Platform interface {
	// PrepareImage builds or pulls the service image and returns its reference.
	PrepareImage(ctx context.Context, service models.ServiceDescriptor) (string, error)

	// EnsureVolumes creates the named volumes that do not exist yet.
	EnsureVolumes(ctx context.Context, volumes []models.VolumeDescriptor) error

	// StartService (re)creates and starts the service container.
	StartService(ctx context.Context, service models.ServiceDescriptor, image string) (models.StartResult, error)

	// CheckHealth runs the service health check command once.
	CheckHealth(ctx context.Context, service models.ServiceDescriptor, containerID string) (models.ProbeResult, error)

	StopService(ctx context.Context, service models.ServiceDescriptor) error

	// Teardown removes every container and network of the project, and its
	// volumes when removeVolumes is set.
	Teardown(ctx context.Context, removeVolumes bool) error
}

// EventSink receives service lifecycle transitions.
type EventSink interface {
	Publish(ctx context.Context, event models.ServiceEvent) error
}
