package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

// fakePlatform records every call and answers health checks from a script.
type fakePlatform struct {
	mu sync.Mutex

	calls   []string
	started []string
	stopped []string
	volumes []string

	// store holds the named volumes that exist on the fake host; created
	// lists each one the moment it was first made.
	store   map[string]bool
	created []string

	buildErr map[string]error
	startErr map[string]error
	stopErr  map[string]error

	// health returns the probe result for the n-th (1-based) check of a service.
	health       func(service string, n int) (models.ProbeResult, error)
	healthChecks map[string]int

	torndown       bool
	removedVolumes bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		buildErr:     map[string]error{},
		startErr:     map[string]error{},
		stopErr:      map[string]error{},
		healthChecks: map[string]int{},
		store:        map[string]bool{},
		health: func(string, int) (models.ProbeResult, error) {
			return models.ProbeResult{ExitCode: 0}, nil
		},
	}
}

func (f *fakePlatform) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakePlatform) PrepareImage(ctx context.Context, svc models.ServiceDescriptor) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("image:" + svc.Name)
	if err := f.buildErr[svc.Name]; err != nil {
		return "", err
	}
	if svc.Image != "" {
		return svc.Image, nil
	}
	return "stack-" + svc.Name + ":latest", nil
}

func (f *fakePlatform) EnsureVolumes(ctx context.Context, volumes []models.VolumeDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range volumes {
		f.record("volume:" + v.Name)
		f.volumes = append(f.volumes, v.Name)
		if !f.store[v.Name] {
			f.store[v.Name] = true
			f.created = append(f.created, v.Name)
		}
	}
	return nil
}

func (f *fakePlatform) StartService(ctx context.Context, svc models.ServiceDescriptor, image string) (models.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start:" + svc.Name)
	if err := f.startErr[svc.Name]; err != nil {
		return models.StartResult{}, err
	}
	f.started = append(f.started, svc.Name)

	ports := map[int]int{}
	for _, b := range svc.Bindings {
		ports[b.ContainerPort] = b.HostPort
	}
	return models.StartResult{ContainerID: "cid-" + svc.Name, Ports: ports}, nil
}

func (f *fakePlatform) CheckHealth(ctx context.Context, svc models.ServiceDescriptor, containerID string) (models.ProbeResult, error) {
	f.mu.Lock()
	f.healthChecks[svc.Name]++
	n := f.healthChecks[svc.Name]
	f.record(fmt.Sprintf("health:%s:%d", svc.Name, n))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.ProbeResult{}, err
	}
	return f.health(svc.Name, n)
}

func (f *fakePlatform) StopService(ctx context.Context, svc models.ServiceDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop:" + svc.Name)
	if err := f.stopErr[svc.Name]; err != nil {
		return err
	}
	f.stopped = append(f.stopped, svc.Name)
	return nil
}

func (f *fakePlatform) Teardown(ctx context.Context, removeVolumes bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torndown = true
	f.removedVolumes = removeVolumes
	if removeVolumes {
		f.store = map[string]bool{}
	}
	return nil
}

func (f *fakePlatform) startedServices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

func (f *fakePlatform) volumeExists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store[name]
}

func (f *fakePlatform) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.ServiceEvent
	err    error
}

func (r *recordingSink) Publish(ctx context.Context, ev models.ServiceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) types(service string) []models.ServiceEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.ServiceEventType{}
	for _, ev := range r.events {
		if ev.Service == service {
			out = append(out, ev.Type)
		}
	}
	return out
}

var errBoom = errors.New("boom")
