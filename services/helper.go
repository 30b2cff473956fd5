package services

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

// Labels put on every docker object the sequencer creates.
const (
	LabelProject = "deploy-commander.project"
	LabelRun     = "deploy-commander.run"
	LabelService = "deploy-commander.service"
	LabelVolume  = "deploy-commander.volume"
	LabelVariant = "deploy-commander.variant"
)

func DemuxDockerLogs(dstOut, dstErr io.Writer, src io.Reader) error {
	r := bufio.NewReader(src)

	header := make([]byte, 8)
	for {
		// Read header
		if _, err := io.ReadFull(r, header); err != nil {
			// Clean EOF: stream ends
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}

		streamType := header[0] // 1=stdout, 2=stderr
		size := binary.BigEndian.Uint32(header[4:8])

		if size == 0 {
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return err
		}

		var w io.Writer
		switch streamType {
		case 2:
			w = dstErr
		default:
			// stdin echo or unknown stream, treat as stdout to avoid dropping data
			w = dstOut
		}

		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write docker log payload: %w", err)
		}
	}
}

func safeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	return s
}

func DockerServiceName(project, service string) string {
	return fmt.Sprintf("%s-%s", safeName(project), safeName(service))
}

func DockerNetworkName(project string) string {
	return fmt.Sprintf("%s-default", safeName(project))
}

func DockerVolumeName(project, volume string) string {
	return fmt.Sprintf("%s-%s", safeName(project), safeName(volume))
}

func sortedNames(services []models.ServiceDescriptor) []string {
	names := make([]string, 0, len(services))
	for _, s := range services {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

func byName(services []models.ServiceDescriptor) map[string]models.ServiceDescriptor {
	m := make(map[string]models.ServiceDescriptor, len(services))
	for _, s := range services {
		m[s.Name] = s
	}
	return m
}

func CheckUniqueServiceNames(services []models.ServiceDescriptor) error {
	seen := make(map[string]struct{}, len(services))
	for _, s := range services {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("service with empty name")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("service %q is declared twice", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func CheckDependsOnServicesExist(services []models.ServiceDescriptor) error {
	known := byName(services)

	// Stable iteration (nicer error messages)
	for _, svcKey := range sortedNames(services) {
		svc := known[svcKey]
		for _, dep := range svc.DependsOn {
			if dep.Service == svcKey {
				return fmt.Errorf("service %q depends_on itself", svcKey)
			}
			if _, ok := known[dep.Service]; !ok {
				return fmt.Errorf("service %q depends_on %q, but %q does not exist", svcKey, dep.Service, dep.Service)
			}
		}
	}

	return nil
}

// CheckDependencyConditions enforces that every edge uses a supported
// condition and that service_healthy only targets services with a health check.
func CheckDependencyConditions(services []models.ServiceDescriptor) error {
	known := byName(services)

	for _, svcKey := range sortedNames(services) {
		for _, dep := range known[svcKey].DependsOn {
			if !dep.Condition.Supported() {
				return fmt.Errorf("service %q depends_on %q with unsupported condition %q", svcKey, dep.Service, dep.Condition)
			}
			target, ok := known[dep.Service]
			if !ok {
				continue
			}
			if dep.Condition == models.ConditionServiceHealthy && !target.HasHealthCheck() {
				return fmt.Errorf("service %q depends_on %q with condition %q, but %q declares no healthcheck", svcKey, dep.Service, dep.Condition, dep.Service)
			}
		}
	}

	return nil
}

func CheckCircularDependencies(services []models.ServiceDescriptor) error {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	known := byName(services)
	state := make(map[string]uint8, len(services))
	var stack []string

	var dfs func(string) error
	dfs = func(node string) error {
		switch state[node] {
		case visiting:
			return fmt.Errorf("circular dependency detected: %s", formatCycle(stack, node))
		case visited:
			return nil
		}

		state[node] = visiting
		stack = append(stack, node)

		for _, dep := range known[node].DependsOn {
			// Existence is checked elsewhere
			if _, ok := known[dep.Service]; !ok {
				continue
			}
			if err := dfs(dep.Service); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[node] = visited
		return nil
	}

	for _, node := range sortedNames(services) {
		if state[node] == unvisited {
			if err := dfs(node); err != nil {
				return err
			}
		}
	}

	return nil
}

// formatCycle renders the part of the DFS stack that closes back on start.
func formatCycle(stack []string, start string) string {
	i := len(stack) - 1
	for i > 0 && stack[i] != start {
		i--
	}

	parts := make([]string, 0, len(stack)-i+1)
	for _, s := range stack[i:] {
		parts = append(parts, fmt.Sprintf("%q", s))
	}
	parts = append(parts, fmt.Sprintf("%q", start))
	return strings.Join(parts, " -> ")
}

func DeclaredVolumeSet(volumes []models.VolumeDescriptor) (map[string]struct{}, error) {
	set := map[string]struct{}{}

	for _, v := range volumes {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			return nil, fmt.Errorf("volumes contains an empty name")
		}
		if _, exists := set[name]; exists {
			return nil, fmt.Errorf("volumes contains duplicate volume %q", name)
		}
		set[name] = struct{}{}
	}

	return set, nil
}

func CheckServiceVolumeMounts(services []models.ServiceDescriptor, declared map[string]struct{}) error {
	for _, svc := range services {
		// Ensure no duplicate mount paths inside a service
		seenTarget := map[string]struct{}{}

		for _, m := range svc.Volumes {
			target := strings.TrimSpace(m.Target)
			if target == "" {
				return fmt.Errorf("service %q has a volume with empty target", svc.Name)
			}
			if !strings.HasPrefix(target, "/") {
				return fmt.Errorf("service %q volume target %q must be absolute", svc.Name, target)
			}
			if _, ok := seenTarget[target]; ok {
				return fmt.Errorf("service %q has duplicate volume target %q", svc.Name, target)
			}
			seenTarget[target] = struct{}{}

			switch m.Type {
			case models.VolumeMountBind:
				if !strings.HasPrefix(m.Source, "/") {
					return fmt.Errorf("service %q bind source %q must be absolute", svc.Name, m.Source)
				}
			case models.VolumeMountNamed:
				if _, ok := declared[m.Source]; !ok {
					return fmt.Errorf("service %q mounts volume %q, but %q is not declared", svc.Name, m.Source, m.Source)
				}
			default:
				return fmt.Errorf("service %q volume %q has unknown type %q", svc.Name, target, m.Type)
			}
		}
	}

	return nil
}

// CheckHostPortCollisions fails when two bindings, in the same or different
// services, would publish the same host address.
func CheckHostPortCollisions(services []models.ServiceDescriptor) error {
	owner := map[string]string{}

	for _, name := range sortedNames(services) {
		svc := byName(services)[name]
		for _, b := range svc.Bindings {
			if b.HostPort <= 0 || b.HostPort > 65535 {
				return fmt.Errorf("service %q has invalid host port %d", name, b.HostPort)
			}
			if b.ContainerPort <= 0 || b.ContainerPort > 65535 {
				return fmt.Errorf("service %q has invalid container port %d", name, b.ContainerPort)
			}
			proto := b.Protocol
			if proto == "" {
				proto = "tcp"
			}
			// An unspecified host IP binds every interface, so it clashes with any IP.
			key := fmt.Sprintf("%d/%s", b.HostPort, proto)
			if prev, ok := owner[key]; ok {
				return fmt.Errorf("host port %s is bound by both %q and %q", key, prev, name)
			}
			owner[key] = name
		}
	}

	return nil
}
