package stack

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ezenkico/deploy-commander/sequencer/models"
)

// Resolve substitutes the variant values into every service and parses
// ports, mounts and health checks. Relative paths are resolved against
// baseDir, normally the directory holding the stack file.
func Resolve(s *models.Stack, variantName, baseDir string) (models.Deployment, error) {
	variant, err := s.Variant(variantName)
	if err != nil {
		return models.Deployment{}, err
	}

	baseDir, err = filepath.Abs(baseDir)
	if err != nil {
		return models.Deployment{}, fmt.Errorf("resolve base dir: %w", err)
	}

	r := &resolver{variant: variant, baseDir: baseDir}

	d := models.Deployment{
		Project: s.Name,
		Variant: variant.Name,
	}

	for _, name := range s.ServiceNames() {
		svc, err := r.service(name, s.Services[name])
		if err != nil {
			return models.Deployment{}, fmt.Errorf("service %q: %w", name, err)
		}
		d.Services = append(d.Services, svc)
	}

	volNames := make([]string, 0, len(s.Volumes))
	for n := range s.Volumes {
		volNames = append(volNames, n)
	}
	sort.Strings(volNames)
	for _, n := range volNames {
		d.Volumes = append(d.Volumes, models.VolumeDescriptor{Name: n, Labels: s.Volumes[n].Labels})
	}

	return d, nil
}

type resolver struct {
	variant models.EnvironmentVariant
	baseDir string
}

// expand replaces ${NAME}, ${NAME:-default} and $NAME with variant values.
// "$$" is a literal "$". A reference to an undefined value without a
// default is an error.
func (r *resolver) expand(in string) (string, error) {
	var missing []string
	lookup := func(key string) string {
		name, def, hasDef := strings.Cut(key, ":-")
		if v, ok := r.variant.Lookup(name); ok && v != "" {
			return v
		}
		if hasDef {
			return def
		}
		if v, ok := r.variant.Lookup(name); ok {
			return v
		}
		missing = append(missing, name)
		return ""
	}

	parts := strings.Split(in, "$$")
	for i, part := range parts {
		parts[i] = os.Expand(part, lookup)
	}
	out := strings.Join(parts, "$")
	if len(missing) > 0 {
		return "", fmt.Errorf("variant %q does not define %s", r.variant.Name, strings.Join(missing, ", "))
	}
	return out, nil
}

func (r *resolver) expandAll(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		v, err := r.expand(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *resolver) expandMap(in map[string]string) (map[string]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		ev, err := r.expand(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = ev
	}
	return out, nil
}

func (r *resolver) path(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.baseDir, p)
}

func (r *resolver) service(name string, in models.StackService) (models.ServiceDescriptor, error) {
	out := models.ServiceDescriptor{Name: name}
	var err error

	// 1) image or build context
	if in.Build != nil {
		ctxDir, err := r.expand(in.Build.Context)
		if err != nil {
			return out, fmt.Errorf("build: %w", err)
		}
		args, err := r.expandMap(in.Build.Args)
		if err != nil {
			return out, fmt.Errorf("build args: %w", err)
		}
		dockerfile := in.Build.Dockerfile
		if dockerfile == "" {
			dockerfile = "Dockerfile"
		}
		out.Build = &models.BuildSpec{Context: r.path(ctxDir), Dockerfile: dockerfile, Args: args}
	} else {
		if out.Image, err = r.expand(in.Image); err != nil {
			return out, fmt.Errorf("image: %w", err)
		}
	}

	// 2) environment
	if out.Environment, err = r.expandMap(in.Environment); err != nil {
		return out, fmt.Errorf("environment %w", err)
	}

	// 3) ports
	for _, p := range in.Ports {
		ep, err := r.expand(p)
		if err != nil {
			return out, fmt.Errorf("ports: %w", err)
		}
		b, err := ParsePort(ep)
		if err != nil {
			return out, err
		}
		out.Bindings = append(out.Bindings, b)
	}

	// 4) volumes
	for _, v := range in.Volumes {
		ev, err := r.expand(v)
		if err != nil {
			return out, fmt.Errorf("volumes: %w", err)
		}
		m, err := ParseVolume(ev)
		if err != nil {
			return out, err
		}
		if m.Type == models.VolumeMountBind {
			m.Source = r.path(m.Source)
		}
		out.Volumes = append(out.Volumes, m)
	}

	// 5) dependencies, sorted for stable output
	deps := make([]string, 0, len(in.DependsOn))
	for dep := range in.DependsOn {
		deps = append(deps, dep)
	}
	sort.Strings(deps)
	for _, dep := range deps {
		out.DependsOn = append(out.DependsOn, models.Dependency{Service: dep, Condition: in.DependsOn[dep].Condition})
	}

	// 6) health check
	if in.HealthCheck != nil {
		if out.HealthCheck, err = r.healthCheck(in.HealthCheck); err != nil {
			return out, fmt.Errorf("healthcheck: %w", err)
		}
	}

	if out.Command, err = r.expandAll(in.Command); err != nil {
		return out, fmt.Errorf("command: %w", err)
	}

	return out, nil
}

func (r *resolver) healthCheck(in *models.StackHealthCheck) (*models.HealthCheck, error) {
	test, err := r.expandAll(in.Test)
	if err != nil {
		return nil, err
	}
	if len(test) == 0 || strings.EqualFold(test[0], "NONE") {
		return nil, nil
	}

	hc := &models.HealthCheck{Test: test, Retries: in.Retries}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"interval", in.Interval, &hc.Interval},
		{"timeout", in.Timeout, &hc.Timeout},
		{"start_period", in.StartPeriod, &hc.StartPeriod},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return hc, nil
}

// ParsePort parses "host:container", "ip:host:container" with an optional
// "/tcp" or "/udp" suffix. A host port is required.
func ParsePort(s string) (models.BindingSpec, error) {
	var b models.BindingSpec

	spec, proto, hasProto := strings.Cut(s, "/")
	if hasProto {
		proto = strings.ToLower(proto)
		if proto != "tcp" && proto != "udp" {
			return b, fmt.Errorf("port %q: unsupported protocol %q", s, proto)
		}
		b.Protocol = proto
	}

	idx := strings.LastIndex(spec, ":")
	if idx < 0 {
		return b, fmt.Errorf("port %q: expected host:container", s)
	}
	hostPart, containerPart := spec[:idx], spec[idx+1:]

	if i := strings.LastIndex(hostPart, ":"); i >= 0 {
		ip := strings.Trim(hostPart[:i], "[]")
		if _, err := netip.ParseAddr(ip); err != nil {
			return b, fmt.Errorf("port %q: invalid host ip %q", s, ip)
		}
		b.HostIP = ip
		hostPart = hostPart[i+1:]
	}

	var err error
	if b.HostPort, err = parsePortNumber(hostPart); err != nil {
		return b, fmt.Errorf("port %q: host port: %w", s, err)
	}
	if b.ContainerPort, err = parsePortNumber(containerPart); err != nil {
		return b, fmt.Errorf("port %q: container port: %w", s, err)
	}
	return b, nil
}

func parsePortNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("%d is out of range 1-65535", n)
	}
	return n, nil
}

// ParseVolume parses "source:target[:ro|rw]". Sources starting with "." or
// "/" are host paths; anything else names a stack volume.
func ParseVolume(s string) (models.VolumeMount, error) {
	var m models.VolumeMount

	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
	case 3:
		switch parts[2] {
		case "ro":
			m.ReadOnly = true
		case "rw":
		default:
			return m, fmt.Errorf("volume %q: unknown mode %q (use ro or rw)", s, parts[2])
		}
	default:
		return m, fmt.Errorf("volume %q: expected source:target[:ro|rw]", s)
	}

	m.Source, m.Target = parts[0], parts[1]
	if m.Source == "" || m.Target == "" {
		return m, fmt.Errorf("volume %q: source and target are required", s)
	}

	if strings.HasPrefix(m.Source, ".") || strings.HasPrefix(m.Source, "/") {
		m.Type = models.VolumeMountBind
	} else {
		m.Type = models.VolumeMountNamed
	}
	return m, nil
}
