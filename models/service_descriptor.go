package models

// BuildSpec describes how to produce the service image from a local context.
type BuildSpec struct {
	// Absolute path of the build context directory
	Context string `json:"context"`

	// Dockerfile path relative to Context (default "Dockerfile")
	Dockerfile string `json:"dockerfile,omitempty"`

	Args map[string]string `json:"args,omitempty"`
}

// ServiceDescriptor is a fully resolved service: variant values have been
// substituted and every mount and binding parsed.
type ServiceDescriptor struct {
	Name string `json:"name"`

	// Exactly one of Build or Image is set
	Build *BuildSpec `json:"build,omitempty"`
	Image string     `json:"image,omitempty"`

	Environment map[string]string `json:"environment,omitempty"`
	Bindings    []BindingSpec     `json:"bindings,omitempty"`
	Volumes     []VolumeMount     `json:"volumes,omitempty"`
	DependsOn   []Dependency      `json:"depends_on,omitempty"`
	HealthCheck *HealthCheck      `json:"healthcheck,omitempty"`
	Command     []string          `json:"command,omitempty"`
}

func (s ServiceDescriptor) HasHealthCheck() bool {
	return s.HealthCheck != nil && len(s.HealthCheck.Test) > 0
}

// HostPorts lists every host port the service publishes.
func (s ServiceDescriptor) HostPorts() []int {
	ports := make([]int, 0, len(s.Bindings))
	for _, b := range s.Bindings {
		if b.HostPort > 0 {
			ports = append(ports, b.HostPort)
		}
	}
	return ports
}
