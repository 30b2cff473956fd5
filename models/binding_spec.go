package models

import "fmt"

// BindingSpec publishes a container port on the host.
type BindingSpec struct {
	HostIP        string `json:"host_ip,omitempty"`
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
	Protocol      string `json:"protocol,omitempty"` // tcp (default) | udp
}

func (b BindingSpec) String() string {
	proto := b.Protocol
	if proto == "" {
		proto = "tcp"
	}
	if b.HostIP != "" {
		return fmt.Sprintf("%s:%d:%d/%s", b.HostIP, b.HostPort, b.ContainerPort, proto)
	}
	return fmt.Sprintf("%d:%d/%s", b.HostPort, b.ContainerPort, proto)
}
