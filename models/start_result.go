package models

import "time"

// StartResult records what the sequencer did for one service.
type StartResult struct {
	Service     string        `json:"service"`
	Image       string        `json:"image"`
	ContainerID string        `json:"container_id"`
	Ports       map[int]int   `json:"ports,omitempty"` // container port -> host port
	Healthy     bool          `json:"healthy"`
	Attempts    int           `json:"attempts,omitempty"`
	WaitedFor   time.Duration `json:"waited_for,omitempty"`
}

func (r StartResult) HostPort(containerPort int) (int, bool) {
	p, ok := r.Ports[containerPort]
	return p, ok
}
