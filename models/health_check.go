package models

import "time"

// HealthCheck is a command run inside the service container; exit code 0
// means the service is ready.
type HealthCheck struct {
	Test        []string      `json:"test"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
	Retries     int           `json:"retries"`
	StartPeriod time.Duration `json:"start_period,omitempty"`
}

// HealthDefaults fills in the timing fields a stack file leaves unset.
type HealthDefaults struct {
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// WithDefaults returns a copy of h with zero timing fields replaced by d.
func (h HealthCheck) WithDefaults(d HealthDefaults) HealthCheck {
	if h.Interval <= 0 {
		h.Interval = d.Interval
	}
	if h.Timeout <= 0 {
		h.Timeout = d.Timeout
	}
	if h.Retries <= 0 {
		h.Retries = d.Retries
	}
	if h.StartPeriod <= 0 {
		h.StartPeriod = d.StartPeriod
	}
	return h
}

// ProbeResult is the outcome of a single health check execution.
type ProbeResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
}

func (r ProbeResult) Healthy() bool {
	return r.ExitCode == 0
}
