package models

// VolumeDescriptor is a named volume owned by the stack. It survives service
// restarts and is only destroyed by an explicit teardown with volume removal.
type VolumeDescriptor struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
}
