package models

type VolumeMountType string

const (
	VolumeMountNamed VolumeMountType = "volume" // named volume declared at stack level
	VolumeMountBind  VolumeMountType = "bind"   // host path
)

type VolumeMount struct {
	Type VolumeMountType `json:"type"`

	// Volume name for named mounts, absolute host path for binds
	Source string `json:"source"`

	// Path inside the container where the volume is mounted
	Target string `json:"target"`

	ReadOnly bool `json:"read_only,omitempty"`
}
