package models

// Deployment is a stack resolved against one variant: the input of the
// sequencer.
type Deployment struct {
	Project  string              `json:"project"`
	Variant  string              `json:"variant"`
	Services []ServiceDescriptor `json:"services"`
	Volumes  []VolumeDescriptor  `json:"volumes,omitempty"`
}

func (d Deployment) Service(name string) (ServiceDescriptor, bool) {
	for _, s := range d.Services {
		if s.Name == name {
			return s, true
		}
	}
	return ServiceDescriptor{}, false
}
