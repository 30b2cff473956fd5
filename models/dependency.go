package models

type DependencyCondition string

const (
	// ConditionServiceHealthy gates the dependent on the target's health check.
	ConditionServiceHealthy DependencyCondition = "service_healthy"
)

func (c DependencyCondition) Supported() bool {
	return c == ConditionServiceHealthy
}

// Dependency is a typed ordering edge: the owning service may only start once
// Service satisfies Condition.
type Dependency struct {
	Service   string              `json:"service"`
	Condition DependencyCondition `json:"condition"`
}
