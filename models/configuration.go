package models

import "github.com/google/uuid"

type Action string

const (
	ActionUp   Action = "up"
	ActionStop Action = "stop"
	ActionDown Action = "down"
)

// Configuration identifies one invocation against a stack.
type Configuration struct {
	Project string    `json:"project"` // label scope for every docker object
	Run     uuid.UUID `json:"run"`
	Variant string    `json:"variant"`
	Action  Action    `json:"action"`
}
