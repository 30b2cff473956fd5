package models

import (
	"time"

	"github.com/google/uuid"
)

type ServiceEventType string

const (
	ServiceEventStarting  ServiceEventType = "starting"
	ServiceEventStarted   ServiceEventType = "started"
	ServiceEventHealthy   ServiceEventType = "healthy"
	ServiceEventUnhealthy ServiceEventType = "unhealthy"
	ServiceEventFailed    ServiceEventType = "failed"
	ServiceEventStopped   ServiceEventType = "stopped"
)

type ServiceEvent struct {
	ID      uuid.UUID        `json:"id"`
	Run     uuid.UUID        `json:"run"`
	Project string           `json:"project"`
	Service string           `json:"service"`
	Type    ServiceEventType `json:"type"`
	Message string           `json:"message,omitempty"`
	At      time.Time        `json:"at"`
}
