// Package realtime provides a real-time event broadcasting system used to
// push context-change notifications to WebSocket and MCP subscribers.
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a real-time event broadcast to subscribers.
type Event struct {
	// Type is the event type (scope_changed, resource_changed, etc.)
	Type string `json:"type"`

	// ID is a unique event ID (UUID)
	ID string `json:"id"`

	// Data is the event payload (varies by event type)
	Data map[string]interface{} `json:"data"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Source is the event source (watcher, validator, system)
	Source string `json:"source"`

	// Sequence is a sequence number for event ordering (monotonically increasing)
	Sequence int64 `json:"sequence"`
}

// EventType constants for context-change events.
const (
	// EventTypeScopeChanged fires once per watcher invalidation pass for a
	// scope that had at least one affected file.
	EventTypeScopeChanged = "scope_changed"

	// EventTypeResourceChanged fires per resource kind touched within a
	// changed scope (todos, knowledge, decisions, patterns, conventions).
	EventTypeResourceChanged = "resource_changed"

	// EventTypeScopeDegraded fires when a reparse or validation failure
	// leaves a scope serving its last-known-good record.
	EventTypeScopeDegraded = "scope_degraded"

	// EventTypeNotificationsChanged is the MCP resources/list_changed
	// analogue: one coalesced signal per invalidation batch, regardless of
	// how many scopes/resources it touched.
	EventTypeNotificationsChanged = "notifications_changed"

	// EventTypeSystemNotification carries operator-facing messages
	// (startup, shutdown, degraded-mode warnings).
	EventTypeSystemNotification = "system_notification"

	// EventTypePatternStateChanged fires on every pattern-runtime state
	// transition (Initializing, Running, Completed, Failed, Cancelled).
	EventTypePatternStateChanged = "pattern_state_changed"
)

// EventSource constants.
const (
	EventSourceWatcher   = "watcher"
	EventSourceValidator = "validator"
	EventSourceSystem    = "system"
	EventSourcePattern   = "pattern"
)

// NewEvent creates a new Event with the given type, data, and source.
func NewEvent(eventType string, data map[string]interface{}, source string) *Event {
	return &Event{
		Type:      eventType,
		ID:        generateEventID(),
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Sequence:  0, // Will be set by EventBus
	}
}

// generateEventID generates a unique event ID (UUID).
func generateEventID() string {
	return uuid.New().String()
}
