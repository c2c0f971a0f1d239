// Package realtime provides a real-time event broadcasting system used to
// push context-change notifications to WebSocket and MCP subscribers.
package realtime

import (
	"log/slog"
)

// EventPublisher publishes events to EventBus from various sources.
type EventPublisher struct {
	eventBus *DefaultEventBus
	logger   *slog.Logger
	metrics  *RealtimeMetrics
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher(eventBus *DefaultEventBus, logger *slog.Logger, metrics *RealtimeMetrics) *EventPublisher {
	return &EventPublisher{
		eventBus: eventBus,
		logger:   logger.With("component", "event_publisher"),
		metrics:  metrics,
	}
}

// PublishScopeChanged announces that the watcher reparsed and revalidated
// a scope successfully, with the resource kinds the change touched.
func (p *EventPublisher) PublishScopeChanged(scopePath string, kinds []string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"scope": scopePath,
		"kinds": kinds,
	}
	event := NewEvent(EventTypeScopeChanged, data, EventSourceWatcher)
	return p.eventBus.Publish(*event)
}

// PublishResourceChanged announces a single resource kind change within a
// scope, for subscribers that only care about one resource type.
func (p *EventPublisher) PublishResourceChanged(scopePath, kind string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"scope": scopePath,
		"kind":  kind,
	}
	event := NewEvent(EventTypeResourceChanged, data, EventSourceWatcher)
	return p.eventBus.Publish(*event)
}

// PublishScopeDegraded announces that a scope is now serving its last
// known-good record because a reparse or validation pass failed.
func (p *EventPublisher) PublishScopeDegraded(scopePath, reason string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"scope":  scopePath,
		"reason": reason,
	}
	event := NewEvent(EventTypeScopeDegraded, data, EventSourceValidator)
	return p.eventBus.Publish(*event)
}

// PublishNotificationsChanged emits the single coalesced signal an
// invalidation batch produces regardless of how many scopes it touched,
// mirroring MCP's resources/list_changed notification.
func (p *EventPublisher) PublishNotificationsChanged(scopeCount int) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"scopes_affected": scopeCount,
	}
	event := NewEvent(EventTypeNotificationsChanged, data, EventSourceWatcher)
	return p.eventBus.Publish(*event)
}

// PublishPatternStateChanged announces a pattern-runtime state transition
// (Initializing, Running, Completed, Failed, Cancelled) with its current
// phase and progress, mirroring the watcher's scope-change events so WS/MCP
// subscribers can follow pattern execution the same way they follow context
// changes.
func (p *EventPublisher) PublishPatternStateChanged(patternID string, state string, phase string, progress int) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"pattern_id": patternID,
		"state":      state,
		"phase":      phase,
		"progress":   progress,
	}
	event := NewEvent(EventTypePatternStateChanged, data, EventSourcePattern)
	return p.eventBus.Publish(*event)
}

// PublishSystemNotification publishes an operator-facing notification.
func (p *EventPublisher) PublishSystemNotification(level string, message string) error {
	if p.eventBus == nil {
		return nil
	}
	data := map[string]interface{}{
		"level":   level, // info, warning, error
		"message": message,
	}
	event := NewEvent(EventTypeSystemNotification, data, EventSourceSystem)
	return p.eventBus.Publish(*event)
}
