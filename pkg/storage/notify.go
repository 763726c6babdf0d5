package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cluster-gateway/pkg/bus"
)

const notifyLogPrefix = "storage:notify"

// Change event names.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// ChangeEvent is emitted when a record is created, updated, or deleted.
type ChangeEvent struct {
	Kind      string          `json:"kind"`
	Key       string          `json:"key"`
	Event     string          `json:"event"`
	Record    json.RawMessage `json:"record,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// Notifier publishes record change events.
type Notifier interface {
	PublishChange(ctx context.Context, event *ChangeEvent) error
}

// NoOpNotifier is a Notifier that does nothing.
type NoOpNotifier struct{}

// PublishChange is a no-op.
func (n *NoOpNotifier) PublishChange(_ context.Context, _ *ChangeEvent) error {
	return nil
}

// CallbackNotifier is a Notifier that calls a callback function (for testing).
type CallbackNotifier struct {
	callback func(ctx context.Context, event *ChangeEvent) error
}

// NewCallbackNotifier creates a new CallbackNotifier.
func NewCallbackNotifier(cb func(ctx context.Context, event *ChangeEvent) error) *CallbackNotifier {
	return &CallbackNotifier{callback: cb}
}

// PublishChange calls the callback.
func (n *CallbackNotifier) PublishChange(ctx context.Context, event *ChangeEvent) error {
	return n.callback(ctx, event)
}

// CommsNotifier publishes change events to COMMS subjects.
type CommsNotifier struct {
	nc *comms.Conn
}

// NewCommsNotifier creates a new CommsNotifier.
func NewCommsNotifier(nc *comms.Conn) *CommsNotifier {
	return &CommsNotifier{nc: nc}
}

// PublishChange publishes a ChangeEvent to the per-kind change subject.
// Subscribers filter with wildcards (storage.notify.Host.*, storage.notify.>).
func (n *CommsNotifier) PublishChange(_ context.Context, event *ChangeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", notifyLogPrefix, err)
	}

	subject := bus.BuildNotifySubject(event.Kind, event.Event)
	if err := n.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", notifyLogPrefix, subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for %s/%s", notifyLogPrefix, event.Event, event.Kind, event.Key))
	return nil
}
