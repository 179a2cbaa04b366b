package worker

import "context"

// EventTransition is what OnEventTransition receives: enough to let a
// future webhook-delivery subsystem decide what to fire without reaching
// back into the worker's internals.
type EventTransition struct {
	MessageID string
	EventType string
	Metadata  map[string]any
}

// EventTransitionHook is the seam a future webhooks-out subsystem attaches
// to, per spec.md §1's Non-goal on webhook delivery mechanics — the
// transition point is kept, the delivery mechanics are not built.
type EventTransitionHook interface {
	OnEventTransition(ctx context.Context, t EventTransition)
}

type noopHook struct{}

func (noopHook) OnEventTransition(context.Context, EventTransition) {}
