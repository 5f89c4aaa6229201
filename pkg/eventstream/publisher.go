package eventstream

import "context"

// Publisher publishes client events to an event stream backend.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnCompletedEvent) error
	PublishJob(ctx context.Context, event *JobTransitionEvent) error
	Close() error
}
