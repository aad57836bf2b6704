package events

import (
	"context"
	"time"
)

// Publisher is the engine-facing send surface. Publish never returns an
// error to reasoning code — notification delivery is best-effort by
// design. It sends to subscribers one after another on the caller's
// goroutine, so a stalled subscriber holds the caller for up to
// writeTimeout before it is dropped.
type Publisher struct {
	manager *ConnectionManager
	now     func() time.Time
}

func NewPublisher(manager *ConnectionManager) *Publisher {
	return &Publisher{manager: manager, now: time.Now}
}

// Publish routes the event to its channel and broadcasts it.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload map[string]any) {
	p.manager.Broadcast(ctx, Event{
		Type:      eventType,
		Channel:   channelFor(eventType),
		Payload:   payload,
		Timestamp: p.now().UTC(),
	})
}
