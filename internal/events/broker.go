package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscriber represents one event stream subscriber.
type Subscriber struct {
	ID           string
	DeploymentID string // "" subscribes to all deployments
	Ch           chan *Event
	CreatedAt    time.Time
}

// Broker fans deployment events out to zero or more subscribers. It
// implements Sink, so the orchestrator can publish through it without
// knowing about any transport.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// NewBroker creates a new event broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]*Subscriber),
		logger:      logger,
	}
}

// Subscribe registers a subscriber for events. If deploymentID is empty the
// subscriber receives events for every deployment.
func (b *Broker) Subscribe(deploymentID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscriber{
		ID:           uuid.New().String(),
		DeploymentID: deploymentID,
		Ch:           make(chan *Event, 100),
		CreatedAt:    time.Now(),
	}
	b.subscribers[sub.ID] = sub
	b.logger.Debug("event subscriber added",
		"subscriber_id", sub.ID,
		"deployment_id", deploymentID,
	)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.ID]; exists {
		close(sub.Ch)
		delete(b.subscribers, sub.ID)
		b.logger.Debug("event subscriber removed", "subscriber_id", sub.ID)
	}
}

// Publish sends an event to all matching subscribers. A subscriber whose
// channel is full misses the event rather than stalling the pipeline.
func (b *Broker) Publish(event *Event) {
	if event == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.DeploymentID != "" && sub.DeploymentID != event.DeploymentID {
			continue
		}
		select {
		case sub.Ch <- event:
		default:
			b.logger.Warn("subscriber channel full, dropping event",
				"subscriber_id", sub.ID,
				"event_type", event.Type,
				"deployment_id", event.DeploymentID,
			)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
