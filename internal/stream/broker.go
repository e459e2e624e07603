package stream

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/star/satmap/internal/metrics"
	"github.com/star/satmap/internal/tracking"
)

// subscriberBuffer is how many encoded events a slow client may fall behind
// before further events for it are dropped.
const subscriberBuffer = 256

type subscriber struct {
	ch chan []byte
}

// Broker fans session events out to SSE subscribers. It implements
// tracking.Sink: publishing never blocks, a full subscriber buffer drops
// the event for that subscriber only.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *slog.Logger
}

var _ tracking.Sink = (*Broker)(nil)

// NewBroker creates an empty Broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// subscribe registers a subscriber. The returned cancel func must be called
// when the subscriber goes away.
func (b *Broker) subscribe() (<-chan []byte, func()) {
	s := &subscriber{ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s.ch, func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}
}

// Subscribers returns the number of connected subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) publish(v any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.subs) == 0 {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		metrics.IncStreamErrors("marshal_error")
		b.logger.Warn("stream marshal error", "error", err)
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- data:
		default:
			metrics.IncStreamEventsDropped()
		}
	}
}

// PositionUpdated implements tracking.Sink.
func (b *Broker) PositionUpdated(e tracking.PositionEvent) {
	b.publish(buildPositionMessage(e.CatalogID, e.Name, e.Color, e.Position))
}

// TrajectoryUpdated implements tracking.Sink.
func (b *Broker) TrajectoryUpdated(e tracking.TrajectoryEvent) {
	b.publish(buildTrajectoryMessage(e.CatalogID, e.Color, e.GeneratedAt, e.Past, e.Future))
}

// Released implements tracking.Sink.
func (b *Broker) Released(catalogID int) {
	b.publish(releasedMessage{Type: "released", ID: catalogID})
}

// AdvisoryRaised implements tracking.Sink.
func (b *Broker) AdvisoryRaised(a tracking.Advisory) {
	b.publish(buildAdvisoryMessage(a))
}
