package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/nerrad567/dashauth/internal/auth"
	"github.com/nerrad567/dashauth/internal/infrastructure/mqtt"
)

// DefaultBufferSize is the MQTT publish queue length used when none is given.
const DefaultBufferSize = 256

// Publisher sends one message. *mqtt.Client satisfies it.
type Publisher interface {
	PublishEvent(topic string, payload []byte) error
}

// MQTTPublisher queues auth events and publishes them from Run.
type MQTTPublisher struct {
	pub     Publisher
	topics  mqtt.Topics
	logger  *slog.Logger
	ch      chan auth.Event
	dropped atomic.Uint64
}

// NewMQTTPublisher returns a publisher with a queue of buffer events.
// Call Run to start delivery.
func NewMQTTPublisher(pub Publisher, topics mqtt.Topics, logger *slog.Logger, buffer int) *MQTTPublisher {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTPublisher{
		pub:    pub,
		topics: topics,
		logger: logger,
		ch:     make(chan auth.Event, buffer),
	}
}

// Record enqueues e without blocking. A full queue drops the event.
func (p *MQTTPublisher) Record(_ context.Context, e auth.Event) {
	select {
	case p.ch <- e:
	default:
		p.dropped.Add(1)
		p.logger.Warn("auth event queue full, dropping event", "event", e.Type)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *MQTTPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Run publishes queued events until ctx is cancelled, then flushes what is
// left in the queue and returns.
func (p *MQTTPublisher) Run(ctx context.Context) {
	for {
		select {
		case e := <-p.ch:
			p.publish(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-p.ch:
					p.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (p *MQTTPublisher) publish(e auth.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encoding auth event", "event", e.Type, "error", err)
		return
	}
	if err := p.pub.PublishEvent(p.topics.AuthEvent(string(e.Type)), payload); err != nil {
		p.logger.Warn("publishing auth event failed", "event", e.Type, "error", err)
	}
}
