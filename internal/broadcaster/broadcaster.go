// Package broadcaster fans out pipeline events to live subscribers — the
// SSE stream at GET /api/v1/stream and (via Hub, see hub.go) a websocket
// transport. Every subscriber gets its own bounded queue; a slow reader
// never blocks the pipeline, it just misses frames.
//
// Grounded on the teacher's internal/api/websocket.go Hub (broadcast
// channel, write-deadline-guarded fan-out, registration under one mutex);
// adapted from a single flat client set into typed topics with bounded
// per-subscriber channels, since the original system's asyncio.Queue-based
// EventBroadcaster (see original_source/backend/app.py's stream_events)
// drops frames per-subscriber rather than write-blocking the whole hub.
package broadcaster

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic names the kind of event flowing through the broadcaster.
type Topic string

const (
	TopicConnected       Topic = "connected"
	TopicNewReport       Topic = "new_report"
	TopicReportProcessed Topic = "report_processed"
	TopicHazardUpdated   Topic = "hazard_updated"
	TopicEmergencyAlert  Topic = "emergency_alert"
	TopicHazardValidated Topic = "hazard_validated"
	TopicKeepalive       Topic = "keepalive"
)

// subscriberQueueSize bounds how many unread frames a subscriber can fall
// behind by before the broadcaster starts dropping its oldest frames.
const subscriberQueueSize = 64

// keepaliveInterval matches spec §6's idle-keepalive cadence so
// intermediaries (proxies, load balancers) don't time out a quiet SSE
// connection.
const keepaliveInterval = 30 * time.Second

// Envelope is the JSON shape delivered to every subscriber.
type Envelope struct {
	Type      Topic       `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// Subscription is a single subscriber's inbound channel plus its
// unsubscribe hook.
type Subscription struct {
	Frames <-chan []byte
	Cancel func()
}

// Broadcaster is a typed-topic fan-out with bounded, drop-on-backpressure
// per-subscriber queues.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]chan []byte
}

// New creates a Broadcaster with no subscribers. It starts no goroutine;
// run RunKeepalive separately to emit keepalive frames.
func New() *Broadcaster {
	b := &Broadcaster{
		subscribers: make(map[uuid.UUID]chan []byte),
	}
	return b
}

// Subscribe registers a new listener and returns its frame channel and a
// cancel function the caller must invoke when done (typically deferred in
// the SSE handler once the request context is cancelled). Subscribers are
// keyed by a random UUID rather than a counter so a restart-racing client
// (reconnect racing the old connection's teardown) can never collide with
// a still-live subscription.
func (b *Broadcaster) Subscribe() Subscription {
	id := uuid.New()
	b.mu.Lock()
	ch := make(chan []byte, subscriberQueueSize)
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
		b.mu.Unlock()
	}

	return Subscription{Frames: ch, Cancel: cancel}
}

// Frame encodes topic/data as an Envelope and wraps it in SSE framing. It
// is exported so callers that need the identical on-wire representation
// outside of Publish — the websocket Hub mirror, the stream handler's
// initial connected frame — don't hand-roll their own encoding.
func Frame(topic Topic, data interface{}) ([]byte, error) {
	envelope := Envelope{
		Type:      topic,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	return sseFrame(payload), nil
}

// Publish encodes data as an Envelope and fans it out to every subscriber.
// A subscriber whose queue is full has its oldest pending frame dropped to
// make room — publish never blocks on a slow reader.
func (b *Broadcaster) Publish(topic Topic, data interface{}) {
	frame, err := Frame(topic, data)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- frame:
		default:
			// Subscriber is behind; drop its oldest frame and retry once so
			// a burst doesn't starve it indefinitely.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frame:
			default:
			}
		}
	}
}

// RunKeepalive publishes a keepalive frame on every tick until stop is
// closed. The caller runs this in its own goroutine.
func (b *Broadcaster) RunKeepalive(stop <-chan struct{}) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.Publish(TopicKeepalive, nil)
		}
	}
}

// SubscriberCount reports the current number of live subscribers, used by
// the health/stats endpoints.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func sseFrame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, []byte("data: ")...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out
}
