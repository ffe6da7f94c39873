package realtime

import (
	"sync"

	"github.com/zfogg/daredrop/pkg/logger"
	"github.com/zfogg/daredrop/pkg/metrics"
)

// Channel is one joined change subscription. Events are delivered in arrival
// order. A full buffer drops the event and raises Resync instead of blocking
// the connection's read loop.
type Channel struct {
	client *Client
	topic  string
	filter ChangeFilter

	mu      sync.Mutex
	joinRef string
	closed  bool
	events  chan ChangeEvent
	resync  chan struct{}
	err     error
	dropped int64

	closeOnce sync.Once
}

func newChannel(c *Client, topic string, filter ChangeFilter, buffer int) *Channel {
	if buffer <= 0 {
		buffer = 1
	}
	return &Channel{
		client: c,
		topic:  topic,
		filter: filter,
		events: make(chan ChangeEvent, buffer),
		resync: make(chan struct{}, 1),
	}
}

// Topic returns the channel topic
func (ch *Channel) Topic() string {
	return ch.topic
}

// Filter returns the change filter the channel joined with
func (ch *Channel) Filter() ChangeFilter {
	return ch.filter
}

// Events delivers row changes. It is closed when the channel closes or the server ends it.
func (ch *Channel) Events() <-chan ChangeEvent {
	return ch.events
}

// Resync fires when events may have been missed and the owner should reload authoritatively
func (ch *Channel) Resync() <-chan struct{} {
	return ch.resync
}

// Err returns why the channel ended, nil after a local Close
func (ch *Channel) Err() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.err
}

// Dropped returns the number of events dropped on a full buffer
func (ch *Channel) Dropped() int64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.dropped
}

// Close leaves the channel. Calling Close more than once is a no-op.
func (ch *Channel) Close() {
	ch.closeOnce.Do(func() {
		joinRef := ch.currentJoinRef()
		ch.finish(nil)
		ch.client.forget(ch)
		if err := ch.client.send(ch.topic, eventLeave, struct{}{}, joinRef); err != nil {
			logger.Debug("Leave not sent", "topic", ch.topic, "error", err)
		}
	})
}

func (ch *Channel) currentJoinRef() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.joinRef
}

func (ch *Channel) setJoinRef(ref string) {
	ch.mu.Lock()
	ch.joinRef = ref
	ch.mu.Unlock()
}

func (ch *Channel) deliver(evt ChangeEvent) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	select {
	case ch.events <- evt:
	default:
		ch.dropped++
		metrics.Get().RealtimeDroppedTotal.WithLabelValues(ch.filter.Table).Inc()
		logger.Warn("Channel buffer full, dropping event", "topic", ch.topic, "type", evt.Type)
		ch.signalResyncLocked()
	}
}

func (ch *Channel) signalResync() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.closed {
		ch.signalResyncLocked()
	}
}

func (ch *Channel) signalResyncLocked() {
	select {
	case ch.resync <- struct{}{}:
	default:
	}
}

// finish closes the event stream once, recording err as the reason
func (ch *Channel) finish(err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.closed = true
	ch.err = err
	close(ch.events)
}
