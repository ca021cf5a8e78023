// Package feed pushes edit-request lifecycle events to connected admin
// clients over WebSocket, so the review queue updates without polling.
package feed

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"rollbook/cmd/internal/editflow"
)

const subscriberQueueSize = 64

// wireEvent is the JSON shape sent to subscribers.
type wireEvent struct {
	Type        string    `json:"type"`
	RequestID   string    `json:"request_id"`
	VoterID     string    `json:"voter_id"`
	CandidateID string    `json:"candidate_id"`
	FieldName   string    `json:"field_name"`
	Status      string    `json:"status"`
	At          time.Time `json:"at"`
}

// Hub fans workflow events out to subscribers. A subscriber that cannot
// keep up has its queue dropped-from, never blocks the publisher.
type Hub struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewHub constructs a Hub. log may be nil.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, subs: make(map[chan []byte]struct{})}
}

var _ editflow.Notifier = (*Hub)(nil)

// Subscribe registers a new subscriber queue. The caller must drain it and
// call the returned cancel func on teardown.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberQueueSize)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// EditRequestChanged implements editflow.Notifier.
func (h *Hub) EditRequestChanged(ev editflow.Event) {
	msg, err := json.Marshal(wireEvent{
		Type:        ev.Type,
		RequestID:   ev.RequestID,
		VoterID:     ev.VoterID,
		CandidateID: ev.CandidateID,
		FieldName:   ev.FieldName,
		Status:      string(ev.Status),
		At:          ev.At,
	})
	if err != nil {
		h.log.Error("feed.marshal.failed", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.log.Warn("feed.subscriber.backpressure", "dropped", true)
		}
	}
}

// SubscriberCount reports how many clients are attached.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
