package feed

import (
	"encoding/json"
	"testing"
	"time"

	"rollbook/cmd/internal/editflow"
)

func TestHub_FanOut(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)

	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	if h.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", h.SubscriberCount())
	}

	ev := editflow.Event{
		Type:        "submitted",
		RequestID:   "req-1",
		VoterID:     "voter-1",
		CandidateID: "cand-1",
		FieldName:   "phone",
		Status:      editflow.StatusPending,
		At:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	h.EditRequestChanged(ev)

	for _, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case msg := <-ch:
			var got wireEvent
			if err := json.Unmarshal(msg, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.RequestID != "req-1" || got.Status != "pending" || got.Type != "submitted" {
				t.Fatalf("unexpected event: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive the event")
		}
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	ch, cancel := h.Subscribe()
	cancel()

	h.EditRequestChanged(editflow.Event{Type: "submitted", RequestID: "req-1"})

	select {
	case msg := <-ch:
		t.Fatalf("unsubscribed channel received %q", msg)
	default:
	}
	if h.SubscriberCount() != 0 {
		t.Fatalf("subscriber not removed")
	}
}

func TestHub_SlowSubscriberNeverBlocks(t *testing.T) {
	t.Parallel()

	h := NewHub(nil)
	_, cancel := h.Subscribe()
	defer cancel()

	// Overfill the queue; publishes must all return promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberQueueSize*2; i++ {
			h.EditRequestChanged(editflow.Event{Type: "submitted", RequestID: "req"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher blocked on a slow subscriber")
	}
}
