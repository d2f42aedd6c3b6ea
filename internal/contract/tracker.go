package contract

import (
	"context"
	"fmt"
	"log"
	"sync"

	"terminal-core/internal/events"
	"terminal-core/pkg/backend"
)

// Stream abstracts the backend contract tracking channel.
type Stream interface {
	SubscribeContract(ctx context.Context, contractID string) (*backend.ContractSubscription, error)
}

// Tracker follows at most one contract at a time. Starting to track a new
// contract replaces, and closes, the previous tracking channel; every inbound
// frame fully replaces the displayed projection.
type Tracker struct {
	stream Stream
	bus    *events.Bus

	mu      sync.Mutex
	sub     *backend.ContractSubscription
	current *backend.ContractUpdate
}

func NewTracker(stream Stream, bus *events.Bus) *Tracker {
	return &Tracker{stream: stream, bus: bus}
}

// Track switches the tracker to the given contract id. Errors opening the
// channel are reported to the caller but never undo an already completed
// order submission.
func (t *Tracker) Track(ctx context.Context, contractID string) error {
	if contractID == "" {
		return fmt.Errorf("tracker: empty contract id")
	}

	sub, err := t.stream.SubscribeContract(ctx, contractID)
	if err != nil {
		return fmt.Errorf("tracker: open channel for %s: %w", contractID, err)
	}

	t.mu.Lock()
	prev := t.sub
	t.sub = sub
	t.current = nil
	t.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	go t.pump(sub, contractID)
	return nil
}

func (t *Tracker) pump(sub *backend.ContractSubscription, contractID string) {
	for u := range sub.Updates {
		update := u
		t.mu.Lock()
		// A frame from a replaced channel must not clobber the projection of
		// the contract that superseded it, nor reach the dashboard.
		live := t.sub == sub
		if live {
			t.current = &update
		}
		t.mu.Unlock()
		if !live {
			continue
		}

		if t.bus != nil {
			t.bus.Publish(events.EventContractUpdate, update)
		}
	}
	log.Printf("contract: tracking channel for %s closed", contractID)
}

// Current returns a copy of the latest projection, or nil when nothing is
// tracked yet.
func (t *Tracker) Current() *backend.ContractUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	cp := *t.current
	return &cp
}

// Stop closes the active tracking channel, if any. Idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}
