package backend

import (
	"context"
	"math/rand"
	"time"
)

// MockStream generates synthetic ticks for local development, when the
// terminal runs without a live backend. When Prices is set the sequence is
// replayed once per symbol; otherwise a simple random walk runs forever.
type MockStream struct {
	StartPrice float64
	Step       float64
	Interval   time.Duration
	Prices     []float64 // optional scripted sequence
}

// SubscribeTicks satisfies the same contract as StreamClient.SubscribeTicks.
// Connectivity reports up immediately; there is nothing to reconnect to.
func (m *MockStream) SubscribeTicks(ctx context.Context, symbols []string) *TickSubscription {
	ticks := make(chan Tick, 100)
	connectivity := make(chan bool, 8)
	sub := &TickSubscription{
		Ticks:        ticks,
		Connectivity: connectivity,
		done:         make(chan struct{}),
	}

	if len(symbols) == 0 {
		symbols = []string{"R_100"}
	}
	interval := m.Interval
	if interval == 0 {
		interval = time.Second
	}
	price := m.StartPrice
	if price == 0 {
		price = 100.0
	}
	step := m.Step
	if step == 0 {
		step = 0.5
	}

	go func() {
		defer close(ticks)
		defer close(connectivity)

		notify(connectivity, true)
		t := time.NewTicker(interval)
		defer t.Stop()

		scripted := m.Prices
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			case <-t.C:
			}

			if m.Prices != nil {
				if len(scripted) == 0 {
					// Sequence replayed; hold the line open until closed.
					continue
				}
				price = scripted[0]
				scripted = scripted[1:]
			} else {
				price += (rand.Float64()*2 - 1) * step
			}

			for _, sym := range symbols {
				tick := Tick{Symbol: sym, Price: price, Timestamp: time.Now().Unix()}
				select {
				case ticks <- tick:
				case <-sub.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return sub
}
