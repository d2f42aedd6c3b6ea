package detector

import (
	"encoding/json"
	"time"

	"terminal-core/pkg/backend"
)

// Side is the direction of a fired signal.
type Side string

const (
	SideCall Side = "CALL"
	SidePut  Side = "PUT"
)

// Relation places the latest price against the window mean.
type Relation string

const (
	RelationNone  Relation = ""
	RelationAbove Relation = "above"
	RelationBelow Relation = "below"
	RelationEqual Relation = "equal"
)

// State is the detector lifecycle phase.
type State string

const (
	StateWarmup     State = "WARMUP"
	StateArmed      State = "ARMED"
	StateMonitoring State = "MONITORING"
)

// Signal is a directional trade trigger. Immutable once created.
type Signal struct {
	Symbol  string    `json:"symbol"`
	Side    Side      `json:"side"`
	Price   float64   `json:"price"`
	Average float64   `json:"average"`
	Time    time.Time `json:"time"`
}

// Detector keeps a bounded price window for one instrument and fires a signal
// when the price crosses its arithmetic mean, subject to a cooldown. All
// crossover state lives here, owned by exactly one automation session.
type Detector struct {
	symbol   string
	period   int
	cooldown time.Duration

	prices []float64
	// prevRelation holds the last non-equal relation observed. A tie (price
	// exactly on the mean) is never stored, so it cannot erase crossover
	// history before a real cross completes.
	prevRelation Relation
	lastSignalAt time.Time

	now func() time.Time
}

// New builds a detector for one (symbol, period, cooldown) instance.
// Period defaults to 20 and is clamped to at least 1.
func New(symbol string, period int, cooldown time.Duration) *Detector {
	if period <= 0 {
		period = 20
	}
	return &Detector{
		symbol:   symbol,
		period:   period,
		cooldown: cooldown,
		prices:   make([]float64, 0, period),
		now:      time.Now,
	}
}

// Symbol returns the instrument this detector watches.
func (d *Detector) Symbol() string { return d.symbol }

// warmupLen is the minimum window length before relations are evaluated.
func (d *Detector) warmupLen() int {
	if d.period < 3 {
		return 3
	}
	return d.period
}

// State reports the current lifecycle phase.
func (d *Detector) State() State {
	switch {
	case len(d.prices) < d.warmupLen():
		return StateWarmup
	case d.prevRelation == RelationNone:
		return StateArmed
	default:
		return StateMonitoring
	}
}

// Window returns a copy of the current price window, oldest first.
func (d *Detector) Window() []float64 {
	out := make([]float64, len(d.prices))
	copy(out, d.prices)
	return out
}

// Reset drops all accumulated state, returning the detector to warmup.
func (d *Detector) Reset() {
	d.prices = d.prices[:0]
	d.prevRelation = RelationNone
	d.lastSignalAt = time.Time{}
}

// OnTick ingests one quote and returns a signal when a crossover fires.
// The cooldown clock is updated before OnTick returns, so no second signal
// can pass the gate regardless of how long downstream dispatch takes.
func (d *Detector) OnTick(t backend.Tick) *Signal {
	if t.Symbol != d.symbol {
		return nil
	}

	d.prices = append(d.prices, t.Price)
	if len(d.prices) > d.period {
		d.prices = d.prices[1:]
	}

	if len(d.prices) < d.warmupLen() {
		return nil
	}

	mean := average(d.prices)
	relation := relate(t.Price, mean)

	var sig *Signal
	if d.shouldFire(relation) {
		now := d.now()
		d.lastSignalAt = now
		sig = &Signal{
			Symbol:  d.symbol,
			Side:    sideFor(relation),
			Price:   t.Price,
			Average: mean,
			Time:    now,
		}
	}

	if relation != RelationEqual {
		d.prevRelation = relation
	}
	return sig
}

func (d *Detector) shouldFire(relation Relation) bool {
	if d.prevRelation == RelationNone || d.prevRelation == RelationEqual {
		return false
	}
	if relation == RelationEqual || relation == d.prevRelation {
		return false
	}
	if !d.lastSignalAt.IsZero() && d.now().Sub(d.lastSignalAt) < d.cooldown {
		return false
	}
	return true
}

func relate(price, mean float64) Relation {
	switch {
	case price > mean:
		return RelationAbove
	case price < mean:
		return RelationBelow
	default:
		return RelationEqual
	}
}

func sideFor(r Relation) Side {
	if r == RelationAbove {
		return SideCall
	}
	return SidePut
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// persistedState is the serializable snapshot of a detector.
type persistedState struct {
	Prices       []float64 `json:"prices"`
	PrevRelation Relation  `json:"prev_relation"`
	LastSignalAt int64     `json:"last_signal_at"` // epoch seconds, 0 when none
}

// GetState returns the serializable state of the detector.
func (d *Detector) GetState() (json.RawMessage, error) {
	s := persistedState{
		Prices:       d.Window(),
		PrevRelation: d.prevRelation,
	}
	if !d.lastSignalAt.IsZero() {
		s.LastSignalAt = d.lastSignalAt.Unix()
	}
	return json.Marshal(s)
}

// SetState restores a previously persisted snapshot.
func (d *Detector) SetState(data json.RawMessage) error {
	var s persistedState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	d.prices = s.Prices
	if d.prices == nil {
		d.prices = make([]float64, 0, d.period)
	}
	if len(d.prices) > d.period {
		d.prices = d.prices[len(d.prices)-d.period:]
	}
	d.prevRelation = s.PrevRelation
	if s.LastSignalAt > 0 {
		d.lastSignalAt = time.Unix(s.LastSignalAt, 0)
	} else {
		d.lastSignalAt = time.Time{}
	}
	return nil
}
