package capability

import (
	"context"
	"log"
	"strings"
	"sync"

	"terminal-core/internal/order"
	"terminal-core/pkg/backend"
)

// Family is one of the backend's product families.
type Family string

const (
	FamilyBasic       Family = "basic"
	FamilyMultipliers Family = "multipliers"
	FamilyTurbos      Family = "turbos"
	FamilyAccumulator Family = "accumulator"
)

// Families lists every product family the resolver queries.
var Families = []Family{FamilyBasic, FamilyMultipliers, FamilyTurbos, FamilyAccumulator}

// Fetcher abstracts the backend capability query.
type Fetcher interface {
	ContractsFor(ctx context.Context, symbol, family string) (*backend.CapabilitySet, error)
}

// Snapshot is the capability state for one symbol. A nil family entry means
// that family's fetch failed or has not completed: unknown, not unsupported.
type Snapshot struct {
	Symbol   string                            `json:"symbol"`
	Families map[Family]*backend.CapabilitySet `json:"families"`
}

// Resolver caches the latest capability snapshot per watched symbol. Staleness
// is not tracked; the snapshot is refetched whenever the symbol changes.
type Resolver struct {
	fetcher Fetcher

	mu      sync.Mutex
	gen     uint64
	current Snapshot
}

func NewResolver(f Fetcher) *Resolver {
	return &Resolver{fetcher: f}
}

// Refresh fetches all four families for symbol concurrently and returns the
// resulting snapshot. Each family's failure degrades only that family.
//
// The cached state is guarded by a request generation token: a refresh that
// was superseded before its responses landed never overwrites the cache, no
// matter how late its responses arrive.
func (r *Resolver) Refresh(ctx context.Context, symbol string) Snapshot {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	snap := Snapshot{
		Symbol:   symbol,
		Families: make(map[Family]*backend.CapabilitySet, len(Families)),
	}

	var (
		wg     sync.WaitGroup
		snapMu sync.Mutex
	)
	for _, fam := range Families {
		wg.Add(1)
		go func(fam Family) {
			defer wg.Done()
			set, err := r.fetcher.ContractsFor(ctx, symbol, string(fam))
			if err != nil {
				log.Printf("capability: %s/%s lookup failed: %v", symbol, fam, err)
				set = nil
			}
			snapMu.Lock()
			snap.Families[fam] = set
			snapMu.Unlock()
		}(fam)
	}
	wg.Wait()

	r.mu.Lock()
	if gen == r.gen {
		r.current = snap
	}
	r.mu.Unlock()
	return snap
}

// Current returns the latest installed snapshot.
func (r *Resolver) Current() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// IsSupported reports whether the snapshot permits trading the given engine.
func IsSupported(engine order.Engine, snap Snapshot) bool {
	switch engine {
	case order.EngineCallPut:
		basic := snap.Families[FamilyBasic]
		return contains(basic, "CALL") && contains(basic, "PUT")
	case order.EngineAccumulator:
		if containsAny(snap.Families[FamilyAccumulator], "ACCU", "ACCUMULATOR") {
			return true
		}
		// Some backends expose accumulators under the basic family.
		return containsAny(snap.Families[FamilyBasic], "ACCU", "ACCUMULATOR")
	case order.EngineTurbos:
		return containsAny(snap.Families[FamilyTurbos], "TURBOSLONG", "TURBOSSHORT")
	case order.EngineMultipliers:
		return containsAny(snap.Families[FamilyMultipliers], "MULTUP", "MULTDOWN")
	default:
		return false
	}
}

func contains(set *backend.CapabilitySet, code string) bool {
	if set == nil {
		return false
	}
	for _, t := range set.ContractTypes {
		if strings.EqualFold(t, code) {
			return true
		}
	}
	return false
}

func containsAny(set *backend.CapabilitySet, codes ...string) bool {
	for _, c := range codes {
		if contains(set, c) {
			return true
		}
	}
	return false
}
