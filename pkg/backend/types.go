package backend

import "encoding/json"

// Tick is a single timestamped price update for one instrument.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // epoch seconds
}

// ContractUpdate is one lifecycle frame for a tracked contract. Every frame
// fully replaces the previous projection on the client side.
type ContractUpdate struct {
	ContractID  string  `json:"contract_id"`
	Underlying  string  `json:"underlying"`
	Status      string  `json:"status"`
	EntrySpot   float64 `json:"entry_spot"`
	CurrentSpot float64 `json:"current_spot"`
	BuyPrice    float64 `json:"buy_price"`
	BidPrice    float64 `json:"bid_price"`
	Payout      float64 `json:"payout"`
	Profit      float64 `json:"profit"`
	DateStart   int64   `json:"date_start"`
	DateExpiry  int64   `json:"date_expiry"`
}

// CapabilitySet lists the contract types the venue currently permits for one
// (symbol, product family) pair. A nil set means unknown/unavailable.
type CapabilitySet struct {
	ContractTypes []string `json:"contract_types"`
	DurationUnits []string `json:"duration_units,omitempty"`
}

// OrderAck is the backend's acknowledgment of an accepted order.
type OrderAck struct {
	ContractID string `json:"contract_id"`
}

// frame is the envelope shared by all stream messages.
type frame struct {
	Type string `json:"type"`
}

// tickFrame is a frame carrying a quote.
type tickFrame struct {
	Type string `json:"type"`
	Tick
}

// contractFrame is a frame carrying a contract lifecycle update.
type contractFrame struct {
	Type string `json:"type"`
	ContractUpdate
}

// contractsForResponse covers both the plain shape and the smart-fallback
// wrapper {first_supported, results:{symbol:{...}}} the backend may return.
type contractsForResponse struct {
	CapabilitySet
	FirstSupported string                     `json:"first_supported,omitempty"`
	Results        map[string]json.RawMessage `json:"results,omitempty"`
}
