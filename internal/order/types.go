package order

// Engine identifies one of the four mutually exclusive contract families.
type Engine string

const (
	EngineCallPut     Engine = "CALLPUT"
	EngineAccumulator Engine = "ACCUMULATOR"
	EngineTurbos      Engine = "TURBOS"
	EngineMultipliers Engine = "MULTIPLIERS"
)

// Engines lists every supported contract family.
var Engines = []Engine{EngineCallPut, EngineAccumulator, EngineTurbos, EngineMultipliers}

// Params carries the engine-specific knobs configured by the operator. Each
// engine reads its own subset; the rest is ignored.
type Params struct {
	Stake        float64 `json:"stake" yaml:"stake"`
	Duration     int     `json:"duration" yaml:"duration"`
	DurationUnit string  `json:"duration_unit" yaml:"duration_unit"`
	GrowthRate   float64 `json:"growth_rate" yaml:"growth_rate"`
	TakeProfit   float64 `json:"take_profit" yaml:"take_profit"`
	StopLoss     float64 `json:"stop_loss" yaml:"stop_loss"`
	Multiplier   float64 `json:"multiplier" yaml:"multiplier"`
	Strike       float64 `json:"strike" yaml:"strike"`
}

// Request is the closed set of order payload variants. Adding a fifth engine
// means adding a variant here and a case in Build; nothing else compiles
// around an unknown engine.
type Request interface {
	Engine() Engine
	sealed()
}

// CallPut is a rise/fall contract with a fixed duration.
type CallPut struct {
	Kind         Engine  `json:"engine"`
	Symbol       string  `json:"symbol"`
	ContractType string  `json:"contract_type"` // CALL or PUT
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Stake        float64 `json:"stake"`
	Currency     string  `json:"currency"`
}

func (CallPut) Engine() Engine { return EngineCallPut }
func (CallPut) sealed()        {}

// AccumulatorLimits deliberately has no stop-loss field: the venue does not
// support one for this family and must never see the key.
type AccumulatorLimits struct {
	TakeProfit float64 `json:"take_profit"`
}

// Accumulator is a compounding-growth contract. MaxPrice always equals Stake.
type Accumulator struct {
	Kind       Engine            `json:"engine"`
	Symbol     string            `json:"symbol"`
	Stake      float64           `json:"stake"`
	MaxPrice   float64           `json:"max_price"`
	GrowthRate float64           `json:"growth_rate"`
	LimitOrder AccumulatorLimits `json:"limit_order"`
	Currency   string            `json:"currency"`
}

func (Accumulator) Engine() Engine { return EngineAccumulator }
func (Accumulator) sealed()        {}

// Turbos is a knock-out contract with a strike level.
type Turbos struct {
	Kind         Engine  `json:"engine"`
	Symbol       string  `json:"symbol"`
	ContractType string  `json:"contract_type"` // TURBOSLONG or TURBOSSHORT
	Stake        float64 `json:"stake"`
	Strike       float64 `json:"strike"`
	Currency     string  `json:"currency"`
}

func (Turbos) Engine() Engine { return EngineTurbos }
func (Turbos) sealed()        {}

// MultiplierLimits carries both limit legs for multiplier contracts.
type MultiplierLimits struct {
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

// Multipliers is a leveraged up/down contract.
type Multipliers struct {
	Kind         Engine           `json:"engine"`
	Symbol       string           `json:"symbol"`
	ContractType string           `json:"contract_type"` // MULTUP or MULTDOWN
	Stake        float64          `json:"stake"`
	Multiplier   float64          `json:"multiplier"`
	LimitOrder   MultiplierLimits `json:"limit_order"`
	Currency     string           `json:"currency"`
}

func (Multipliers) Engine() Engine { return EngineMultipliers }
func (Multipliers) sealed()        {}
