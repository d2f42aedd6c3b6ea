package order

import (
	"fmt"

	"terminal-core/internal/detector"
)

// Build turns a fired signal into the wire payload for the configured engine.
// It is a pure transformation: no I/O, no mutation of its inputs.
func Build(engine Engine, side detector.Side, symbol string, p Params, currency string) (Request, error) {
	if symbol == "" {
		return nil, fmt.Errorf("build %s: symbol is empty", engine)
	}
	if side != detector.SideCall && side != detector.SidePut {
		return nil, fmt.Errorf("build %s: invalid side %q", engine, side)
	}
	if p.Stake <= 0 {
		return nil, fmt.Errorf("build %s: stake must be positive, got %v", engine, p.Stake)
	}

	switch engine {
	case EngineCallPut:
		duration := p.Duration
		if duration <= 0 {
			duration = 5
		}
		unit := p.DurationUnit
		if unit == "" {
			unit = "t"
		}
		return CallPut{
			Kind:         EngineCallPut,
			Symbol:       symbol,
			ContractType: string(side),
			Duration:     duration,
			DurationUnit: unit,
			Stake:        p.Stake,
			Currency:     currency,
		}, nil

	case EngineAccumulator:
		if p.GrowthRate <= 0 {
			return nil, fmt.Errorf("build %s: growth_rate must be positive, got %v", engine, p.GrowthRate)
		}
		return Accumulator{
			Kind:       EngineAccumulator,
			Symbol:     symbol,
			Stake:      p.Stake,
			MaxPrice:   p.Stake,
			GrowthRate: p.GrowthRate,
			LimitOrder: AccumulatorLimits{TakeProfit: p.TakeProfit},
			Currency:   currency,
		}, nil

	case EngineTurbos:
		contractType := "TURBOSLONG"
		if side == detector.SidePut {
			contractType = "TURBOSSHORT"
		}
		return Turbos{
			Kind:         EngineTurbos,
			Symbol:       symbol,
			ContractType: contractType,
			Stake:        p.Stake,
			Strike:       p.Strike,
			Currency:     currency,
		}, nil

	case EngineMultipliers:
		if p.Multiplier <= 0 {
			return nil, fmt.Errorf("build %s: multiplier must be positive, got %v", engine, p.Multiplier)
		}
		contractType := "MULTUP"
		if side == detector.SidePut {
			contractType = "MULTDOWN"
		}
		return Multipliers{
			Kind:         EngineMultipliers,
			Symbol:       symbol,
			ContractType: contractType,
			Stake:        p.Stake,
			Multiplier:   p.Multiplier,
			LimitOrder: MultiplierLimits{
				TakeProfit: p.TakeProfit,
				StopLoss:   p.StopLoss,
			},
			Currency: currency,
		}, nil

	default:
		return nil, fmt.Errorf("build: unknown engine %q", engine)
	}
}
