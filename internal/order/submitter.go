package order

import (
	"context"
	"errors"
	"log"

	"terminal-core/internal/events"
	"terminal-core/pkg/backend"
)

// Gateway abstracts the backend order endpoint.
type Gateway interface {
	SubmitOrder(ctx context.Context, payload any) (backend.OrderAck, error)
}

// Submitter sends built payloads to the backend and emits order events.
// Failures are returned as values and published to the bus; nothing here
// panics through the automation loop.
type Submitter struct {
	GW  Gateway
	Bus *events.Bus
}

func NewSubmitter(gw Gateway, bus *events.Bus) *Submitter {
	return &Submitter{GW: gw, Bus: bus}
}

// Result records the outcome of one submission for the UI.
type Result struct {
	Request    Request `json:"request"`
	ContractID string  `json:"contract_id,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Submit posts one order and reports the backend's verdict.
func (s *Submitter) Submit(ctx context.Context, req Request) (backend.OrderAck, error) {
	if s.GW == nil {
		return backend.OrderAck{}, errors.New("submitter: gateway not configured")
	}

	if s.Bus != nil {
		s.Bus.Publish(events.EventOrderSubmitted, Result{Request: req})
	}

	ack, err := s.GW.SubmitOrder(ctx, req)
	if err != nil {
		log.Printf("order: submit %s %s failed: %v", req.Engine(), symbolOf(req), err)
		if s.Bus != nil {
			s.Bus.Publish(events.EventOrderRejected, Result{Request: req, Error: err.Error()})
		}
		return backend.OrderAck{}, err
	}

	log.Printf("order: %s %s accepted, contract %s", req.Engine(), symbolOf(req), ack.ContractID)
	if s.Bus != nil {
		s.Bus.Publish(events.EventOrderAccepted, Result{Request: req, ContractID: ack.ContractID})
	}
	return ack, nil
}

func symbolOf(req Request) string {
	switch r := req.(type) {
	case CallPut:
		return r.Symbol
	case Accumulator:
		return r.Symbol
	case Turbos:
		return r.Symbol
	case Multipliers:
		return r.Symbol
	default:
		return ""
	}
}
