package events

// Event enumerates high-level topics inside the terminal core.
type Event string

const (
	EventTick              Event = "tick"
	EventConnectivity      Event = "connectivity"
	EventSignal            Event = "signal"
	EventCapabilityWarning Event = "capability_warning"
	EventOrderSubmitted    Event = "order.submitted"
	EventOrderAccepted     Event = "order.accepted"
	EventOrderRejected     Event = "order.rejected"
	EventContractUpdate    Event = "contract_update"
	EventSessionUpdate     Event = "session_update"
)
