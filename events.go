package admin

// Auth event names recognized by downstream audit/telemetry consumers.
const (
	EventAuthSuccess          = "admin.auth.success"
	EventAuthError            = "admin.auth.error"
	EventAuthAutoRegistration = "admin.auth.autoRegistration"
)

// AuthEventPayload is the payload emitted on every authentication outcome.
// Error is populated only for EventAuthError.
type AuthEventPayload struct {
	User     *User  `json:"user,omitempty"`
	Provider string `json:"provider"`
	Error    error  `json:"error,omitempty"`
}

// EventBus receives auth events. Emission is fire-and-forget: implementations
// must not block and their failures never affect the primary operation.
type EventBus interface {
	Emit(event string, payload any)
}

// EventBusFunc adapts a function to the EventBus interface.
type EventBusFunc func(event string, payload any)

// Emit implements EventBus.
func (f EventBusFunc) Emit(event string, payload any) {
	if f == nil {
		return
	}
	f(event, payload)
}

type noopEventBus struct{}

func (noopEventBus) Emit(string, any) {}

func normalizeEventBus(bus EventBus) EventBus {
	if bus == nil {
		return noopEventBus{}
	}
	return bus
}
