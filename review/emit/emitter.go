package emit

// Emitter receives and processes observability events from review sessions.
//
// Implementations should be:
//   - Non-blocking: Avoid slowing down backend dispatch
//   - Thread-safe: Called concurrently from every backend goroutine
//   - Resilient: Handle failures internally, never panic
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}

// MultiEmitter fans each event out to several emitters in order.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates a MultiEmitter. Nil emitters are skipped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Emit forwards the event to every wrapped emitter.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
