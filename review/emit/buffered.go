package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// Events are organized by session ID and can be queried with HistoryFilter.
// Used by tests and by callers that want to inspect a finished session's
// event trail.
//
// Warning: This emitter keeps every event in memory. Call Clear once a
// session's history is no longer needed.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // sessionID -> events
}

// HistoryFilter specifies criteria for filtering session history.
//
// All fields are optional and combined with AND logic.
type HistoryFilter struct {
	BackendID string // Filter by backend ID (empty = no filter)
	Msg       string // Filter by event name (empty = no filter)
	MinLevel  *Level // Minimum level (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.SessionID] = append(b.events[event.SessionID], event)
}

// GetHistory returns a copy of all events for sessionID in emission order.
// Returns an empty slice if none exist.
func (b *BufferedEmitter) GetHistory(sessionID string) []Event {
	return b.GetHistoryWithFilter(sessionID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events of sessionID matching filter.
func (b *BufferedEmitter) GetHistoryWithFilter(sessionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[sessionID] {
		if matchesFilter(event, filter) {
			result = append(result, event)
		}
	}
	return result
}

// Sessions returns the IDs of every session with buffered events.
func (b *BufferedEmitter) Sessions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.events))
	for id := range b.events {
		ids = append(ids, id)
	}
	return ids
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.BackendID != "" && event.BackendID != filter.BackendID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinLevel != nil && event.Level < *filter.MinLevel {
		return false
	}
	return true
}

// Clear removes stored events. An empty sessionID clears every session.
func (b *BufferedEmitter) Clear(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sessionID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, sessionID)
}
