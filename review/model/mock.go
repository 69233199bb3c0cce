package model

import (
	"context"
	"sync"
	"time"
)

// MockChatModel is a test implementation of ChatModel.
//
// It returns configured responses in order (repeating the last one),
// records every call, and can inject errors or latency.
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{{Text: `{"summary":"ok"}`}},
//	}
//	out, err := mock.Chat(ctx, messages, ChatOptions{JSON: true})
type MockChatModel struct {
	// Responses contains the sequence of responses to return.
	Responses []ChatOut

	// Err, if set, is returned by Chat instead of a response.
	Err error

	// Delay is waited before replying. A cancelled ctx ends the wait early
	// and Chat returns ctx.Err().
	Delay time.Duration

	// Calls tracks the history of all Chat invocations.
	Calls []MockChatCall

	mu        sync.Mutex
	callIndex int
}

// MockChatCall records a single invocation of Chat.
type MockChatCall struct {
	Messages []Message
	Options  ChatOptions
}

// Chat implements the ChatModel interface.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, MockChatCall{Messages: messages, Options: opts})
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ChatOut{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and resets the response index.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of times Chat has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
