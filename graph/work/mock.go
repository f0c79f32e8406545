package work

import (
	"context"
	"sync"
)

// MockHandler is a test implementation of Handler.
//
// Use MockHandler in tests to verify graph behavior without executing
// real external work. It provides:
//   - Configurable handler name
//   - Configurable response sequences
//   - Call history tracking
//   - Error injection
//   - Thread-safe operation
type MockHandler struct {
	// HandlerName is the identifier returned by Name().
	HandlerName string

	// Responses contains the sequence of outputs to return. Each call
	// to Call() returns the next response in order; once exhausted, the
	// last response repeats.
	Responses []map[string]any

	// Err, if set, is returned by Call() instead of a response.
	Err error

	// Calls records the history of Call() invocations.
	Calls []MockCall

	mu        sync.Mutex
	callIndex int
}

// MockCall records a single invocation of Call().
type MockCall struct {
	Input map[string]any
}

// Name implements Handler.
func (m *MockHandler) Name() string {
	return m.HandlerName
}

// Call implements Handler. It records every call made with a live
// context; when the context is already cancelled, nothing is recorded
// and the context error is returned directly.
func (m *MockHandler) Call(ctx context.Context, input map[string]any) (map[string]any, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{Input: input})

	if m.Err != nil {
		return nil, m.Err
	}

	if len(m.Responses) == 0 {
		return map[string]any{}, nil
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
func (m *MockHandler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of times Call() has been invoked.
func (m *MockHandler) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
