package mock

import (
	"context"
	"sync"
)

// GenerateCall records the prompts passed to one Generate call.
type GenerateCall struct {
	SystemPrompt string
	UserPrompt   string
}

// MockGenerator is a test double for ai.AnswerGenerator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, Generate returns Answer.
	GenerateFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Answer is the canned reply used when GenerateFunc is nil.
	Answer string

	mu    sync.Mutex
	calls []GenerateCall
}

// NewMockGenerator creates a mock generator that always answers with answer.
func NewMockGenerator(answer string) *MockGenerator {
	return &MockGenerator{Answer: answer}
}

// Generate records the call and returns the canned or injected answer.
func (m *MockGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, GenerateCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	fn := m.GenerateFunc
	answer := m.Answer
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, systemPrompt, userPrompt)
	}
	return answer, nil
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of every recorded call in order.
func (m *MockGenerator) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GenerateCall(nil), m.calls...)
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.GenerateFunc = nil
}
