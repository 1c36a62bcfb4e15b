package generation

import (
	"context"
	"fmt"
	"sync"
)

// MockGenerator returns a canned answer and records the prompts it receives.
type MockGenerator struct {
	// Answer is returned for every prompt. When empty, the prompt length is echoed.
	Answer string
	// Err, when set, is returned instead of an answer.
	Err error

	mu      sync.Mutex
	prompts []string
}

// NewMockGenerator returns a generator that always answers with answer.
func NewMockGenerator(answer string) *MockGenerator {
	return &MockGenerator{Answer: answer}
}

// Generate records prompt and returns the canned answer.
func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	if g.Answer == "" {
		return fmt.Sprintf("mock answer (%d prompt bytes)", len(prompt)), nil
	}
	return g.Answer, nil
}

// Prompts returns the prompts seen so far.
func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Model returns "mock".
func (g *MockGenerator) Model() string {
	return "mock"
}
