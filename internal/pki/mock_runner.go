package pki

import (
	"context"
	"strings"
	"sync"
)

// MockRunner is a deterministic Runner used by unit tests.
type MockRunner struct {
	mu sync.Mutex

	Calls []Command

	// Errors maps "arg0 arg1 ..." (without the binary) to the error returned for that call.
	Errors  map[string]error
	Outputs map[string][]byte
}

func (m *MockRunner) Run(_ context.Context, cmd Command) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, cmd)
	key := strings.Join(cmd.Args, " ")
	out := m.Outputs[key]
	err := m.Errors[key]
	m.mu.Unlock()
	return out, err
}

// CallArgs returns the argument lists of all recorded calls.
func (m *MockRunner) CallArgs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := make([]string, 0, len(m.Calls))
	for _, call := range m.Calls {
		args = append(args, strings.Join(call.Args, " "))
	}
	return args
}
