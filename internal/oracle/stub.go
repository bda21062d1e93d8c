package oracle

import (
	"context"
	"sync"
)

// StubClient is a scripted Client for tests. Each Generate call pops the
// next scripted response; an entry with Err set fails the call. Calls
// beyond the script echo the requested fields back with canned content.
type StubClient struct {
	mu      sync.Mutex
	Script  []StubResponse
	Prompts []string
	calls   int
}

// StubResponse is one scripted oracle reply.
type StubResponse struct {
	Fields map[string]string
	Err    error
}

func (s *StubClient) Generate(_ context.Context, prompt string, fields []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Prompts = append(s.Prompts, prompt)
	idx := s.calls
	s.calls++

	if idx < len(s.Script) {
		r := s.Script[idx]
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Fields, nil
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f] = "stub content for " + f
	}
	return out, nil
}

// Calls reports how many times Generate has been invoked.
func (s *StubClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
