package session

import (
	"slices"
	"sync"
	"time"
)

// Exchange is one user message and the reply it produced.
type Exchange struct {
	Input        string
	Output       string
	Capabilities []string
	At           time.Time
}

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one side of an exchange.
type Turn struct {
	Role    string
	Content string
}

// Session is the conversation history of one key. Mutations happen inside
// Store.Do; reads are safe at any time.
type Session struct {
	id           string
	maxExchanges int

	mu        sync.RWMutex
	exchanges []Exchange
}

// ID returns the session key.
func (s *Session) ID() string {
	return s.id
}

// Append adds an exchange, dropping the oldest ones beyond the limit.
func (s *Session) Append(ex Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex.Capabilities = slices.Clone(ex.Capabilities)
	s.exchanges = append(s.exchanges, ex)
	if s.maxExchanges > 0 && len(s.exchanges) > s.maxExchanges {
		s.exchanges = slices.Delete(s.exchanges, 0, len(s.exchanges)-s.maxExchanges)
	}
}

// Exchanges returns a copy of the history, oldest first.
func (s *Session) Exchanges() []Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Exchange, len(s.exchanges))
	for i, ex := range s.exchanges {
		ex.Capabilities = slices.Clone(ex.Capabilities)
		out[i] = ex
	}
	return out
}

// Len returns the number of exchanges.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.exchanges)
}

// Turns flattens the history into alternating user and assistant turns.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]Turn, 0, 2*len(s.exchanges))
	for _, ex := range s.exchanges {
		turns = append(turns,
			Turn{Role: RoleUser, Content: ex.Input},
			Turn{Role: RoleAssistant, Content: ex.Output},
		)
	}
	return turns
}
