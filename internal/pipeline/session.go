package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/sells-group/resolution-cli/pkg/oracle"
)

// Session is the caller-owned connection context: the access code, LLM
// defaults and the cached gateway capabilities. An invalid-access-code
// response tears it down.
type Session struct {
	client oracle.Client

	mu         sync.RWMutex
	accessCode string
	provider   string
	model      string
	caps       *oracle.Capabilities

	group singleflight.Group
}

// NewSession creates a session for the access code. The code is opaque and
// not validated locally.
func NewSession(client oracle.Client, accessCode string) *Session {
	return &Session{client: client, accessCode: accessCode}
}

// SetDefaults sets the provider and model used when a request names none.
func (s *Session) SetDefaults(provider, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = provider
	s.model = model
}

// Defaults returns the session provider and model.
func (s *Session) Defaults() (provider, model string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider, s.model
}

// Client returns the gateway client.
func (s *Session) Client() oracle.Client {
	return s.client
}

// Active reports whether the session still holds an access code.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessCode != ""
}

// AccessCode returns the access code, or ErrNoSession after teardown.
func (s *Session) AccessCode() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accessCode == "" {
		return "", ErrNoSession
	}
	return s.accessCode, nil
}

// Capabilities returns the gateway capabilities, fetching them once.
// Concurrent callers share a single request.
func (s *Session) Capabilities(ctx context.Context) (*oracle.Capabilities, error) {
	s.mu.RLock()
	caps, code := s.caps, s.accessCode
	s.mu.RUnlock()
	if caps != nil {
		return caps, nil
	}
	if code == "" {
		return nil, ErrNoSession
	}

	v, err, _ := s.group.Do("capabilities", func() (any, error) {
		s.mu.RLock()
		cached := s.caps
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		c, err := s.client.Capabilities(ctx, code)
		if err != nil {
			if oracle.IsAuth(err) {
				s.Teardown()
			}
			return nil, err
		}
		s.mu.Lock()
		if s.accessCode == code {
			s.caps = c
		}
		s.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oracle.Capabilities), nil
}

// Teardown clears the access code and every cached value.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessCode = ""
	s.caps = nil
}
