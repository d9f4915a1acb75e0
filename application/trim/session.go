package trim

import (
	"sync/atomic"

	"clipmux/domain/video"
)

// Session carries the cancellation flag of one invocation. The copy loop
// polls it once per sample.
type Session struct {
	token     video.Token
	cancelled atomic.Bool
}

// NewSession creates a session with a fresh token
func NewSession() *Session {
	return &Session{token: video.NewToken()}
}

// Token returns the invocation token
func (s *Session) Token() video.Token {
	return s.token
}

// Cancel requests cooperative cancellation
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

func (s *Session) reset() {
	s.cancelled.Store(false)
}
