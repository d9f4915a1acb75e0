package video

import "github.com/google/uuid"

// Token identifies a single trim invocation. It is handed to the caller at
// start time and passed back to cancel that invocation only.
type Token string

// NewToken returns a fresh random token
func NewToken() Token {
	return Token(uuid.NewString())
}

// Short returns the first eight characters, for log lines and tables
func (t Token) Short() string {
	if len(t) <= 8 {
		return string(t)
	}
	return string(t[:8])
}
