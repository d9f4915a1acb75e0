package video

import "time"

// Status is the terminal state of the copy loop
type Status int

const (
	StatusDone Status = iota
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Code returns the terminal code reported for this status
func (s Status) Code() TerminalCode {
	switch s {
	case StatusCancelled:
		return TerminalCancelled
	case StatusFailed:
		return TerminalMuxFailure
	default:
		return TerminalNone
	}
}

// Outcome is the diagnostic record of a finished invocation
type Outcome struct {
	Token          Token
	Request        TrimRequest
	Status         Status
	Err            error
	CleanupErr     error
	SkippedTracks  []int
	Tracks         int
	SamplesWritten int
	SamplesDropped int
	SeekUs         int64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration returns how long the invocation ran
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}
