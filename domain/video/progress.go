package video

// TerminalCode distinguishes failed and cancelled terminal events. The
// numeric values are part of the flat event record.
type TerminalCode int

const (
	TerminalNone       TerminalCode = 0
	TerminalMuxFailure TerminalCode = 4
	TerminalCancelled  TerminalCode = 5
)

func (c TerminalCode) String() string {
	switch c {
	case TerminalMuxFailure:
		return "MUX_FAILURE"
	case TerminalCancelled:
		return "CANCELLED"
	default:
		return ""
	}
}

// ProgressEvent is one progress or terminal notification for an invocation
type ProgressEvent struct {
	Token           Token
	SourcePath      string
	DestinationPath string
	Progress        float64
	Terminal        bool
	Code            TerminalCode
	SkippedTracks   []int
}

// Done reports whether this is the successful terminal event
func (e ProgressEvent) Done() bool {
	return e.Terminal && e.Code == TerminalNone
}

// Record flattens the event into the key/value form delivered to collaborators
func (e ProgressEvent) Record() map[string]any {
	rec := map[string]any{
		"input":    e.SourcePath,
		"output":   e.DestinationPath,
		"progress": e.Progress,
	}
	if e.Code != TerminalNone {
		rec["errorIndex"] = int(e.Code)
	}
	if e.Terminal && len(e.SkippedTracks) > 0 {
		rec["skippedTracks"] = append([]int(nil), e.SkippedTracks...)
	}
	return rec
}

// ProgressReporter consumes progress events for one invocation
type ProgressReporter interface {
	Report(event ProgressEvent)
}

// ReporterFunc adapts a function to ProgressReporter
type ReporterFunc func(event ProgressEvent)

// Report implements ProgressReporter
func (f ReporterFunc) Report(event ProgressEvent) {
	f(event)
}
