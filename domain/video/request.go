package video

import (
	"fmt"
	"path/filepath"
)

// TrimRequest describes one trim invocation. It is built once and never
// mutated while the invocation runs.
type TrimRequest struct {
	SourcePath      string
	DestinationPath string
	KeepAudio       bool
	StartMs         int64
	EndMs           int64
}

// NewTrimRequest creates a validated TrimRequest
func NewTrimRequest(sourcePath, destinationPath string, keepAudio bool, startMs, endMs int64) (*TrimRequest, error) {
	req := &TrimRequest{
		SourcePath:      sourcePath,
		DestinationPath: destinationPath,
		KeepAudio:       keepAudio,
		StartMs:         startMs,
		EndMs:           endMs,
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	return req, nil
}

// NewTrimRequestFromTimestamps creates a validated TrimRequest from clock timestamps
func NewTrimRequestFromTimestamps(sourcePath, destinationPath string, keepAudio bool, start, end Timestamp) (*TrimRequest, error) {
	return NewTrimRequest(sourcePath, destinationPath, keepAudio, start.TotalMilliseconds(), end.TotalMilliseconds())
}

// Validate checks that the trim request is valid
func (r TrimRequest) Validate() error {
	if r.SourcePath == "" {
		return fmt.Errorf("%w: source path is required", ErrInvalidRequest)
	}

	if r.DestinationPath == "" {
		return fmt.Errorf("%w: destination path is required", ErrInvalidRequest)
	}

	if filepath.Clean(r.SourcePath) == filepath.Clean(r.DestinationPath) {
		return fmt.Errorf("%w: destination %q must differ from source", ErrInvalidRequest, r.DestinationPath)
	}

	if r.StartMs < 0 {
		return fmt.Errorf("%w: start time %dms must not be negative", ErrInvalidRequest, r.StartMs)
	}

	if r.EndMs <= 0 {
		return fmt.Errorf("%w: end time must be greater than zero", ErrInvalidRequest)
	}

	if r.EndMs <= r.StartMs {
		return fmt.Errorf("%w: end time %s must be after start time %s",
			ErrInvalidRequest, TimestampFromMillis(r.EndMs), TimestampFromMillis(r.StartMs))
	}

	return nil
}

// StartUs returns the window start in microseconds
func (r TrimRequest) StartUs() int64 {
	return r.StartMs * 1000
}

// EndUs returns the window end in microseconds
func (r TrimRequest) EndUs() int64 {
	return r.EndMs * 1000
}
