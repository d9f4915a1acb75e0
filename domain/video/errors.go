package video

import "errors"

// Errors shared by the trim engine and its adapters
var (
	// ErrInvalidRequest marks a request rejected before any file is opened
	ErrInvalidRequest = errors.New("invalid trim request")

	// ErrSampleTooLarge is returned when a sample does not fit the reusable buffer
	ErrSampleTooLarge = errors.New("sample exceeds buffer capacity")

	// ErrMuxerState is returned when a muxer operation is called out of order
	ErrMuxerState = errors.New("muxer used in wrong state")

	// ErrUnsupportedTrack is returned by a muxer that cannot declare a track
	ErrUnsupportedTrack = errors.New("unsupported track format")

	// ErrUnknownToken is returned when cancelling an invocation that is not running
	ErrUnknownToken = errors.New("unknown invocation token")
)
