package video

import "context"

// Extractor reads samples out of a source container. It is a port that is
// implemented by container adapters.
type Extractor interface {
	// Tracks returns every track of the source, ordered by source index
	Tracks() []TrackDescriptor
	// SeekTo positions the cursor on the nearest sync point at or before timeUs
	SeekTo(timeUs int64) error
	// ReadSample copies the current sample into dst without advancing.
	// It returns io.EOF once every sample has been consumed.
	ReadSample(dst []byte) (SampleRecord, error)
	// Advance moves the cursor to the next sample
	Advance() error
	Close() error
}

// Muxer writes samples into a destination container
type Muxer interface {
	// AddTrack declares a track and returns its destination index
	AddTrack(track TrackDescriptor) (int, error)
	// Start finalizes the track set; samples may be written afterwards
	Start() error
	WriteSample(trackIndex int, data []byte, info SampleInfo) error
	// Stop writes the container index
	Stop() error
	// Release frees the underlying file handle
	Release() error
}

// ContainerOpener creates extractors and muxers for paths
type ContainerOpener interface {
	OpenSource(ctx context.Context, path string) (Extractor, error)
	CreateDestination(ctx context.Context, path string) (Muxer, error)
}

// FileChecker defines the interface for checking file existence
// This is used to validate that source files exist before trimming
type FileChecker interface {
	// Exists returns true if the file exists
	Exists(path string) bool
}
