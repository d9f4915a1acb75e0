package mp4

import (
	"context"

	"clipmux/domain/video"
)

// Opener opens MP4 sources and destinations
type Opener struct{}

var _ video.ContainerOpener = Opener{}

// NewOpener creates an Opener
func NewOpener() Opener {
	return Opener{}
}

// OpenSource implements video.ContainerOpener
func (Opener) OpenSource(ctx context.Context, path string) (video.Extractor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return OpenExtractor(path)
}

// CreateDestination implements video.ContainerOpener
func (Opener) CreateDestination(ctx context.Context, path string) (video.Muxer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return CreateMuxer(path)
}

// Info summarizes a container for display
type Info struct {
	DurationUs int64
	Tracks     []video.TrackDescriptor
}

// Probe indexes path and returns its tracks without reading sample data
func Probe(path string) (Info, error) {
	e, err := OpenExtractor(path)
	if err != nil {
		return Info{}, err
	}
	defer e.Close()

	return Info{
		DurationUs: e.DurationUs(),
		Tracks:     e.Tracks(),
	}, nil
}
