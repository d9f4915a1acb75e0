package video

import (
	"sort"
	"strings"
)

// Mime type prefixes and sentinels used by the track selection policy
const (
	MimePrefixVideo  = "video/"
	MimePrefixAudio  = "audio/"
	MimeAudioUnknown = "audio/unknown"
)

// Format carries the codec parameters a muxer needs to declare a track.
// Descriptor is the container-native sample description and is passed
// through untouched.
type Format struct {
	Codec       string
	Handler     string
	Timescale   uint32
	DurationUs  int64
	SampleCount int
	Width       uint32
	Height      uint32
	Language    string
	Descriptor  []byte
}

// TrackDescriptor describes one track discovered in a source container
type TrackDescriptor struct {
	SourceIndex int
	MimeType    string
	Format      Format
}

// IsVideo reports whether the track carries video
func (t TrackDescriptor) IsVideo() bool {
	return strings.HasPrefix(t.MimeType, MimePrefixVideo)
}

// IsAudio reports whether the track carries audio of a known kind
func (t TrackDescriptor) IsAudio() bool {
	return strings.HasPrefix(t.MimeType, MimePrefixAudio) && !strings.EqualFold(t.MimeType, MimeAudioUnknown)
}

// Selected applies the track selection policy
func (t TrackDescriptor) Selected(keepAudio bool) bool {
	return t.IsVideo() || (keepAudio && t.IsAudio())
}

// TrackMap routes source track indices to destination track indices.
// The zero value routes nothing.
type TrackMap struct {
	routes map[int]int
}

// Lookup returns the destination index for a source track
func (m TrackMap) Lookup(sourceIndex int) (int, bool) {
	dst, ok := m.routes[sourceIndex]
	return dst, ok
}

// Len returns the number of routed tracks
func (m TrackMap) Len() int {
	return len(m.routes)
}

// Sources returns the routed source indices in ascending order
func (m TrackMap) Sources() []int {
	out := make([]int, 0, len(m.routes))
	for src := range m.routes {
		out = append(out, src)
	}
	sort.Ints(out)
	return out
}

// TrackMapBuilder accumulates routes during negotiation
type TrackMapBuilder struct {
	routes map[int]int
}

// Add records sourceIndex -> destinationIndex
func (b *TrackMapBuilder) Add(sourceIndex, destinationIndex int) {
	if b.routes == nil {
		b.routes = make(map[int]int)
	}
	b.routes[sourceIndex] = destinationIndex
}

// Build returns an immutable snapshot of the routes added so far
func (b *TrackMapBuilder) Build() TrackMap {
	routes := make(map[int]int, len(b.routes))
	for k, v := range b.routes {
		routes[k] = v
	}
	return TrackMap{routes: routes}
}
