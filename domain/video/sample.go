package video

// SampleFlags mirrors the per-sample flags a demuxer reports
type SampleFlags uint32

const (
	// SampleFlagSync marks a sample decodable without prior samples
	SampleFlagSync SampleFlags = 1 << iota
)

// IsSync reports whether the sample is a sync sample
func (f SampleFlags) IsSync() bool {
	return f&SampleFlagSync != 0
}

// SampleRecord describes the sample currently under the extractor cursor.
// It lives for a single copy step.
type SampleRecord struct {
	TrackIndex     int
	Size           int
	PresentationUs int64
	DecodeUs       int64
	Flags          SampleFlags
}

// SampleInfo is what a muxer needs to place a sample in the destination
type SampleInfo struct {
	Size           int
	PresentationUs int64
	DecodeUs       int64
	Flags          SampleFlags
}

// Rebase shifts the sample onto a clock starting at baseUs. Presentation
// time is clamped at zero and decode time moves with it, so the composition
// offset survives; DecodeUs is negative when decoding precedes baseUs.
func (s SampleRecord) Rebase(baseUs int64) SampleInfo {
	clamp := max(baseUs-s.PresentationUs, 0)
	return SampleInfo{
		Size:           s.Size,
		PresentationUs: s.PresentationUs - baseUs + clamp,
		DecodeUs:       s.DecodeUs - baseUs + clamp,
		Flags:          s.Flags,
	}
}
