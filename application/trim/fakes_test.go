package trim

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"clipmux/domain/video"
)

// --- In-memory container fakes ---

type fakeSample struct {
	rec  video.SampleRecord
	data []byte
}

// fakeExtractor serves a fixed, pre-interleaved sample list
type fakeExtractor struct {
	tracks  []video.TrackDescriptor
	samples []fakeSample
	cursor  int

	// endless generates 1ms sync video samples on track 0 forever
	endless bool

	seekCalls  []int64
	readErrAt  int
	readErr    error
	panicAt    int
	advanceErr error
	closed     int
}

func newFakeExtractor(tracks []video.TrackDescriptor, samples []fakeSample) *fakeExtractor {
	return &fakeExtractor{tracks: tracks, samples: samples, readErrAt: -1, panicAt: -1}
}

func (f *fakeExtractor) Tracks() []video.TrackDescriptor {
	return f.tracks
}

// SeekTo lands on the last sync sample at or before timeUs
func (f *fakeExtractor) SeekTo(timeUs int64) error {
	f.seekCalls = append(f.seekCalls, timeUs)
	if f.endless {
		f.cursor = int(timeUs / 1000)
		return nil
	}
	target := 0
	for i, s := range f.samples {
		if s.rec.PresentationUs > timeUs {
			break
		}
		if s.rec.Flags.IsSync() && s.rec.TrackIndex == 0 {
			target = i
		}
	}
	f.cursor = target
	return nil
}

func (f *fakeExtractor) ReadSample(dst []byte) (video.SampleRecord, error) {
	if f.cursor == f.panicAt {
		panic("demuxer exploded")
	}
	if f.cursor == f.readErrAt {
		return video.SampleRecord{}, f.readErr
	}
	if f.endless {
		ts := int64(f.cursor) * 1000
		return video.SampleRecord{TrackIndex: 0, Size: 1, PresentationUs: ts, DecodeUs: ts, Flags: video.SampleFlagSync}, nil
	}
	if f.cursor >= len(f.samples) {
		return video.SampleRecord{}, io.EOF
	}
	s := f.samples[f.cursor]
	n := copy(dst, s.data)
	rec := s.rec
	rec.Size = n
	return rec, nil
}

func (f *fakeExtractor) Advance() error {
	if f.advanceErr != nil {
		return f.advanceErr
	}
	f.cursor++
	return nil
}

func (f *fakeExtractor) Close() error {
	f.closed++
	return nil
}

type writtenSample struct {
	track int
	info  video.SampleInfo
	data  []byte
}

// fakeMuxer records everything written to it
type fakeMuxer struct {
	addErr   map[int]error
	writeErr error
	startErr error
	stopErr  error

	tracks   []video.TrackDescriptor
	written  []writtenSample
	started  int
	stopped  int
	released int
}

func (m *fakeMuxer) AddTrack(track video.TrackDescriptor) (int, error) {
	if err := m.addErr[track.SourceIndex]; err != nil {
		return -1, err
	}
	m.tracks = append(m.tracks, track)
	return len(m.tracks) - 1, nil
}

func (m *fakeMuxer) Start() error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started++
	return nil
}

func (m *fakeMuxer) WriteSample(trackIndex int, data []byte, info video.SampleInfo) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, writtenSample{
		track: trackIndex,
		info:  info,
		data:  append([]byte(nil), data...),
	})
	return nil
}

func (m *fakeMuxer) Stop() error {
	m.stopped++
	return m.stopErr
}

func (m *fakeMuxer) Release() error {
	m.released++
	return nil
}

func (m *fakeMuxer) samplesFor(track int) []video.SampleInfo {
	var out []video.SampleInfo
	for _, w := range m.written {
		if w.track == track {
			out = append(out, w.info)
		}
	}
	return out
}

// fakeOpener hands out a fresh extractor/muxer pair per call
type fakeOpener struct {
	newSource func() *fakeExtractor
	openErr   error
	createErr error
	stopErr   error

	mu         sync.Mutex
	openCalls  int
	sources    []*fakeExtractor
	muxers     []*fakeMuxer
	muxerSetup func(*fakeMuxer)
}

func (o *fakeOpener) OpenSource(ctx context.Context, path string) (video.Extractor, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openCalls++
	if o.openErr != nil {
		return nil, o.openErr
	}
	src := o.newSource()
	o.sources = append(o.sources, src)
	return src, nil
}

func (o *fakeOpener) CreateDestination(ctx context.Context, path string) (video.Muxer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.createErr != nil {
		return nil, o.createErr
	}
	m := &fakeMuxer{stopErr: o.stopErr}
	if o.muxerSetup != nil {
		o.muxerSetup(m)
	}
	o.muxers = append(o.muxers, m)
	return m, nil
}

func (o *fakeOpener) lastMuxer() *fakeMuxer {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.muxers) == 0 {
		return nil
	}
	return o.muxers[len(o.muxers)-1]
}

func (o *fakeOpener) lastSource() *fakeExtractor {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sources) == 0 {
		return nil
	}
	return o.sources[len(o.sources)-1]
}

// --- Source builders ---

var (
	videoTrack   = video.TrackDescriptor{SourceIndex: 0, MimeType: "video/avc"}
	audioTrack   = video.TrackDescriptor{SourceIndex: 1, MimeType: "audio/mp4a-latm"}
	unknownAudio = video.TrackDescriptor{SourceIndex: 2, MimeType: "audio/UNKNOWN"}
)

const (
	frameUs      = 33_333
	audioFrameUs = 21_333
)

// avSamples builds a 30fps video track with a sync sample every 15 frames
// and an audio track, interleaved by decode time, spanning durationUs.
func avSamples(durationUs int64) []fakeSample {
	var out []fakeSample
	for i := int64(0); i*frameUs < durationUs; i++ {
		var flags video.SampleFlags
		if i%15 == 0 {
			flags = video.SampleFlagSync
		}
		ts := i * frameUs
		out = append(out, fakeSample{
			rec:  video.SampleRecord{TrackIndex: 0, PresentationUs: ts, DecodeUs: ts, Flags: flags},
			data: []byte{0, 0, 0, 1, byte(i)},
		})
	}
	for i := int64(0); i*audioFrameUs < durationUs; i++ {
		ts := i * audioFrameUs
		out = append(out, fakeSample{
			rec:  video.SampleRecord{TrackIndex: 1, PresentationUs: ts, DecodeUs: ts, Flags: video.SampleFlagSync},
			data: []byte{0xff, byte(i)},
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].rec.DecodeUs != out[j].rec.DecodeUs {
			return out[i].rec.DecodeUs < out[j].rec.DecodeUs
		}
		return out[i].rec.TrackIndex < out[j].rec.TrackIndex
	})
	return out
}

// secondSamples builds one sync video sample per second from 0 to lastSec
func secondSamples(lastSec int64) []fakeSample {
	var out []fakeSample
	for s := int64(0); s <= lastSec; s++ {
		ts := s * 1_000_000
		out = append(out, fakeSample{
			rec:  video.SampleRecord{TrackIndex: 0, PresentationUs: ts, DecodeUs: ts, Flags: video.SampleFlagSync},
			data: []byte{byte(s)},
		})
	}
	return out
}

// --- Reporter ---

type collectingReporter struct {
	mu     sync.Mutex
	events []video.ProgressEvent
	onNext func(video.ProgressEvent)
}

func (r *collectingReporter) Report(ev video.ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.onNext
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (r *collectingReporter) snapshot() []video.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]video.ProgressEvent(nil), r.events...)
}

func terminalEvents(events []video.ProgressEvent) []video.ProgressEvent {
	var out []video.ProgressEvent
	for _, ev := range events {
		if ev.Terminal {
			out = append(out, ev)
		}
	}
	return out
}

var errBoom = errors.New("boom")
