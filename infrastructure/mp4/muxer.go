package mp4

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"clipmux/domain/video"

	gomp4 "github.com/abema/go-mp4"
)

type muxerState int

const (
	stateConfiguring muxerState = iota
	stateStarted
	stateStopped
	stateReleased
)

// movieTimescale is used for mvhd and tkhd durations
const movieTimescale = 1000

// 1904-01-01 to 1970-01-01
const macEpochOffset = 2082844800

var unityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

type muxTrack struct {
	desc      video.TrackDescriptor
	timescale uint32
	table     tableBuilder
	lastDts   int64
	// shift is how far the first decode time precedes zero, in media units
	shift int64
}

// presentationDuration is the edited track length in media timescale units
func (t *muxTrack) presentationDuration() uint64 {
	d := t.table.duration()
	if uint64(t.shift) >= d {
		return 0
	}
	return d - uint64(t.shift)
}

// Muxer writes a progressive MP4: ftyp, a single mdat holding every sample,
// then moov once Stop is called.
type Muxer struct {
	file      *os.File
	w         *gomp4.Writer
	tracks    []*muxTrack
	state     muxerState
	lastTrack int
	created   time.Time
}

var _ video.Muxer = (*Muxer)(nil)

// CreateMuxer creates or truncates path
func CreateMuxer(path string) (*Muxer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}
	return &Muxer{
		file:      f,
		w:         gomp4.NewWriter(f),
		lastTrack: -1,
		created:   time.Now(),
	}, nil
}

// AddTrack implements video.Muxer
func (m *Muxer) AddTrack(track video.TrackDescriptor) (int, error) {
	if m.state != stateConfiguring {
		return -1, fmt.Errorf("%w: tracks must be added before start", video.ErrMuxerState)
	}
	if len(track.Format.Descriptor) < gomp4.SmallHeaderSize {
		return -1, fmt.Errorf("%w: %s has no sample description", video.ErrUnsupportedTrack, track.MimeType)
	}
	if handlerFor(track) == "" {
		return -1, fmt.Errorf("%w: %s", video.ErrUnsupportedTrack, track.MimeType)
	}

	timescale := track.Format.Timescale
	if timescale == 0 {
		timescale = 90000
	}
	mt := &muxTrack{desc: track, timescale: timescale}
	if f := track.Format; f.SampleCount > 0 && f.DurationUs > 0 {
		mt.table.fallbackDelta = uint32(scaleTime(f.DurationUs, microsPerSecond, timescale) / int64(f.SampleCount))
	}
	m.tracks = append(m.tracks, mt)
	return len(m.tracks) - 1, nil
}

// Start implements video.Muxer
func (m *Muxer) Start() error {
	if m.state != stateConfiguring {
		return fmt.Errorf("%w: start called twice", video.ErrMuxerState)
	}

	ftyp := &gomp4.Ftyp{
		MajorBrand:   gomp4.BrandISOM(),
		MinorVersion: 0x200,
		CompatibleBrands: []gomp4.CompatibleBrandElem{
			{CompatibleBrand: gomp4.BrandISOM()},
			{CompatibleBrand: gomp4.BrandISO2()},
			{CompatibleBrand: gomp4.BrandAVC1()},
			{CompatibleBrand: gomp4.BrandMP41()},
		},
	}
	if err := m.writeBox(ftyp); err != nil {
		return fmt.Errorf("write ftyp: %w", err)
	}

	// a 64-bit size keeps the header fixed however large mdat grows
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: gomp4.BoxTypeMdat(), HeaderSize: gomp4.LargeHeaderSize}); err != nil {
		return fmt.Errorf("start mdat: %w", err)
	}

	m.state = stateStarted
	return nil
}

// WriteSample implements video.Muxer
func (m *Muxer) WriteSample(trackIndex int, data []byte, info video.SampleInfo) error {
	if m.state != stateStarted {
		return fmt.Errorf("%w: write outside of start/stop", video.ErrMuxerState)
	}
	if trackIndex < 0 || trackIndex >= len(m.tracks) {
		return fmt.Errorf("%w: unknown track %d", video.ErrMuxerState, trackIndex)
	}
	if info.Size > len(data) {
		return fmt.Errorf("sample size %d exceeds buffer of %d", info.Size, len(data))
	}

	t := m.tracks[trackIndex]
	dts := scaleTime(info.DecodeUs, microsPerSecond, t.timescale)
	pts := scaleTime(info.PresentationUs, microsPerSecond, t.timescale)
	if len(t.table.dts) == 0 {
		t.shift = max(-dts, 0)
	}
	dts += t.shift
	pts += t.shift
	if len(t.table.dts) > 0 && dts < t.lastDts {
		dts = t.lastDts
	}
	t.lastDts = dts

	offset, err := m.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := m.w.Write(data[:info.Size]); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}

	t.table.add(uint32(info.Size), dts, pts-dts, info.Flags.IsSync(), uint64(offset), m.lastTrack != trackIndex)
	m.lastTrack = trackIndex
	return nil
}

// Stop closes mdat and writes moov
func (m *Muxer) Stop() error {
	if m.state != stateStarted {
		return fmt.Errorf("%w: stop without start", video.ErrMuxerState)
	}
	m.state = stateStopped

	if _, err := m.w.EndBox(); err != nil {
		return fmt.Errorf("close mdat: %w", err)
	}
	if err := m.writeMoov(); err != nil {
		return fmt.Errorf("write moov: %w", err)
	}
	return nil
}

// Release closes the file. Further calls are no-ops.
func (m *Muxer) Release() error {
	if m.state == stateReleased {
		return nil
	}
	m.state = stateReleased
	return m.file.Close()
}

func (m *Muxer) writeBox(box gomp4.IImmutableBox) error {
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: box.GetType()}); err != nil {
		return err
	}
	if _, err := gomp4.Marshal(m.w, box, gomp4.Context{}); err != nil {
		return err
	}
	_, err := m.w.EndBox()
	return err
}

func (m *Muxer) container(boxType gomp4.BoxType, body func() error) error {
	if _, err := m.w.StartBox(&gomp4.BoxInfo{Type: boxType}); err != nil {
		return err
	}
	if err := body(); err != nil {
		return err
	}
	_, err := m.w.EndBox()
	return err
}

func (m *Muxer) writeMoov() error {
	var movieDuration uint64
	for _, t := range m.tracks {
		movieDuration = max(movieDuration, uint64(scaleTime(int64(t.presentationDuration()), t.timescale, movieTimescale)))
	}
	created := uint64(m.created.Unix() + macEpochOffset)

	return m.container(gomp4.BoxTypeMoov(), func() error {
		mvhd := &gomp4.Mvhd{
			Timescale:   movieTimescale,
			Rate:        0x00010000,
			Volume:      0x0100,
			Matrix:      unityMatrix,
			NextTrackID: uint32(len(m.tracks) + 1),
		}
		if created > math.MaxUint32 || movieDuration > math.MaxUint32 {
			mvhd.SetVersion(1)
			mvhd.CreationTimeV1, mvhd.ModificationTimeV1 = created, created
			mvhd.DurationV1 = movieDuration
		} else {
			mvhd.CreationTimeV0, mvhd.ModificationTimeV0 = uint32(created), uint32(created)
			mvhd.DurationV0 = uint32(movieDuration)
		}
		if err := m.writeBox(mvhd); err != nil {
			return err
		}

		for i, t := range m.tracks {
			if err := m.writeTrak(uint32(i+1), t, created); err != nil {
				return fmt.Errorf("track %d: %w", i, err)
			}
		}
		return nil
	})
}

func (m *Muxer) writeTrak(trackID uint32, t *muxTrack, created uint64) error {
	handler := handlerFor(t.desc)
	mediaDuration := t.table.duration()
	movieDuration := uint64(scaleTime(int64(t.presentationDuration()), t.timescale, movieTimescale))
	long := created > math.MaxUint32 || mediaDuration > math.MaxUint32 || movieDuration > math.MaxUint32

	return m.container(gomp4.BoxTypeTrak(), func() error {
		tkhd := &gomp4.Tkhd{
			TrackID: trackID,
			Matrix:  unityMatrix,
			Width:   t.desc.Format.Width << 16,
			Height:  t.desc.Format.Height << 16,
		}
		tkhd.SetFlags(0x000003)
		if handler == "soun" {
			tkhd.Volume = 0x0100
		}
		if long {
			tkhd.SetVersion(1)
			tkhd.CreationTimeV1, tkhd.ModificationTimeV1 = created, created
			tkhd.DurationV1 = movieDuration
		} else {
			tkhd.CreationTimeV0, tkhd.ModificationTimeV0 = uint32(created), uint32(created)
			tkhd.DurationV0 = uint32(movieDuration)
		}
		if err := m.writeBox(tkhd); err != nil {
			return err
		}
		if err := m.writeEdits(t, movieDuration, long); err != nil {
			return err
		}

		return m.container(gomp4.BoxTypeMdia(), func() error {
			mdhd := &gomp4.Mdhd{
				Timescale: t.timescale,
				Language:  encodeLanguage(t.desc.Format.Language),
			}
			if long {
				mdhd.SetVersion(1)
				mdhd.CreationTimeV1, mdhd.ModificationTimeV1 = created, created
				mdhd.DurationV1 = mediaDuration
			} else {
				mdhd.CreationTimeV0, mdhd.ModificationTimeV0 = uint32(created), uint32(created)
				mdhd.DurationV0 = uint32(mediaDuration)
			}
			if err := m.writeBox(mdhd); err != nil {
				return err
			}

			hdlr := &gomp4.Hdlr{Name: handlerName(handler)}
			copy(hdlr.HandlerType[:], handler)
			if err := m.writeBox(hdlr); err != nil {
				return err
			}

			return m.container(gomp4.BoxTypeMinf(), func() error {
				return m.writeMinf(handler, t)
			})
		})
	})
}

// writeEdits maps presentation zero onto the first sample's presentation
// time when decoding starts earlier. Nothing is written otherwise.
func (m *Muxer) writeEdits(t *muxTrack, movieDuration uint64, long bool) error {
	if t.shift == 0 {
		return nil
	}
	return m.container(gomp4.BoxTypeEdts(), func() error {
		elst := &gomp4.Elst{EntryCount: 1}
		entry := gomp4.ElstEntry{MediaRateInteger: 1}
		if long {
			elst.SetVersion(1)
			entry.SegmentDurationV1 = movieDuration
			entry.MediaTimeV1 = t.shift
		} else {
			entry.SegmentDurationV0 = uint32(movieDuration)
			entry.MediaTimeV0 = int32(t.shift)
		}
		elst.Entries = []gomp4.ElstEntry{entry}
		return m.writeBox(elst)
	})
}

func (m *Muxer) writeMinf(handler string, t *muxTrack) error {
	if handler == "vide" {
		vmhd := &gomp4.Vmhd{}
		vmhd.SetFlags(0x000001)
		if err := m.writeBox(vmhd); err != nil {
			return err
		}
	} else {
		if err := m.writeBox(&gomp4.Smhd{}); err != nil {
			return err
		}
	}

	err := m.container(gomp4.BoxTypeDinf(), func() error {
		return m.container(gomp4.BoxTypeDref(), func() error {
			if _, err := gomp4.Marshal(m.w, &gomp4.Dref{EntryCount: 1}, gomp4.Context{}); err != nil {
				return err
			}
			url := &gomp4.Url{}
			url.SetFlags(gomp4.UrlSelfContained)
			return m.writeBox(url)
		})
	})
	if err != nil {
		return err
	}

	return m.container(gomp4.BoxTypeStbl(), func() error {
		err := m.container(gomp4.BoxTypeStsd(), func() error {
			if _, err := gomp4.Marshal(m.w, &gomp4.Stsd{EntryCount: 1}, gomp4.Context{}); err != nil {
				return err
			}
			_, err := m.w.Write(t.desc.Format.Descriptor)
			return err
		})
		if err != nil {
			return err
		}

		boxes := []gomp4.IImmutableBox{t.table.stts()}
		if ctts := t.table.ctts(); ctts != nil {
			boxes = append(boxes, ctts)
		}
		if stss := t.table.stss(); stss != nil {
			boxes = append(boxes, stss)
		}
		boxes = append(boxes, t.table.stsc(), t.table.stsz(), t.table.chunkOffsetBox())

		for _, box := range boxes {
			if err := m.writeBox(box); err != nil {
				return err
			}
		}
		return nil
	})
}

// handlerFor returns the hdlr type for a track, or "" when the muxer
// cannot carry it
func handlerFor(track video.TrackDescriptor) string {
	switch {
	case track.Format.Handler == "vide" || track.Format.Handler == "soun":
		return track.Format.Handler
	case track.IsVideo():
		return "vide"
	case track.IsAudio():
		return "soun"
	default:
		return ""
	}
}

func handlerName(handler string) string {
	if handler == "vide" {
		return "VideoHandle"
	}
	return "SoundHandle"
}
