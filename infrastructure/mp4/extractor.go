package mp4

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"clipmux/domain/video"

	gomp4 "github.com/abema/go-mp4"
)

const microsPerSecond = 1_000_000

// sample is one entry of the interleaved read order
type sample struct {
	track  int
	offset uint64
	size   uint32
	ptsUs  int64
	dtsUs  int64
	sync   bool
}

// Extractor reads samples from an ISO base media file. Samples of every
// track are served in one sequence ordered by decode time.
type Extractor struct {
	file    *os.File
	tracks  []video.TrackDescriptor
	samples []sample
	cursor  int
	// from holds, per track, the first sample index the cursor may serve
	from []int
	// durationUs is the movie duration from mvhd
	durationUs int64
}

var _ video.Extractor = (*Extractor)(nil)

// OpenExtractor opens path and indexes every track in its moov box
func OpenExtractor(path string) (*Extractor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}

	e := &Extractor{file: f}
	if err := e.index(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to index %s: %w", path, err)
	}
	return e, nil
}

func (e *Extractor) index() error {
	mvhds, err := gomp4.ExtractBoxWithPayload(e.file, nil, gomp4.BoxPath{gomp4.BoxTypeMoov(), gomp4.BoxTypeMvhd()})
	if err != nil {
		return err
	}
	if len(mvhds) == 0 {
		return fmt.Errorf("no moov box found")
	}
	mvhd := mvhds[0].Payload.(*gomp4.Mvhd)
	movieDuration := uint64(mvhd.DurationV0)
	if mvhd.GetVersion() == 1 {
		movieDuration = mvhd.DurationV1
	}
	e.durationUs = scaleTime(int64(movieDuration), mvhd.Timescale, microsPerSecond)

	traks, err := gomp4.ExtractBox(e.file, nil, gomp4.BoxPath{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak()})
	if err != nil {
		return err
	}

	for i, trak := range traks {
		desc, table, shift, err := e.readTrack(i, trak)
		if err != nil {
			return fmt.Errorf("track %d: %w", i, err)
		}
		e.tracks = append(e.tracks, desc)
		e.appendSamples(i, desc.Format.Timescale, shift, table)
	}

	sort.SliceStable(e.samples, func(a, b int) bool {
		if e.samples[a].dtsUs != e.samples[b].dtsUs {
			return e.samples[a].dtsUs < e.samples[b].dtsUs
		}
		return e.samples[a].offset < e.samples[b].offset
	})
	e.from = make([]int, len(e.tracks))
	return nil
}

// readTrack also returns the edit list shift, in media timescale units
func (e *Extractor) readTrack(index int, trak *gomp4.BoxInfo) (video.TrackDescriptor, *sampleTable, int64, error) {
	stbl := []gomp4.BoxType{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl()}
	under := func(t gomp4.BoxType) gomp4.BoxPath {
		return append(append(gomp4.BoxPath{}, stbl...), t)
	}

	boxes, err := gomp4.ExtractBoxesWithPayload(e.file, trak, []gomp4.BoxPath{
		{gomp4.BoxTypeTkhd()},
		{gomp4.BoxTypeEdts(), gomp4.BoxTypeElst()},
		{gomp4.BoxTypeMdia(), gomp4.BoxTypeMdhd()},
		{gomp4.BoxTypeMdia(), gomp4.BoxTypeHdlr()},
		under(gomp4.BoxTypeStts()),
		under(gomp4.BoxTypeCtts()),
		under(gomp4.BoxTypeStss()),
		under(gomp4.BoxTypeStsc()),
		under(gomp4.BoxTypeStsz()),
		under(gomp4.BoxTypeStco()),
		under(gomp4.BoxTypeCo64()),
	})
	if err != nil {
		return video.TrackDescriptor{}, nil, 0, err
	}

	var (
		tkhd    *gomp4.Tkhd
		elst    *gomp4.Elst
		mdhd    *gomp4.Mdhd
		hdlr    *gomp4.Hdlr
		stts    *gomp4.Stts
		ctts    *gomp4.Ctts
		stss    *gomp4.Stss
		stsc    *gomp4.Stsc
		stsz    *gomp4.Stsz
		offsets []uint64
	)
	for _, b := range boxes {
		switch p := b.Payload.(type) {
		case *gomp4.Tkhd:
			tkhd = p
		case *gomp4.Elst:
			elst = p
		case *gomp4.Mdhd:
			mdhd = p
		case *gomp4.Hdlr:
			hdlr = p
		case *gomp4.Stts:
			stts = p
		case *gomp4.Ctts:
			ctts = p
		case *gomp4.Stss:
			stss = p
		case *gomp4.Stsc:
			stsc = p
		case *gomp4.Stsz:
			stsz = p
		case *gomp4.Stco:
			for _, o := range p.ChunkOffset {
				offsets = append(offsets, uint64(o))
			}
		case *gomp4.Co64:
			offsets = append(offsets, p.ChunkOffset...)
		}
	}
	if mdhd == nil || hdlr == nil {
		return video.TrackDescriptor{}, nil, 0, fmt.Errorf("missing mdhd or hdlr")
	}

	entry, codec, err := e.readSampleEntry(trak)
	if err != nil {
		return video.TrackDescriptor{}, nil, 0, err
	}

	table, err := expandSampleTable(stts, ctts, stss, stsc, stsz, offsets)
	if err != nil {
		return video.TrackDescriptor{}, nil, 0, err
	}

	handler := string(hdlr.HandlerType[:])
	format := video.Format{
		Codec:       codec,
		Handler:     handler,
		Timescale:   mdhd.Timescale,
		DurationUs:  scaleTime(int64(mdhd.GetDuration()), mdhd.Timescale, microsPerSecond),
		SampleCount: table.len(),
		Language:    decodeLanguage(mdhd.Language),
		Descriptor:  entry,
	}
	if tkhd != nil {
		format.Width = tkhd.Width >> 16
		format.Height = tkhd.Height >> 16
	}
	var shift int64
	if elst != nil {
		shift = firstMediaTime(elst)
	}

	return video.TrackDescriptor{
		SourceIndex: index,
		MimeType:    mimeType(handler, codec),
		Format:      format,
	}, table, shift, nil
}

// readSampleEntry returns the raw bytes of the first stsd entry and its type
func (e *Extractor) readSampleEntry(trak *gomp4.BoxInfo) ([]byte, string, error) {
	stsds, err := gomp4.ExtractBox(e.file, trak, gomp4.BoxPath{
		gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd(),
	})
	if err != nil {
		return nil, "", err
	}
	if len(stsds) == 0 {
		return nil, "", fmt.Errorf("missing stsd")
	}

	// version/flags and entry_count precede the first entry
	entryStart := int64(stsds[0].Offset+stsds[0].HeaderSize) + 8
	if _, err := e.file.Seek(entryStart, io.SeekStart); err != nil {
		return nil, "", err
	}
	info, err := gomp4.ReadBoxInfo(e.file)
	if err != nil {
		return nil, "", fmt.Errorf("read sample entry: %w", err)
	}

	raw := make([]byte, info.Size)
	if _, err := e.file.ReadAt(raw, int64(info.Offset)); err != nil {
		return nil, "", fmt.Errorf("read sample entry: %w", err)
	}
	return raw, info.Type.String(), nil
}

func (e *Extractor) appendSamples(track int, ts uint32, shift int64, t *sampleTable) {
	for i := range t.len() {
		dts := t.dts[i] - shift
		e.samples = append(e.samples, sample{
			track:  track,
			offset: t.offsets[i],
			size:   t.sizes[i],
			dtsUs:  scaleTime(dts, ts, microsPerSecond),
			ptsUs:  scaleTime(dts+t.ctsOff[i], ts, microsPerSecond),
			sync:   t.sync[i],
		})
	}
}

// Tracks implements video.Extractor
func (e *Extractor) Tracks() []video.TrackDescriptor {
	return append([]video.TrackDescriptor(nil), e.tracks...)
}

// DurationUs returns the movie duration
func (e *Extractor) DurationUs() int64 {
	return e.durationUs
}

// SeekTo positions the primary track on its last sync sample at or before
// timeUs. Every other track then starts at its own last sync sample at or
// before that landing point.
func (e *Extractor) SeekTo(timeUs int64) error {
	if len(e.samples) == 0 {
		return nil
	}

	primary := e.primaryTrack()
	landing := e.lastSyncAtOrBefore(primary, timeUs)
	if landing < 0 {
		return fmt.Errorf("track %d has no sync sample", primary)
	}
	landingUs := e.samples[landing].ptsUs

	e.cursor = landing
	for track := range e.tracks {
		idx := landing
		if track != primary {
			idx = e.lastSyncAtOrBefore(track, landingUs)
			if idx < 0 {
				idx = e.firstOf(track)
			}
		}
		e.from[track] = idx
		if idx >= 0 && idx < e.cursor {
			e.cursor = idx
		}
	}

	e.skipUnreachable()
	return nil
}

// primaryTrack is the first video track holding samples
func (e *Extractor) primaryTrack() int {
	for i, t := range e.tracks {
		if t.IsVideo() && e.firstOf(i) >= 0 {
			return i
		}
	}
	return e.samples[0].track
}

// lastSyncAtOrBefore falls back to the first sync sample of the track
func (e *Extractor) lastSyncAtOrBefore(track int, timeUs int64) int {
	found, first := -1, -1
	for i, s := range e.samples {
		if s.track != track || !s.sync {
			continue
		}
		if first < 0 {
			first = i
		}
		if s.ptsUs <= timeUs {
			found = i
		}
	}
	if found < 0 {
		return first
	}
	return found
}

func (e *Extractor) firstOf(track int) int {
	for i, s := range e.samples {
		if s.track == track {
			return i
		}
	}
	return -1
}

func (e *Extractor) skipUnreachable() {
	for e.cursor < len(e.samples) {
		s := e.samples[e.cursor]
		if e.from[s.track] >= 0 && e.cursor >= e.from[s.track] {
			return
		}
		e.cursor++
	}
}

// ReadSample implements video.Extractor
func (e *Extractor) ReadSample(dst []byte) (video.SampleRecord, error) {
	if e.cursor >= len(e.samples) {
		return video.SampleRecord{}, io.EOF
	}

	s := e.samples[e.cursor]
	if int(s.size) > len(dst) {
		return video.SampleRecord{}, fmt.Errorf("%w: %d bytes, buffer holds %d", video.ErrSampleTooLarge, s.size, len(dst))
	}
	if _, err := e.file.ReadAt(dst[:s.size], int64(s.offset)); err != nil {
		return video.SampleRecord{}, fmt.Errorf("read %d bytes at %d: %w", s.size, s.offset, err)
	}

	var flags video.SampleFlags
	if s.sync {
		flags |= video.SampleFlagSync
	}
	return video.SampleRecord{
		TrackIndex:     s.track,
		Size:           int(s.size),
		PresentationUs: s.ptsUs,
		DecodeUs:       s.dtsUs,
		Flags:          flags,
	}, nil
}

// Advance implements video.Extractor
func (e *Extractor) Advance() error {
	if e.cursor < len(e.samples) {
		e.cursor++
		e.skipUnreachable()
	}
	return nil
}

// Close implements video.Extractor
func (e *Extractor) Close() error {
	return e.file.Close()
}

// mimeType maps a handler and sample entry type to a mime type
func mimeType(handler, codec string) string {
	switch handler {
	case "vide":
		switch codec {
		case "avc1", "avc3":
			return "video/avc"
		case "hvc1", "hev1":
			return "video/hevc"
		case "av01":
			return "video/av01"
		case "vp09":
			return "video/x-vnd.on2.vp9"
		case "mp4v":
			return "video/mp4v-es"
		default:
			return video.MimePrefixVideo + strings.TrimSpace(codec)
		}
	case "soun":
		switch codec {
		case "mp4a":
			return "audio/mp4a-latm"
		case "Opus":
			return "audio/opus"
		case "ac-3":
			return "audio/ac3"
		case "ec-3":
			return "audio/eac3"
		default:
			return video.MimeAudioUnknown
		}
	case "text", "sbtl", "subt":
		return "text/" + strings.TrimSpace(codec)
	default:
		return "application/" + strings.TrimSpace(handler)
	}
}

func decodeLanguage(code [3]byte) string {
	if code == [3]byte{} {
		return ""
	}
	return string([]byte{code[0] + 0x60, code[1] + 0x60, code[2] + 0x60})
}

func encodeLanguage(lang string) [3]byte {
	if len(lang) != 3 || strings.ToLower(lang) != lang || strings.Trim(lang, "abcdefghijklmnopqrstuvwxyz") != "" {
		lang = "und"
	}
	return [3]byte{lang[0] - 0x60, lang[1] - 0x60, lang[2] - 0x60}
}

// firstMediaTime returns the media time of the first non-empty edit
func firstMediaTime(elst *gomp4.Elst) int64 {
	for i := range elst.Entries {
		if t := elst.GetMediaTime(i); t >= 0 {
			return t
		}
	}
	return 0
}
