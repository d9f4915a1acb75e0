package mp4

import (
	"fmt"
	"math"

	gomp4 "github.com/abema/go-mp4"
)

// sampleTable is the expanded form of one track's stbl
type sampleTable struct {
	sizes   []uint32
	offsets []uint64
	dts     []int64
	ctsOff  []int64
	sync    []bool
}

func (t *sampleTable) len() int {
	return len(t.sizes)
}

// expandSampleTable resolves the run-length encoded stbl boxes into one
// entry per sample. stss and ctts are optional.
func expandSampleTable(stts *gomp4.Stts, ctts *gomp4.Ctts, stss *gomp4.Stss, stsc *gomp4.Stsc, stsz *gomp4.Stsz, chunkOffsets []uint64) (*sampleTable, error) {
	if stts == nil || stsc == nil || stsz == nil {
		return nil, fmt.Errorf("incomplete sample table")
	}

	n := int(stsz.SampleCount)
	t := &sampleTable{
		sizes:   make([]uint32, n),
		offsets: make([]uint64, n),
		dts:     make([]int64, n),
		ctsOff:  make([]int64, n),
		sync:    make([]bool, n),
	}

	for i := range n {
		if stsz.SampleSize != 0 {
			t.sizes[i] = stsz.SampleSize
		} else {
			t.sizes[i] = stsz.EntrySize[i]
		}
	}

	var (
		sample int
		clock  int64
	)
	for _, e := range stts.Entries {
		for range e.SampleCount {
			if sample == n {
				break
			}
			t.dts[sample] = clock
			clock += int64(e.SampleDelta)
			sample++
		}
	}
	if sample < n {
		return nil, fmt.Errorf("stts covers %d of %d samples", sample, n)
	}

	if ctts != nil {
		sample = 0
		for i, e := range ctts.Entries {
			off := ctts.GetSampleOffset(i)
			for range e.SampleCount {
				if sample == n {
					break
				}
				t.ctsOff[sample] = off
				sample++
			}
		}
	}

	if stss == nil {
		for i := range t.sync {
			t.sync[i] = true
		}
	} else {
		for _, num := range stss.SampleNumber {
			if num >= 1 && int(num) <= n {
				t.sync[num-1] = true
			}
		}
	}

	sample = 0
	for i, e := range stsc.Entries {
		last := uint32(len(chunkOffsets))
		if i+1 < len(stsc.Entries) {
			last = stsc.Entries[i+1].FirstChunk - 1
		}
		for chunk := e.FirstChunk; chunk <= last && sample < n; chunk++ {
			if chunk == 0 || int(chunk) > len(chunkOffsets) {
				return nil, fmt.Errorf("stsc references chunk %d of %d", chunk, len(chunkOffsets))
			}
			off := chunkOffsets[chunk-1]
			for k := uint32(0); k < e.SamplesPerChunk && sample < n; k++ {
				t.offsets[sample] = off
				off += uint64(t.sizes[sample])
				sample++
			}
		}
	}
	if sample < n {
		return nil, fmt.Errorf("chunks cover %d of %d samples", sample, n)
	}

	return t, nil
}

// chunk is a run of consecutive samples of one track in mdat
type chunk struct {
	offset  uint64
	samples uint32
}

// tableBuilder accumulates what a muxer learns about one track's samples
type tableBuilder struct {
	sizes  []uint32
	dts    []int64
	ctsOff []int64
	syncs  []uint32
	chunks []chunk
	// fallbackDelta is the duration of a lone sample
	fallbackDelta uint32
}

func (b *tableBuilder) add(size uint32, dts, ctsOff int64, sync bool, offset uint64, newChunk bool) {
	b.sizes = append(b.sizes, size)
	b.dts = append(b.dts, dts)
	b.ctsOff = append(b.ctsOff, ctsOff)
	if sync {
		b.syncs = append(b.syncs, uint32(len(b.sizes)))
	}
	if newChunk || len(b.chunks) == 0 {
		b.chunks = append(b.chunks, chunk{offset: offset})
	}
	b.chunks[len(b.chunks)-1].samples++
}

// deltas returns per-sample durations. The last sample repeats the
// previous delta, or takes fallbackDelta when it is alone.
func (b *tableBuilder) deltas() []uint32 {
	n := len(b.dts)
	out := make([]uint32, n)
	for i := 0; i+1 < n; i++ {
		out[i] = uint32(b.dts[i+1] - b.dts[i])
	}
	switch {
	case n > 1:
		out[n-1] = out[n-2]
	case n == 1:
		out[0] = b.fallbackDelta
	}
	return out
}

// duration is the track length in media timescale units
func (b *tableBuilder) duration() uint64 {
	var total uint64
	for _, d := range b.deltas() {
		total += uint64(d)
	}
	return total
}

func (b *tableBuilder) stts() *gomp4.Stts {
	box := &gomp4.Stts{}
	for _, d := range b.deltas() {
		if n := len(box.Entries); n > 0 && box.Entries[n-1].SampleDelta == d {
			box.Entries[n-1].SampleCount++
			continue
		}
		box.Entries = append(box.Entries, gomp4.SttsEntry{SampleCount: 1, SampleDelta: d})
	}
	box.EntryCount = uint32(len(box.Entries))
	return box
}

// ctts returns nil when every composition offset is zero
func (b *tableBuilder) ctts() *gomp4.Ctts {
	var (
		needed   bool
		negative bool
	)
	for _, off := range b.ctsOff {
		needed = needed || off != 0
		negative = negative || off < 0
	}
	if !needed {
		return nil
	}

	box := &gomp4.Ctts{}
	if negative {
		box.SetVersion(1)
	}
	var prev int64
	for i, off := range b.ctsOff {
		if n := len(box.Entries); n > 0 && i > 0 && prev == off {
			box.Entries[n-1].SampleCount++
			continue
		}
		entry := gomp4.CttsEntry{SampleCount: 1}
		if negative {
			entry.SampleOffsetV1 = int32(off)
		} else {
			entry.SampleOffsetV0 = uint32(off)
		}
		box.Entries = append(box.Entries, entry)
		prev = off
	}
	box.EntryCount = uint32(len(box.Entries))
	return box
}

// stss returns nil when every sample is a sync sample
func (b *tableBuilder) stss() *gomp4.Stss {
	if len(b.syncs) == len(b.sizes) {
		return nil
	}
	return &gomp4.Stss{
		EntryCount:   uint32(len(b.syncs)),
		SampleNumber: append([]uint32{}, b.syncs...),
	}
}

func (b *tableBuilder) stsc() *gomp4.Stsc {
	box := &gomp4.Stsc{}
	for i, c := range b.chunks {
		if n := len(box.Entries); n > 0 && box.Entries[n-1].SamplesPerChunk == c.samples {
			continue
		}
		box.Entries = append(box.Entries, gomp4.StscEntry{
			FirstChunk:             uint32(i + 1),
			SamplesPerChunk:        c.samples,
			SampleDescriptionIndex: 1,
		})
	}
	box.EntryCount = uint32(len(box.Entries))
	return box
}

func (b *tableBuilder) stsz() *gomp4.Stsz {
	box := &gomp4.Stsz{SampleCount: uint32(len(b.sizes))}
	uniform := len(b.sizes) > 0
	for _, s := range b.sizes {
		if s != b.sizes[0] {
			uniform = false
			break
		}
	}
	if uniform {
		box.SampleSize = b.sizes[0]
		return box
	}
	box.EntrySize = append([]uint32{}, b.sizes...)
	return box
}

// chunkOffsetBox returns stco, or co64 once any offset passes 4 GiB
func (b *tableBuilder) chunkOffsetBox() gomp4.IImmutableBox {
	large := false
	for _, c := range b.chunks {
		if c.offset > math.MaxUint32 {
			large = true
			break
		}
	}

	if large {
		box := &gomp4.Co64{EntryCount: uint32(len(b.chunks))}
		for _, c := range b.chunks {
			box.ChunkOffset = append(box.ChunkOffset, c.offset)
		}
		return box
	}

	box := &gomp4.Stco{EntryCount: uint32(len(b.chunks))}
	for _, c := range b.chunks {
		box.ChunkOffset = append(box.ChunkOffset, uint32(c.offset))
	}
	return box
}

// scaleTime converts v from one timescale to another
func scaleTime(v int64, from, to uint32) int64 {
	if from == to || from == 0 {
		return v
	}
	return v * int64(to) / int64(from)
}
