//go:build integration

package steps

import (
	"fmt"

	"clipmux/domain/video"
	"clipmux/infrastructure/mp4"
)

const (
	clipFrameUs      = 40_000
	clipAudioFrameUs = 20_000
	clipGOP          = 10
)

func clipEntry(boxType string, payload ...byte) []byte {
	out := []byte{0, 0, 0, byte(8 + len(payload))}
	out = append(out, boxType...)
	return append(out, payload...)
}

// writeClip writes seconds of 25fps video with a sync frame every 400ms and,
// when withAudio is set, 50Hz audio frames
func writeClip(path string, seconds int, withAudio bool) error {
	m, err := mp4.CreateMuxer(path)
	if err != nil {
		return err
	}
	defer m.Release()

	vi, err := m.AddTrack(video.TrackDescriptor{
		MimeType: "video/avc",
		Format: video.Format{
			Codec:      "avc1",
			Handler:    "vide",
			Timescale:  90000,
			Width:      320,
			Height:     240,
			Descriptor: clipEntry("avc1", 1, 2, 3, 4),
		},
	})
	if err != nil {
		return err
	}

	ai := -1
	if withAudio {
		ai, err = m.AddTrack(video.TrackDescriptor{
			SourceIndex: 1,
			MimeType:    "audio/mp4a-latm",
			Format: video.Format{
				Codec:      "mp4a",
				Handler:    "soun",
				Timescale:  1000,
				Language:   "eng",
				Descriptor: clipEntry("mp4a", 5, 6),
			},
		})
		if err != nil {
			return err
		}
	}

	if err := m.Start(); err != nil {
		return err
	}

	durationUs := int64(seconds) * 1_000_000
	v, a := 0, 0
	for {
		vts, ats := int64(v)*clipFrameUs, int64(a)*clipAudioFrameUs
		if !withAudio {
			ats = durationUs
		}
		if vts >= durationUs && ats >= durationUs {
			break
		}

		if vts <= ats && vts < durationUs {
			var flags video.SampleFlags
			if v%clipGOP == 0 {
				flags = video.SampleFlagSync
			}
			data := []byte{0, 0, 0, 2, 0x65, byte(v)}
			if err := m.WriteSample(vi, data, video.SampleInfo{Size: len(data), PresentationUs: vts, DecodeUs: vts, Flags: flags}); err != nil {
				return fmt.Errorf("video frame %d: %w", v, err)
			}
			v++
			continue
		}

		data := []byte{0x21, byte(a)}
		if err := m.WriteSample(ai, data, video.SampleInfo{Size: len(data), PresentationUs: ats, DecodeUs: ats, Flags: video.SampleFlagSync}); err != nil {
			return fmt.Errorf("audio frame %d: %w", a, err)
		}
		a++
	}

	return m.Stop()
}
