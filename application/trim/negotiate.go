package trim

import (
	"clipmux/domain/video"

	"github.com/rs/zerolog"
)

// negotiate declares the selected source tracks in the destination in
// discovery order and returns the resulting routes. A track the muxer
// refuses is skipped and reported; negotiation continues with the rest.
func negotiate(tracks []video.TrackDescriptor, muxer video.Muxer, keepAudio bool, log zerolog.Logger) (video.TrackMap, []int) {
	var (
		routes  video.TrackMapBuilder
		skipped []int
	)

	for _, track := range tracks {
		log.Debug().Int("track", track.SourceIndex).Str("mime", track.MimeType).Msg("discovered track")

		if !track.Selected(keepAudio) {
			continue
		}

		dst, err := muxer.AddTrack(track)
		if err != nil {
			log.Warn().
				Err(err).
				Int("track", track.SourceIndex).
				Str("mime", track.MimeType).
				Msg("track can not be added, continuing without it")
			skipped = append(skipped, track.SourceIndex)
			continue
		}

		routes.Add(track.SourceIndex, dst)
	}

	return routes.Build(), skipped
}
