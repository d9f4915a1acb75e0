package trim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"clipmux/domain/video"

	"github.com/rs/zerolog"
)

// DefaultBufferSize is the capacity of the reusable sample buffer
const DefaultBufferSize = 10 * 1024 * 1024

// Engine runs trim invocations. One Engine may serve many invocations
// concurrently; everything mutable lives in the per-invocation state.
type Engine struct {
	opener        video.ContainerOpener
	bufferSize    int
	eagerProgress bool
	logger        zerolog.Logger
	now           func() time.Time
}

// EngineOption is a functional option for configuring Engine
type EngineOption func(*Engine)

// WithBufferSize sets the reusable sample buffer capacity
func WithBufferSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.bufferSize = n
		}
	}
}

// WithEagerProgress reports progress before the end-of-window test, which
// emits one extra event for the sample that closes the window.
func WithEagerProgress(eager bool) EngineOption {
	return func(e *Engine) {
		e.eagerProgress = eager
	}
}

// WithLogger sets the engine logger
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an Engine reading and writing through opener
func NewEngine(opener video.ContainerOpener, opts ...EngineOption) *Engine {
	e := &Engine{
		opener:     opener,
		bufferSize: DefaultBufferSize,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// invocation holds the state owned by a single Run
type invocation struct {
	req  video.TrimRequest
	sess *Session
	emit func(video.ProgressEvent)
	log  zerolog.Logger

	extractor video.Extractor
	muxer     video.Muxer
	started   bool
	tracks    video.TrackMap
	skipped   []int

	seekUs  int64
	written int
	dropped int
}

// Run executes one trim synchronously on the calling goroutine. emit
// receives every progress event in production order; the terminal event is
// always the last one. Run never returns without emitting exactly one
// terminal event.
func (e *Engine) Run(ctx context.Context, req video.TrimRequest, sess *Session, emit func(video.ProgressEvent)) video.Outcome {
	if emit == nil {
		emit = func(video.ProgressEvent) {}
	}

	inv := &invocation{
		req:  req,
		sess: sess,
		emit: emit,
		log:  e.logger.With().Str("invocation", sess.Token().Short()).Logger(),
	}

	out := video.Outcome{
		Token:     sess.Token(),
		Request:   req,
		StartedAt: e.now(),
	}

	// the flag cannot leak into whatever runs next on this session
	defer sess.reset()

	status, err := e.execute(ctx, inv)

	out.Status = status
	out.Err = err
	out.SkippedTracks = inv.skipped
	out.Tracks = inv.tracks.Len()
	out.SamplesWritten = inv.written
	out.SamplesDropped = inv.dropped
	out.SeekUs = inv.seekUs

	switch status {
	case video.StatusDone:
		inv.log.Info().
			Int("written", inv.written).
			Int("dropped", inv.dropped).
			Msg("muxer loop completed")
		inv.terminal(1.0, video.TerminalNone)
	case video.StatusCancelled:
		inv.log.Info().Int("written", inv.written).Msg("trim cancelled")
		inv.terminal(0.0, video.TerminalCancelled)
	default:
		inv.log.Error().Err(err).Msg("muxing failed")
		inv.terminal(0.0, video.TerminalMuxFailure)
	}

	out.CleanupErr = inv.cleanup()
	out.FinishedAt = e.now()
	return out
}

// execute runs negotiation, seek and the copy loop, converting panics from
// adapters into a failed status.
func (e *Engine) execute(ctx context.Context, inv *invocation) (status video.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = video.StatusFailed, fmt.Errorf("panic during trim: %v", r)
		}
	}()

	if inv.sess.Cancelled() || ctx.Err() != nil {
		return video.StatusCancelled, nil
	}

	inv.extractor, err = e.opener.OpenSource(ctx, inv.req.SourcePath)
	if err != nil {
		return video.StatusFailed, fmt.Errorf("open source: %w", err)
	}

	inv.muxer, err = e.opener.CreateDestination(ctx, inv.req.DestinationPath)
	if err != nil {
		return video.StatusFailed, fmt.Errorf("create destination: %w", err)
	}

	inv.tracks, inv.skipped = negotiate(inv.extractor.Tracks(), inv.muxer, inv.req.KeepAudio, inv.log)
	inv.log.Debug().Ints("tracks", inv.tracks.Sources()).Ints("skipped", inv.skipped).Msg("tracks negotiated")

	startUs := inv.req.StartUs()
	if startUs > 0 {
		inv.log.Debug().Int64("start_us", startUs).Msg("seeking to closest sync point")
		if err := inv.extractor.SeekTo(startUs); err != nil {
			return video.StatusFailed, fmt.Errorf("seek to %dus: %w", startUs, err)
		}
	}

	if err := inv.muxer.Start(); err != nil {
		return video.StatusFailed, fmt.Errorf("start muxer: %w", err)
	}
	inv.started = true

	return e.copyLoop(ctx, inv)
}

// copyLoop moves samples from the extractor to the muxer until the window
// closes, the source ends, the invocation is cancelled or a step fails.
func (e *Engine) copyLoop(ctx context.Context, inv *invocation) (video.Status, error) {
	buf := make([]byte, e.bufferSize)
	startUs, endUs := inv.req.StartUs(), inv.req.EndUs()

	var (
		lastProgress float64
		baseUs       int64
		first        = true
	)

	for {
		if inv.sess.Cancelled() || ctx.Err() != nil {
			return video.StatusCancelled, nil
		}

		rec, err := inv.extractor.ReadSample(buf)
		eos := errors.Is(err, io.EOF)
		if err != nil && !eos {
			return video.StatusFailed, fmt.Errorf("read sample: %w", err)
		}

		if !eos {
			progress := windowProgress(rec.PresentationUs, startUs, endUs)
			if progress != lastProgress && (e.eagerProgress || rec.PresentationUs <= endUs) {
				lastProgress = progress
				inv.progress(progress)
			}
		}

		if eos || rec.PresentationUs > endUs {
			return video.StatusDone, nil
		}

		if first {
			// the origin is the sync point's presentation time, which may
			// sit before the requested start. Decode times may precede it;
			// the muxer absorbs that with an edit list.
			baseUs = min(startUs, rec.PresentationUs)
			inv.seekUs = baseUs
			first = false
		}

		if dst, ok := inv.tracks.Lookup(rec.TrackIndex); ok {
			if err := inv.muxer.WriteSample(dst, buf[:rec.Size], rec.Rebase(baseUs)); err != nil {
				return video.StatusFailed, fmt.Errorf("write sample to track %d: %w", dst, err)
			}
			inv.written++
		} else {
			inv.dropped++
		}

		if err := inv.extractor.Advance(); err != nil {
			return video.StatusFailed, fmt.Errorf("advance: %w", err)
		}
	}
}

// windowProgress normalizes a source timestamp against the window. The
// divisor is the window end, not its length.
func windowProgress(sampleUs, startUs, endUs int64) float64 {
	p := float64(sampleUs-startUs) / float64(endUs)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func (inv *invocation) progress(p float64) {
	inv.emit(video.ProgressEvent{
		Token:           inv.sess.Token(),
		SourcePath:      inv.req.SourcePath,
		DestinationPath: inv.req.DestinationPath,
		Progress:        p,
	})
}

func (inv *invocation) terminal(p float64, code video.TerminalCode) {
	inv.emit(video.ProgressEvent{
		Token:           inv.sess.Token(),
		SourcePath:      inv.req.SourcePath,
		DestinationPath: inv.req.DestinationPath,
		Progress:        p,
		Terminal:        true,
		Code:            code,
		SkippedTracks:   append([]int(nil), inv.skipped...),
	})
}

// cleanup stops and releases the muxer and closes the extractor. Failures
// are logged and returned for the diagnostic record only.
func (inv *invocation) cleanup() (cleanupErr error) {
	defer func() {
		if r := recover(); r != nil {
			cleanupErr = errors.Join(cleanupErr, fmt.Errorf("panic during cleanup: %v", r))
		}
		if cleanupErr != nil {
			inv.log.Warn().Err(cleanupErr).Msg("stopping/releasing the muxer has failed, ignoring")
		}
	}()

	if inv.muxer != nil {
		if inv.started {
			if err := inv.muxer.Stop(); err != nil {
				cleanupErr = errors.Join(cleanupErr, fmt.Errorf("stop muxer: %w", err))
			}
		}
		if err := inv.muxer.Release(); err != nil {
			cleanupErr = errors.Join(cleanupErr, fmt.Errorf("release muxer: %w", err))
		}
	}

	if inv.extractor != nil {
		if err := inv.extractor.Close(); err != nil {
			inv.log.Debug().Err(err).Msg("closing extractor failed")
		}
	}

	return cleanupErr
}
