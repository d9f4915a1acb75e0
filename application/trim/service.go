package trim

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"clipmux/domain/video"

	"github.com/rs/zerolog"
)

// ErrServiceClosed is returned by Trim after Shutdown
var ErrServiceClosed = errors.New("trim service is shut down")

// Recorder persists the diagnostic record of finished invocations
type Recorder interface {
	Record(ctx context.Context, out video.Outcome) error
}

// DestinationLocker guards a destination path for the life of an invocation
type DestinationLocker interface {
	Lock(path string) (unlock func() error, err error)
}

// Service accepts trim requests and runs them on a bounded worker pool.
// Each invocation gets its own token, reporter, handles and buffer.
type Service struct {
	engine      *Engine
	dispatcher  *Dispatcher
	fileChecker video.FileChecker
	locker      DestinationLocker
	recorder    Recorder
	slots       chan struct{}
	logger      zerolog.Logger

	mu     sync.Mutex
	jobs   map[video.Token]*Job
	closed bool
	wg     sync.WaitGroup
}

// ServiceOption is a functional option for configuring Service
type ServiceOption func(*Service)

// WithWorkers sets the pool size; n <= 0 keeps the default
func WithWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

// WithFileChecker rejects requests whose source does not exist
func WithFileChecker(checker video.FileChecker) ServiceOption {
	return func(s *Service) {
		s.fileChecker = checker
	}
}

// WithDestinationLocker holds a lock on each destination while it is written
func WithDestinationLocker(locker DestinationLocker) ServiceOption {
	return func(s *Service) {
		s.locker = locker
	}
}

// WithRecorder stores an Outcome for every finished invocation
func WithRecorder(recorder Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithServiceLogger sets the service logger
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service. The pool defaults to one worker per
// processing unit.
func NewService(engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		engine: engine,
		slots:  make(chan struct{}, runtime.NumCPU()),
		logger: zerolog.Nop(),
		jobs:   make(map[video.Token]*Job),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.dispatcher = NewDispatcher(s.logger)
	return s
}

// Workers returns the pool size
func (s *Service) Workers() int {
	return cap(s.slots)
}

// Trim validates req and schedules it. Validation failures are returned
// synchronously and produce no progress event. Otherwise reporter, which
// may be nil, receives the progress events of this invocation only, ending
// with exactly one terminal event.
func (s *Service) Trim(ctx context.Context, req video.TrimRequest, reporter video.ProgressReporter) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if s.fileChecker != nil && !s.fileChecker.Exists(req.SourcePath) {
		return nil, fmt.Errorf("%w: source file does not exist: %s", video.ErrInvalidRequest, req.SourcePath)
	}

	unlock := func() error { return nil }
	if s.locker != nil {
		var err error
		if unlock, err = s.locker.Lock(req.DestinationPath); err != nil {
			return nil, fmt.Errorf("lock destination: %w", err)
		}
	}

	job := &Job{
		session: NewSession(),
		request: req,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = unlock()
		return nil, ErrServiceClosed
	}
	s.jobs[job.Token()] = job
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ctx, job, reporter, unlock)
	return job, nil
}

func (s *Service) run(ctx context.Context, job *Job, reporter video.ProgressReporter, unlock func() error) {
	defer s.wg.Done()
	log := s.logger.With().Str("invocation", job.Token().Short()).Logger()

	s.slots <- struct{}{}
	out := s.engine.Run(ctx, job.request, job.session, func(ev video.ProgressEvent) {
		s.dispatcher.Post(reporter, ev)
	})
	<-s.slots

	if err := unlock(); err != nil {
		log.Warn().Err(err).Msg("releasing destination lock failed")
	}

	if s.recorder != nil {
		if err := s.recorder.Record(context.WithoutCancel(ctx), out); err != nil {
			log.Warn().Err(err).Msg("recording outcome failed")
		}
	}

	s.mu.Lock()
	delete(s.jobs, job.Token())
	s.mu.Unlock()

	job.outcome = out
	s.dispatcher.After(func() { close(job.done) })
}

// Cancel requests cancellation of the invocation identified by token
func (s *Service) Cancel(token video.Token) error {
	s.mu.Lock()
	job, ok := s.jobs[token]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", video.ErrUnknownToken, token)
	}
	job.Cancel()
	return nil
}

// CancelAll requests cancellation of every running invocation
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		job.Cancel()
	}
}

// Running returns the tokens of invocations that have not finished
func (s *Service) Running() []video.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]video.Token, 0, len(s.jobs))
	for token := range s.jobs {
		tokens = append(tokens, token)
	}
	return tokens
}

// Shutdown stops accepting work and waits for running invocations. When
// ctx expires first, the remaining invocations are cancelled and waited for.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = ctx.Err()
		s.CancelAll()
		<-finished
	}

	s.dispatcher.Close()
	return err
}

// Job is the caller's handle on one scheduled invocation
type Job struct {
	session *Session
	request video.TrimRequest
	done    chan struct{}
	outcome video.Outcome
}

// Token returns the invocation token
func (j *Job) Token() video.Token {
	return j.session.Token()
}

// Request returns the request being processed
func (j *Job) Request() video.TrimRequest {
	return j.request
}

// Cancel requests cooperative cancellation of this invocation
func (j *Job) Cancel() {
	j.session.Cancel()
}

// Done is closed once the terminal event has been delivered and the
// invocation's resources are released
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the invocation has finished or ctx expires
func (j *Job) Wait(ctx context.Context) (video.Outcome, error) {
	select {
	case <-j.done:
		return j.outcome, nil
	case <-ctx.Done():
		return video.Outcome{}, ctx.Err()
	}
}
