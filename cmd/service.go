package cmd

import (
	"io"

	"clipmux/application/trim"
	"clipmux/domain/video"
	"clipmux/infrastructure/config"
	"clipmux/infrastructure/console"
	"clipmux/infrastructure/filesystem"
	"clipmux/infrastructure/history"
	"clipmux/infrastructure/mp4"
	"clipmux/infrastructure/system"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// OutputWriter allows capturing output in tests
type OutputWriter interface {
	Write(p []byte) (n int, err error)
}

// TrimDependencies are the collaborators of the trim and batch commands
type TrimDependencies struct {
	Opener      video.ContainerOpener
	FileChecker video.FileChecker
	Locker      trim.DestinationLocker
	Recorder    trim.Recorder
	Prompter    Prompter
	// Interactive allows the overwrite prompt; otherwise --force is required
	Interactive bool
	Output      OutputWriter
	// Progress receives the progress bar or log lines; nil disables them
	Progress io.Writer
	Logger   zerolog.Logger
}

// productionDependencies wires the MP4 adapters, the destination lock and
// the history store. The returned closer releases the store.
func productionDependencies(cfg *config.Config, stdout, stderr io.Writer) (TrimDependencies, func() error) {
	deps := TrimDependencies{
		Opener:      mp4.NewOpener(),
		FileChecker: filesystem.NewChecker(),
		Locker:      filesystem.NewDestinationLocker(),
		Prompter:    DefaultPrompter,
		Interactive: console.IsTerminal(stderr),
		Output:      stdout,
		Progress:    stderr,
		Logger:      log.Logger,
	}

	closer := func() error { return nil }
	if path := cfg.Paths.HistoryDatabase; path != "" {
		store, err := history.Open(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("history disabled")
		} else {
			deps.Recorder = store
			closer = store.Close
		}
	}

	return deps, closer
}

// newService builds a trim service for cfg on top of deps
func newService(cfg *config.Config, deps TrimDependencies, workers int) *trim.Service {
	engine := trim.NewEngine(deps.Opener,
		trim.WithBufferSize(cfg.Engine.BufferSize),
		trim.WithEagerProgress(cfg.Engine.EagerProgress),
		trim.WithLogger(deps.Logger),
	)

	opts := []trim.ServiceOption{
		trim.WithWorkers(workers),
		trim.WithServiceLogger(deps.Logger),
	}
	if deps.FileChecker != nil {
		opts = append(opts, trim.WithFileChecker(deps.FileChecker))
	}
	if deps.Locker != nil {
		opts = append(opts, trim.WithDestinationLocker(deps.Locker))
	}
	if deps.Recorder != nil {
		opts = append(opts, trim.WithRecorder(deps.Recorder))
	}

	return trim.NewService(engine, opts...)
}

// poolSize resolves the configured worker count
func poolSize(cfg *config.Config) int {
	return system.PoolSize(cfg.Engine.Workers)
}
