package filesystem

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrDestinationBusy is returned when another invocation is writing the
// same destination
var ErrDestinationBusy = errors.New("destination is being written by another trim")

// DestinationLocker takes an advisory lock next to each destination file
type DestinationLocker struct{}

// NewDestinationLocker creates a DestinationLocker
func NewDestinationLocker() *DestinationLocker {
	return &DestinationLocker{}
}

// Lock acquires <path>.lock without blocking. The returned function
// releases the lock; the file stays so every holder locks the same inode.
func (l *DestinationLocker) Lock(path string) (func() error, error) {
	lockPath := path + ".lock"
	fl := flock.New(lockPath)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDestinationBusy, path)
	}

	return func() error {
		if err := fl.Unlock(); err != nil {
			return fmt.Errorf("unlock %s: %w", lockPath, err)
		}
		return nil
	}, nil
}
