package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestChecker(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(file, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewChecker()
	if !c.Exists(file) {
		t.Error("expected file to exist")
	}
	if c.Exists(dir) {
		t.Error("a directory is not a source file")
	}
	if c.Exists(filepath.Join(dir, "missing.mp4")) {
		t.Error("expected missing file to not exist")
	}
	if got := c.Size(file); got != 5 {
		t.Errorf("Size() = %d, want 5", got)
	}
	if got := c.Size(filepath.Join(dir, "missing.mp4")); got != 0 {
		t.Errorf("Size() of missing file = %d, want 0", got)
	}
}

func TestDestinationLocker(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.mp4")
	l := NewDestinationLocker()

	unlock, err := l.Lock(dest)
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	if _, err := l.Lock(dest); !errors.Is(err, ErrDestinationBusy) {
		t.Errorf("second Lock() = %v, want ErrDestinationBusy", err)
	}

	held, err := os.Stat(dest + ".lock")
	if err != nil {
		t.Fatalf("lock file missing while held: %v", err)
	}

	if err := unlock(); err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	released, err := os.Stat(dest + ".lock")
	if err != nil {
		t.Fatalf("lock file removed on unlock: %v", err)
	}
	if !os.SameFile(held, released) {
		t.Error("lock file replaced on unlock")
	}

	unlock, err = l.Lock(dest)
	if err != nil {
		t.Fatalf("Lock() after unlock error = %v", err)
	}
	// a third holder must still be excluded by the same file
	if _, err := l.Lock(dest); !errors.Is(err, ErrDestinationBusy) {
		t.Errorf("Lock() while relocked = %v, want ErrDestinationBusy", err)
	}
	_ = unlock()
}
