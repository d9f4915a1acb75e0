package system

import "testing"

func TestProcessingUnits(t *testing.T) {
	if n := ProcessingUnits(); n < 1 {
		t.Errorf("ProcessingUnits() = %d, want at least 1", n)
	}
}

func TestPoolSize(t *testing.T) {
	if got := PoolSize(3); got != 3 {
		t.Errorf("PoolSize(3) = %d", got)
	}
	if got := PoolSize(0); got != ProcessingUnits() {
		t.Errorf("PoolSize(0) = %d, want %d", got, ProcessingUnits())
	}
	if got := PoolSize(-2); got < 1 {
		t.Errorf("PoolSize(-2) = %d", got)
	}
}
