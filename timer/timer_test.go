package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerManager_OneShot(t *testing.T) {
	manager := NewTimerManager()
	defer manager.Stop()

	var fired atomic.Int32
	manager.AddTimer(5*time.Millisecond, 0, func() {
		fired.Add(1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && fired.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	if fired.Load() != 1 {
		t.Fatalf("Expected one-shot timer to fire exactly once, got %d", fired.Load())
	}
}

func TestTimerManager_Periodic(t *testing.T) {
	manager := NewTimerManager()
	defer manager.Stop()

	var fired atomic.Int32
	manager.AddTimer(0, 10*time.Millisecond, func() {
		fired.Add(1)
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && fired.Load() < 3 {
		time.Sleep(10 * time.Millisecond)
	}

	if fired.Load() < 3 {
		t.Fatalf("Expected periodic timer to fire repeatedly, got %d", fired.Load())
	}
}

func TestTimerManager_Remove(t *testing.T) {
	manager := NewTimerManager()
	defer manager.Stop()

	var fired atomic.Int32
	id := manager.AddTimer(50*time.Millisecond, 0, func() {
		fired.Add(1)
	})
	manager.RemoveTimer(id)

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("Expected removed timer not to fire, got %d", fired.Load())
	}
}
