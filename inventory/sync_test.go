package inventory

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeSource struct {
	qty   float64
	entry float64
	err   error
	calls int
}

func (f *fakeSource) Position() (float64, float64, error) {
	f.calls++
	return f.qty, f.entry, f.err
}

func TestSyncerMirrorsPosition(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	src := &fakeSource{qty: 1.5, entry: 99}
	tr := &Tracker{}
	s := &Syncer{Source: src, Tracker: tr, Interval: time.Second, Clock: clk, Logger: zap.NewNop()}

	synced, err := s.Sync()
	if err != nil || !synced {
		t.Fatalf("first sync: synced=%v err=%v", synced, err)
	}
	if tr.RealQ() != 1.5 || tr.LocalQ() != 1.5 {
		t.Errorf("local/real = %f/%f, want both 1.5", tr.LocalQ(), tr.RealQ())
	}
	if tr.EntryPrice() != 99 {
		t.Errorf("entry price = %f, want 99", tr.EntryPrice())
	}
}

func TestSyncerThrottled(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	src := &fakeSource{qty: 1}
	s := &Syncer{Source: src, Tracker: &Tracker{}, Interval: time.Second, Clock: clk, Logger: zap.NewNop()}

	s.Sync()
	clk.now = clk.now.Add(500 * time.Millisecond)
	synced, err := s.Sync()
	if err != nil {
		t.Fatalf("throttled sync returned error: %v", err)
	}
	if synced {
		t.Error("sync within interval should be skipped")
	}
	if src.calls != 1 {
		t.Errorf("source queried %d times, want 1", src.calls)
	}

	clk.now = clk.now.Add(time.Second)
	if synced, _ := s.Sync(); !synced {
		t.Error("sync after interval should run")
	}
}

func TestSyncerKeepsStaleValueOnError(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	src := &fakeSource{qty: 2}
	tr := &Tracker{}
	s := &Syncer{Source: src, Tracker: tr, Interval: time.Second, Clock: clk, Logger: zap.NewNop()}

	s.Sync()
	src.err = errors.New("venue down")
	clk.now = clk.now.Add(2 * time.Second)

	if _, err := s.Sync(); err == nil {
		t.Fatal("expected error from failed sync")
	}
	if tr.RealQ() != 2 {
		t.Errorf("stale position lost: real = %f, want 2", tr.RealQ())
	}

	// Failed sync does not stamp the interval: the next call retries.
	src.err = nil
	src.qty = 3
	if synced, _ := s.Sync(); !synced {
		t.Error("retry after failure should run immediately")
	}
	if tr.RealQ() != 3 {
		t.Errorf("real = %f, want 3", tr.RealQ())
	}
}
