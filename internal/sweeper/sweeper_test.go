package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"institutional-custody-go/internal/custody"
)

type fakeExpirer struct {
	calls atomic.Int64
	err   error
}

func (f *fakeExpirer) ExpireStale(ctx context.Context) (custody.ExpiryReport, error) {
	f.calls.Add(1)
	if f.err != nil {
		return custody.ExpiryReport{}, f.err
	}
	return custody.ExpiryReport{Transactions: 1}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestSweeper_RunsImmediately(t *testing.T) {
	expirer := &fakeExpirer{}
	s := NewSweeper(expirer, time.Hour, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return s.Runs() >= 1 })
	if expirer.calls.Load() < 1 {
		t.Error("Expected ExpireStale to be called")
	}
}

func TestSweeper_SurvivesFailures(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("database is locked")}
	s := NewSweeper(expirer, 20*time.Millisecond, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return s.Runs() >= 3 })
	s.Stop()

	after := expirer.calls.Load()
	time.Sleep(100 * time.Millisecond)
	if expirer.calls.Load() != after {
		t.Error("Expected no sweeps after Stop")
	}

	// Stop is safe to repeat
	s.Stop()
}

func TestNewSweeper_Defaults(t *testing.T) {
	s := NewSweeper(&fakeExpirer{}, 0, nil)
	if s.interval != time.Minute || s.clock == nil {
		t.Errorf("Unexpected defaults: interval=%v clock=%v", s.interval, s.clock)
	}
}
