package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsBadExpression(t *testing.T) {
	_, err := New("not a cron spec", func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestNewAcceptsFiveFields(t *testing.T) {
	for _, spec := range []string{"0 */6 * * *", "*/5 * * * *", "30 2 * * 1"} {
		if _, err := New(spec, func(context.Context) error { return nil }); err != nil {
			t.Errorf("expected %q accepted: %v", spec, err)
		}
	}
}

func TestRunExecutesImmediately(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	s, err := New("0 0 1 1 *", func(context.Context) error {
		runs.Add(1)
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not run the job immediately")
	}
	if runs.Load() != 1 {
		t.Errorf("expected 1 immediate run, got %d", runs.Load())
	}
}

func TestOverlappingTickIsSuppressed(t *testing.T) {
	block := make(chan struct{})
	var runs atomic.Int32

	s, err := New("* * * * *", func(context.Context) error {
		runs.Add(1)
		<-block
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runOnce(ctx)
	}()

	// Let the first cycle get going, then fire a second tick.
	for runs.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	s.runOnce(ctx)

	if runs.Load() != 1 {
		t.Errorf("expected overlapping tick suppressed, got %d runs", runs.Load())
	}

	close(block)
	wg.Wait()

	// With the first cycle finished, the next tick runs again.
	s.runOnce(ctx)
	if runs.Load() != 2 {
		t.Errorf("expected run after previous cycle ended, got %d runs", runs.Load())
	}
}

func TestJobErrorDoesNotStopScheduler(t *testing.T) {
	var runs atomic.Int32
	s, err := New("* * * * *", func(context.Context) error {
		runs.Add(1)
		return errors.New("cycle failed")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	s.runOnce(ctx)
	s.runOnce(ctx)
	if runs.Load() != 2 {
		t.Errorf("expected failing job to keep running, got %d runs", runs.Load())
	}
}
