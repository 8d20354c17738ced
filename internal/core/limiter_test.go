package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunLimiter_AcquireRelease(t *testing.T) {
	l := NewRunLimiter(2, 50*time.Millisecond)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}

	status := l.Status()
	if status.Active != 2 || status.Available != 0 || status.MaxConcurrent != 2 {
		t.Errorf("Status() = %+v, want 2 active, 0 available", status)
	}

	if err := l.Acquire(ctx); !errors.Is(err, ErrTooManyRuns) {
		t.Errorf("third Acquire() error = %v, want ErrTooManyRuns", err)
	}

	l.Release()
	if err := l.Acquire(ctx); err != nil {
		t.Errorf("Acquire() after Release error = %v", err)
	}
	l.Release()
	l.Release()

	if got := l.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}
}

func TestRunLimiter_Defaults(t *testing.T) {
	l := NewRunLimiter(0, 0)
	if got := l.Status().MaxConcurrent; got != DefaultMaxConcurrentRuns {
		t.Errorf("MaxConcurrent = %d, want %d", got, DefaultMaxConcurrentRuns)
	}
	if l.maxWait != DefaultMaxWaitTime {
		t.Errorf("maxWait = %v, want %v", l.maxWait, DefaultMaxWaitTime)
	}
}

func TestRunLimiter_WaitForDrain(t *testing.T) {
	l := NewRunLimiter(1, time.Second)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain() with active run = %v, want deadline exceeded", err)
	}

	l.Release()
	if err := l.WaitForDrain(context.Background()); err != nil {
		t.Errorf("WaitForDrain() = %v, want nil", err)
	}
}

func TestScopeLocks(t *testing.T) {
	s := newScopeLocks()
	ctx := context.Background()

	release, err := s.lockAll(ctx, []string{"b", "a", "b"})
	if err != nil {
		t.Fatalf("lockAll() error = %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := s.lockAll(short, []string{"a", "0"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("lockAll() on held key = %v, want deadline exceeded", err)
	}

	// The failed attempt must not keep "0".
	relC, err := s.lockAll(ctx, []string{"0"})
	if err != nil {
		t.Fatalf("lockAll(0) error = %v", err)
	}
	relC()

	release()
	relA, err := s.lockAll(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("lockAll() after release error = %v", err)
	}
	relA()
}
