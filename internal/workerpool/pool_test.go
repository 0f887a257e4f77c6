package workerpool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func waitSignal(t *testing.T, ch <-chan int, d time.Duration) int {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(d):
		t.Fatalf("timeout waiting for signal %v", d)
		return 0
	}
}

func TestPool_RunsJob(t *testing.T) {
	pool := New(10, quiet)
	pool.Start(1)
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
	})

	done := make(chan int, 1)
	if err := pool.Submit(func(context.Context) { done <- 7 }); err != nil {
		t.Fatalf("Submit() err=%v, want nil", err)
	}
	if got := waitSignal(t, done, time.Second); got != 7 {
		t.Fatalf("job result=%d, want 7", got)
	}
}

func TestPool_Overflow_ReturnsPoolFull(t *testing.T) {
	pool := New(1, quiet)
	pool.Start(0) // with zero workers the queue fills up
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
	})

	noop := func(context.Context) {}
	if err := pool.Submit(noop); err != nil {
		t.Fatalf("first Submit() err=%v, want nil", err)
	}
	if err := pool.Submit(noop); !errors.Is(err, ErrPoolFull) {
		t.Fatalf("second Submit() err=%v, want %v", err, ErrPoolFull)
	}
}

func TestPool_Shutdown_DrainsQueuedWork(t *testing.T) {
	pool := New(10, quiet)
	pool.Start(1)

	var finished atomic.Int32
	for i := 0; i < 3; i++ {
		err := pool.Submit(func(context.Context) {
			time.Sleep(30 * time.Millisecond)
			finished.Add(1)
		})
		if err != nil {
			t.Fatalf("Submit(%d) err=%v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() err=%v, want nil", err)
	}
	if got := finished.Load(); got != 3 {
		t.Fatalf("finished=%d, want 3", got)
	}
}

func TestPool_Shutdown_TimeoutCancelsJobs(t *testing.T) {
	pool := New(10, quiet)
	pool.Start(1)

	cancelled := make(chan int, 1)
	_ = pool.Submit(func(ctx context.Context) {
		<-ctx.Done()
		cancelled <- 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown() err=%v, want %v", err, context.DeadlineExceeded)
	}
	waitSignal(t, cancelled, time.Second)
}

func TestPool_SubmitAfterShutdown_ReturnsPoolClosed(t *testing.T) {
	pool := New(10, quiet)
	pool.Start(0)

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() err=%v, want nil", err)
	}
	if err := pool.Submit(func(context.Context) {}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Submit() err=%v, want %v", err, ErrPoolClosed)
	}
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown() err=%v, want nil", err)
	}
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	pool := New(10, quiet)
	pool.Start(1)
	t.Cleanup(func() {
		_ = pool.Shutdown(context.Background())
	})

	done := make(chan int, 1)
	_ = pool.Submit(func(context.Context) { panic("boom") })
	_ = pool.Submit(func(context.Context) { done <- 1 })
	waitSignal(t, done, time.Second)
}
