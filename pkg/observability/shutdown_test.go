package observability

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func testShutdownManager(timeout time.Duration) *ShutdownManager {
	return NewShutdownManager(NewLogger(ErrorLevel, io.Discard), nil, timeout)
}

func TestWaitForShutdownRunsRegisteredFuncs(t *testing.T) {
	sm := testShutdownManager(time.Second)

	var calls int32
	sm.RegisterShutdownFunc(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- sm.WaitForShutdown()
	}()

	// Give WaitForShutdown time to install its signal handler.
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 shutdown calls, got %d", got)
	}
}

func TestWaitForShutdownReportsFailures(t *testing.T) {
	sm := testShutdownManager(time.Second)
	sm.RegisterShutdownFunc(func(context.Context) error {
		return errors.New("close failed")
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- sm.WaitForShutdown()
	}()

	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected an error from failing shutdown func")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func TestWaitForShutdownTimesOut(t *testing.T) {
	sm := testShutdownManager(100 * time.Millisecond)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		<-time.After(5 * time.Second)
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- sm.WaitForShutdown()
	}()

	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("send signal: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected timeout error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return after its deadline")
	}
}
