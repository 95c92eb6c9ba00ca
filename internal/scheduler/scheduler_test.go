package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/pkg/util"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSchedulerRunsRepeatedly(t *testing.T) {
	var runs atomic.Int64
	s := New(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, true, 2*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return runs.Load() >= 3 })
}

func TestSchedulerDisabledDoesNotRun(t *testing.T) {
	var runs atomic.Int64
	s := New(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, false, 2*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestConfigureDisableStopsFutureTicks(t *testing.T) {
	var runs atomic.Int64
	s := New(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, true, 2*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return runs.Load() >= 1 })
	s.Configure(false, 1)

	// Ticks already queued may still land; the count must then settle.
	time.Sleep(20 * time.Millisecond)
	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())
}

func TestStopWaitsForInFlightPass(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	s := New(func(ctx context.Context) error {
		entered <- struct{}{}
		<-release
		return nil
	}, true, time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	<-entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a pass was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the pass finished")
	}
}

func TestTickFailuresDoNotStopTheLoop(t *testing.T) {
	var runs atomic.Int64
	s := New(func(ctx context.Context) error {
		switch runs.Add(1) {
		case 1:
			return util.NewIngestBusy("support-inbox")
		case 2:
			return errors.New("mailbox unreachable")
		default:
			return nil
		}
	}, true, 2*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, time.Second, func() bool { return runs.Load() >= 3 })
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	s := New(func(ctx context.Context) error { return nil }, false, time.Minute, zap.NewNop())

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	s.Stop()
	require.NotPanics(t, s.Stop)
}
