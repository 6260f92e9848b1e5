package main

import (
	"errors"
	"testing"
	"time"

	"github.com/fieldtrack/fieldtrack/pkg/engine"
	"github.com/fieldtrack/fieldtrack/pkg/logx"
	"github.com/fieldtrack/fieldtrack/pkg/metrics"
	"github.com/fieldtrack/fieldtrack/pkg/telem"
)

func newTestSupervisor(t *testing.T, open func() error) (*sourceSupervisor, *engine.Engine) {
	t.Helper()
	logger := logx.New("error")
	eng := engine.New(engine.DefaultConfig())
	m := metrics.NewServer(eng, telem.NewStore(telem.DefaultConfig()), logger)
	return newSourceSupervisor(open, eng, m, logger), eng
}

func TestSupervisorRetriesDownSource(t *testing.T) {
	attempts := 0
	sup, eng := newTestSupervisor(t, func() error {
		attempts++
		return errors.New("no such device")
	})

	now := time.Now()
	for i := 0; i < 3; i++ {
		sup.ensure(now.Add(time.Duration(i) * time.Second))
	}

	if attempts != 3 {
		t.Errorf("open attempts = %d, want one per heartbeat", attempts)
	}
	if eng.Snapshot().ConsecutiveErrors != 3 {
		t.Errorf("consecutive errors = %d, want 3", eng.Snapshot().ConsecutiveErrors)
	}
}

func TestSupervisorStopsRetryingOnceUp(t *testing.T) {
	attempts := 0
	sup, _ := newTestSupervisor(t, func() error {
		attempts++
		return nil
	})

	now := time.Now()
	sup.ensure(now)
	sup.ensure(now.Add(time.Second))

	if attempts != 1 {
		t.Errorf("open attempts = %d, want 1 once the source is up", attempts)
	}
	if !sup.up {
		t.Error("supervisor should mark the source up")
	}
}

func TestSupervisorReopensAfterSourceLost(t *testing.T) {
	attempts := 0
	sup, _ := newTestSupervisor(t, func() error {
		attempts++
		return nil
	})

	now := time.Now()
	sup.ensure(now)
	sup.markDown()
	sup.ensure(now.Add(time.Second))

	if attempts != 2 {
		t.Errorf("open attempts = %d, want reopen after markDown", attempts)
	}
}

func TestSupervisorEscalatesPersistentOutage(t *testing.T) {
	sup, eng := newTestSupervisor(t, func() error {
		return errors.New("no such device")
	})

	// One heartbeat per second: reopen failures accumulate provider
	// errors, arm recovery, and failed recovery attempts exhaust into the
	// fatal stop signal.
	now := time.Now()
	for i := 0; i < 120 && !eng.StopRecommended(); i++ {
		sup.ensure(now)
		now = now.Add(time.Second)
	}

	if !eng.StopRecommended() {
		t.Fatal("persistent open failure should exhaust recovery and recommend stop")
	}
}

func TestSupervisorRecoversWhenSourceReturns(t *testing.T) {
	failing := true
	attempts := 0
	sup, eng := newTestSupervisor(t, func() error {
		attempts++
		if failing {
			return errors.New("no such device")
		}
		return nil
	})

	now := time.Now()
	for i := 0; i < 10; i++ {
		sup.ensure(now)
		now = now.Add(time.Second)
	}

	failing = false
	sup.ensure(now)

	if !sup.up {
		t.Error("source should be up after a successful reopen")
	}
	if eng.StopRecommended() {
		t.Error("a recovered source must not leave the session fatal")
	}

	// A recovery deadline armed during the outage must not reopen the
	// already-running source.
	opened := attempts
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		sup.ensure(now)
	}
	if attempts != opened {
		t.Errorf("open attempts grew from %d to %d with the source up", opened, attempts)
	}
}
