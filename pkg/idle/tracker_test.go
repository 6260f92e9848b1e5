package idle

import (
	"testing"
	"time"
)

var start = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func TestTrackerStartsActive(t *testing.T) {
	tr := NewTracker()
	if tr.Idle() {
		t.Error("tracker should start active")
	}
	snap := tr.Snapshot()
	if snap.TotalIdle != 0 || snap.OutsideVisitIdle != 0 {
		t.Errorf("counters should start at zero, got %v / %v", snap.TotalIdle, snap.OutsideVisitIdle)
	}
}

func TestTrackerIncrementalAccrual(t *testing.T) {
	tr := NewTracker()

	// Enter idle; no time accrued yet.
	tr.Update(true, start)
	if got := tr.Snapshot().TotalIdle; got != 0 {
		t.Errorf("idle entry accrued %v, want 0", got)
	}

	// Repeated idle updates accrue linearly without double counting.
	for i := 1; i <= 5; i++ {
		tr.Update(true, start.Add(time.Duration(i)*10*time.Second))
	}
	if got := tr.Snapshot().TotalIdle; got != 50*time.Second {
		t.Errorf("total idle = %v, want 50s", got)
	}

	// Leaving idle flushes the final partial interval.
	tr.Update(false, start.Add(53*time.Second))
	snap := tr.Snapshot()
	if snap.TotalIdle != 53*time.Second {
		t.Errorf("total idle after exit = %v, want 53s", snap.TotalIdle)
	}
	if snap.Idle {
		t.Error("tracker should be active after below=false")
	}
}

func TestTrackerPerTickSumMatchesSingleShot(t *testing.T) {
	// Many small ticks over an interval must equal one big interval.
	fine := NewTracker()
	fine.Update(true, start)
	for i := 1; i <= 600; i++ {
		fine.Update(true, start.Add(time.Duration(i)*100*time.Millisecond))
	}

	coarse := NewTracker()
	coarse.Update(true, start)
	coarse.Update(true, start.Add(60*time.Second))

	if fine.Snapshot().TotalIdle != coarse.Snapshot().TotalIdle {
		t.Errorf("per-tick sum %v != single shot %v", fine.Snapshot().TotalIdle, coarse.Snapshot().TotalIdle)
	}
}

func TestTrackerMonotonicCounters(t *testing.T) {
	tr := NewTracker()
	prev := time.Duration(0)

	flags := []bool{true, true, false, true, true, true, false, false, true}
	for i, below := range flags {
		tr.Update(below, start.Add(time.Duration(i)*7*time.Second))
		got := tr.Snapshot().TotalIdle
		if got < prev {
			t.Fatalf("total idle decreased: %v -> %v", prev, got)
		}
		prev = got
	}
}

func TestTrackerOutsideVisitScoping(t *testing.T) {
	tr := NewTracker()

	// Idle for 10s with no visit active: both counters accrue.
	tr.Update(true, start)
	tr.Update(true, start.Add(10*time.Second))

	// Visit begins: outside-visit accrual pauses, global continues.
	tr.SetOutsideVisitTracking(false, start.Add(10*time.Second))
	tr.Update(true, start.Add(25*time.Second))

	snap := tr.Snapshot()
	if snap.TotalIdle != 25*time.Second {
		t.Errorf("total idle = %v, want 25s", snap.TotalIdle)
	}
	if snap.OutsideVisitIdle != 10*time.Second {
		t.Errorf("outside-visit idle = %v, want 10s", snap.OutsideVisitIdle)
	}

	// Visit ends mid-idle: the pending interval is flushed to the visit
	// period before accrual resumes.
	tr.SetOutsideVisitTracking(true, start.Add(30*time.Second))
	tr.Update(true, start.Add(40*time.Second))

	snap = tr.Snapshot()
	if snap.TotalIdle != 40*time.Second {
		t.Errorf("total idle = %v, want 40s", snap.TotalIdle)
	}
	if snap.OutsideVisitIdle != 20*time.Second {
		t.Errorf("outside-visit idle = %v, want 20s", snap.OutsideVisitIdle)
	}
}

func TestTrackerFinalFlush(t *testing.T) {
	tr := NewTracker()
	tr.Update(true, start)
	tr.Update(true, start.Add(20*time.Second))

	// Session teardown 7s later: Flush preserves the partial interval.
	tr.Flush(start.Add(27 * time.Second))
	if got := tr.Snapshot().TotalIdle; got != 27*time.Second {
		t.Errorf("total idle after final flush = %v, want 27s", got)
	}
	if !tr.Idle() {
		t.Error("final flush must not change state")
	}
}

func TestTrackerRestore(t *testing.T) {
	tr := NewTracker()
	tr.Restore(5*time.Minute, 2*time.Minute)

	tr.Update(true, start)
	tr.Update(true, start.Add(30*time.Second))

	snap := tr.Snapshot()
	if snap.TotalIdle != 5*time.Minute+30*time.Second {
		t.Errorf("total idle = %v, want 5m30s", snap.TotalIdle)
	}
	if snap.OutsideVisitIdle != 2*time.Minute+30*time.Second {
		t.Errorf("outside-visit idle = %v, want 2m30s", snap.OutsideVisitIdle)
	}
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker()
	tr.Update(true, start)
	tr.Update(true, start.Add(time.Minute))
	tr.SetOutsideVisitTracking(false, start.Add(time.Minute))

	tr.Reset()
	snap := tr.Snapshot()
	if snap.TotalIdle != 0 || snap.OutsideVisitIdle != 0 || snap.Idle {
		t.Errorf("reset left state behind: %+v", snap)
	}
	if !tr.OutsideVisitTracking() {
		t.Error("reset should re-enable outside-visit tracking")
	}
}
