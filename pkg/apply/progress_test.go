package apply

import "testing"

func TestProgressAddStreamAccumulatesTotals(t *testing.T) {
	var p progressState
	p.addStream(100)
	p.addStream(50)
	if p.totalBytes != 150 {
		t.Errorf("expected totalBytes 150, got %d", p.totalBytes)
	}
	if p.streamCount != 2 {
		t.Errorf("expected streamCount 2, got %d", p.streamCount)
	}
}

func TestProgressNotifyThresholdAdvancesByFixedStep(t *testing.T) {
	var p progressState
	p.addStream(1280)
	p.initNotifyThreshold()

	if p.nextNotify != 10 {
		t.Errorf("expected initial notify threshold of total/128 = 10, got %d", p.nextNotify)
	}

	var emitted int
	p.callback = func(Event) { emitted++ }

	p.completeStream(10)
	if emitted != 1 {
		t.Errorf("expected exactly one emission at the threshold, got %d", emitted)
	}
	if p.nextNotify != 20 {
		t.Errorf("expected threshold to advance by another step to 20, got %d", p.nextNotify)
	}
}

func TestProgressNotifyThresholdClampsToTotal(t *testing.T) {
	var p progressState
	p.addStream(1)
	p.initNotifyThreshold()

	var emitted int
	p.callback = func(Event) { emitted++ }

	p.completeStream(1)
	if emitted != 1 {
		t.Errorf("expected one emission when completed reaches total, got %d", emitted)
	}
	if p.nextNotify != ^uint64(0) {
		t.Errorf("expected notify threshold pinned to max after reaching total, got %d", p.nextNotify)
	}

	// A further completion (e.g. a zero-size stream still counted) must
	// not emit again since nextNotify is now unreachable.
	p.completeStream(0)
	if emitted != 1 {
		t.Errorf("expected no further emission once the threshold is exhausted, got %d", emitted)
	}
}

func TestProgressFinalizeTotalBumpsCompletedUpToTotal(t *testing.T) {
	var p progressState
	p.totalBytes = 100
	p.completedBytes = 40
	p.finalizeTotal()
	if p.completedBytes != 100 {
		t.Errorf("expected completedBytes bumped to 100, got %d", p.completedBytes)
	}

	// finalizeTotal must never reduce an already-larger completed count
	// (e.g. a pipe-mode overestimate correcting itself downward never
	// happens, but completed should never be clamped down either).
	p.completedBytes = 150
	p.finalizeTotal()
	if p.completedBytes != 150 {
		t.Errorf("expected completedBytes left untouched at 150, got %d", p.completedBytes)
	}
}

func TestProgressEmitNilCallbackIsNoOp(t *testing.T) {
	var p progressState
	p.emit(EventTreeBegin) // must not panic with a nil callback
}
