package realtime

import "testing"

func TestTurnControllerStartsClean(t *testing.T) {
	tc := NewTurnController()
	if tc.TurnSeq() != 0 {
		t.Errorf("expected turnSeq 0, got %d", tc.TurnSeq())
	}
	if tc.CancelledTurnSeq() != -1 {
		t.Errorf("expected cancelledTurnSeq -1, got %d", tc.CancelledTurnSeq())
	}
	if tc.Interrupted() {
		t.Error("expected not interrupted")
	}
	if !tc.AudioAdmissible() {
		t.Error("expected audio admissible")
	}
}

func TestTurnControllerCompleteIncrementsOnce(t *testing.T) {
	tc := NewTurnController()
	for i := 1; i <= 5; i++ {
		seq, resumed := tc.Complete()
		if seq != uint64(i) {
			t.Fatalf("complete %d: expected seq %d, got %d", i, i, seq)
		}
		if resumed {
			t.Fatalf("complete %d: unexpected resume with no barge-in", i)
		}
	}
}

func TestTurnControllerCancelMarksCurrentTurn(t *testing.T) {
	tc := NewTurnController()
	tc.Complete()
	tc.Complete()

	cancelled := tc.Cancel()
	if cancelled != 2 {
		t.Errorf("expected cancelled turn 2, got %d", cancelled)
	}
	if tc.CancelledTurnSeq() != 2 {
		t.Errorf("expected cancelledTurnSeq 2, got %d", tc.CancelledTurnSeq())
	}
	if !tc.Interrupted() {
		t.Error("expected interrupted")
	}
	if tc.AudioAdmissible() {
		t.Error("expected audio suppressed")
	}
	if tc.CancelledTurnSeq() > int64(tc.TurnSeq()) {
		t.Error("cancelledTurnSeq must never exceed turnSeq")
	}
}

func TestTurnControllerCompleteClearsInterrupt(t *testing.T) {
	tc := NewTurnController()
	tc.Complete()
	tc.Complete()
	tc.Cancel()

	seq, resumed := tc.Complete()
	if seq != 3 {
		t.Errorf("expected seq 3, got %d", seq)
	}
	if !resumed {
		t.Error("expected turn boundary past the cancelled turn to resume")
	}
	if tc.Interrupted() {
		t.Error("expected interrupt cleared")
	}
}

func TestTurnControllerFragmentClearsInterrupt(t *testing.T) {
	tc := NewTurnController()
	tc.Complete()
	tc.Complete()
	tc.Cancel()

	seq, resumed := tc.BeginFragment()
	if !resumed {
		t.Fatal("expected first fragment to resume")
	}
	if seq != 3 {
		t.Errorf("expected fragment to belong to turn 3, got %d", seq)
	}
	if tc.Interrupted() {
		t.Error("expected interrupt cleared before the turn boundary")
	}

	// The later turn-complete still increments but does not resume again.
	seq, resumed = tc.Complete()
	if seq != 3 || resumed {
		t.Errorf("expected (3, false), got (%d, %v)", seq, resumed)
	}
}

func TestTurnControllerFragmentWithoutInterruptIsNoop(t *testing.T) {
	tc := NewTurnController()
	tc.Complete()
	if _, resumed := tc.BeginFragment(); resumed {
		t.Error("fragment without open barge-in window must not resume")
	}
}

func TestTurnControllerRepeatedCancel(t *testing.T) {
	tc := NewTurnController()
	tc.Complete()
	tc.Cancel()
	tc.Complete() // clears, seq 2
	tc.Complete() // seq 3
	cancelled := tc.Cancel()
	if cancelled != 3 {
		t.Errorf("expected re-cancel to mark turn 3, got %d", cancelled)
	}
	if !tc.Interrupted() {
		t.Error("expected interrupted after second cancel")
	}
}
