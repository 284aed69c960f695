package recovery

import "testing"

func TestEnterCriticalSectionPersistsHint(t *testing.T) {
	r := New(t.TempDir(), "raw_eth", "transformed_eth")
	if r.IsInRecoveryMode() {
		t.Fatal("expected not in recovery mode before entering")
	}

	scope, err := r.EnterCriticalSection(map[string]any{"current_tx_id": float64(5)})
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if !r.IsInRecoveryMode() {
		t.Fatal("expected recovery mode after entering")
	}

	if err := scope.Done(nil); err != nil {
		t.Fatalf("done: %v", err)
	}
	// A nil-err Done leaves the hint in place; it is the caller's job to
	// leave recovery mode after the checkpoint write also succeeds.
	if !r.IsInRecoveryMode() {
		t.Fatal("expected hint to remain after a successful Done")
	}
}

func TestEnterCriticalSectionRejectsReentry(t *testing.T) {
	r := New(t.TempDir(), "raw_eth", "transformed_eth")
	if _, err := r.EnterCriticalSection(map[string]any{"current_tx_id": float64(1)}); err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if _, err := r.EnterCriticalSection(map[string]any{"current_tx_id": float64(2)}); err == nil {
		t.Fatal("expected reentry to be rejected")
	}
}

func TestGetRecoveryHintRoundTrips(t *testing.T) {
	r := New(t.TempDir(), "raw", "transformed")
	_, err := r.EnterCriticalSection(map[string]any{"current_tx_id": float64(42), "last_successful_tx_id": float64(41)})
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	hint, err := r.GetRecoveryHint()
	if err != nil {
		t.Fatalf("get hint: %v", err)
	}
	if hint["current_tx_id"] != float64(42) {
		t.Fatalf("expected current_tx_id=42, got %v", hint["current_tx_id"])
	}
}

func TestLeaveRecoveryModeRemovesHint(t *testing.T) {
	r := New(t.TempDir(), "raw", "transformed")
	if _, err := r.EnterCriticalSection(map[string]any{"x": float64(1)}); err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := r.LeaveRecoveryMode(); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if r.IsInRecoveryMode() {
		t.Fatal("expected recovery mode to be cleared")
	}
}

func TestLeaveRecoveryModeIsIdempotentWhenAlreadyGone(t *testing.T) {
	r := New(t.TempDir(), "raw", "transformed")
	if err := r.LeaveRecoveryMode(); err != nil {
		t.Fatalf("expected no error leaving recovery mode that was never entered, got %v", err)
	}
}

func TestScopeDoneOnErrorRepersistsHint(t *testing.T) {
	r := New(t.TempDir(), "raw", "transformed")
	scope, err := r.EnterCriticalSection(map[string]any{"current_tx_id": float64(7)})
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if err := scope.Done(errSample); err == nil {
		t.Fatal("expected Done to propagate the error unchanged")
	}
	if !r.IsInRecoveryMode() {
		t.Fatal("expected hint to remain persisted after an error")
	}
}

var errSample = sampleErr{}

type sampleErr struct{}

func (sampleErr) Error() string { return "sample failure" }
