package services

import (
	"testing"

	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
)

func newTestTrustService(t *testing.T) (*TrustScoreService, *repositories.TrustRepository) {
	t.Helper()
	db := newTestDB(t)
	repo := repositories.NewTrustRepository(db)
	return NewTrustScoreService(repo), repo
}

func applyReport(t *testing.T, svc *TrustScoreService, userID string, penalty int) *model.UserTrustState {
	t.Helper()
	state, err := svc.ApplyChange(TrustChange{
		UserID:      userID,
		Change:      -penalty,
		Reason:      model.TrustReasonReportReceived,
		Details:     "test report",
		PerformedBy: "reporter-1",
	})
	if err != nil {
		t.Fatalf("apply change: %v", err)
	}
	return state
}

func TestApplyChangeStartsAtFullTrust(t *testing.T) {
	svc, _ := newTestTrustService(t)

	state := applyReport(t, svc, "user-1", 10)
	if state.TrustScore != 90 {
		t.Fatalf("expected 90 after first penalty, got %d", state.TrustScore)
	}
	if state.Blocked {
		t.Fatal("user should not be blocked at 90")
	}
}

func TestApplyChangeClampsScore(t *testing.T) {
	svc, _ := newTestTrustService(t)

	state, err := svc.ApplyChange(TrustChange{
		UserID:      "user-1",
		Change:      -500,
		Reason:      model.TrustReasonAdminAdjustment,
		Details:     "test",
		PerformedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("apply change: %v", err)
	}
	if state.TrustScore != 0 {
		t.Fatalf("score should clamp at 0, got %d", state.TrustScore)
	}

	state, err = svc.ApplyChange(TrustChange{
		UserID:      "user-1",
		Change:      500,
		Reason:      model.TrustReasonAppealApproved,
		Details:     "test",
		PerformedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("apply change: %v", err)
	}
	if state.TrustScore != 100 {
		t.Fatalf("score should clamp at 100, got %d", state.TrustScore)
	}
}

func TestAutoBlockIsSticky(t *testing.T) {
	svc, _ := newTestTrustService(t)

	state := applyReport(t, svc, "user-1", 60)
	if !state.Blocked {
		t.Fatalf("score %d should auto-block", state.TrustScore)
	}
	if state.BlockedAt == nil || state.BlockedReason == "" {
		t.Fatal("block metadata should be recorded")
	}

	// Recovery above the threshold must not clear the flag.
	state, err := svc.ApplyChange(TrustChange{
		UserID:      "user-1",
		Change:      50,
		Reason:      model.TrustReasonAppealApproved,
		Details:     "appeal",
		PerformedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("apply change: %v", err)
	}
	if state.TrustScore != 90 {
		t.Fatalf("expected 90, got %d", state.TrustScore)
	}
	if !state.Blocked {
		t.Fatal("block must stay sticky until an explicit admin unblock")
	}

	if err := svc.AdminUnblock("user-1", "admin-1"); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	resp, err := svc.GetState("user-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if resp.Blocked {
		t.Fatal("user should be unblocked")
	}
	if resp.TrustScore != 90 {
		t.Fatal("unblock must not change the score")
	}
}

func TestAdminUnblockNotBlocked(t *testing.T) {
	svc, _ := newTestTrustService(t)

	applyReport(t, svc, "user-1", 10)
	err := svc.AdminUnblock("user-1", "admin-1")
	mustAppError(t, err, shared.KindNotFound)
}

func TestHistoryRecordsEveryChange(t *testing.T) {
	svc, _ := newTestTrustService(t)

	applyReport(t, svc, "user-1", 10)
	applyReport(t, svc, "user-1", 10)

	resp, err := svc.History("user-1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Entries))
	}

	// Newest first, fields chain: previous of the newest equals new of the older.
	newest, older := resp.Entries[0], resp.Entries[1]
	if newest.PreviousScore != older.NewScore {
		t.Fatalf("ledger does not chain: %d -> %d", older.NewScore, newest.PreviousScore)
	}
	if newest.NewScore != 80 || newest.Change != -10 {
		t.Fatalf("unexpected newest entry: %+v", newest)
	}
	if newest.Reason != string(model.TrustReasonReportReceived) {
		t.Fatalf("unexpected reason %q", newest.Reason)
	}
}

func TestRepeatOffenderThresholds(t *testing.T) {
	svc, _ := newTestTrustService(t)

	applyReport(t, svc, "user-1", 10)
	applyReport(t, svc, "user-1", 10)

	analysis, err := svc.AnalyzeRepeatOffender("user-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.IsRepeatOffender || analysis.EscalationMultiplier != 1 {
		t.Fatalf("2 reports must not trip the multiplier: %+v", analysis)
	}

	applyReport(t, svc, "user-1", 10)

	analysis, err = svc.AnalyzeRepeatOffender("user-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !analysis.IsRepeatOffender || analysis.EscalationMultiplier != 2 {
		t.Fatalf("3 reports should double penalties: %+v", analysis)
	}
	if analysis.ReportCount != 3 {
		t.Fatalf("expected 3 counted reports, got %d", analysis.ReportCount)
	}
}

// The multiplier is computed from the ledger before the triggering entry is
// written, so the doubled penalty starts with the 4th report:
// 100 -> 90 -> 80 -> 70 -> 50 -> 30 (blocked).
func TestEscalatingPenaltySequence(t *testing.T) {
	svc, _ := newTestTrustService(t)

	expected := []int{90, 80, 70, 50, 30}
	for i, want := range expected {
		multiplier := svc.PenaltyMultiplier("user-1")
		state := applyReport(t, svc, "user-1", 10*multiplier)
		if state.TrustScore != want {
			t.Fatalf("report %d: expected score %d, got %d", i+1, want, state.TrustScore)
		}
	}

	resp, err := svc.GetState("user-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if !resp.Blocked {
		t.Fatal("user at 30 should be blocked")
	}
}

func TestApplyChangeRequiresActor(t *testing.T) {
	svc, _ := newTestTrustService(t)

	_, err := svc.ApplyChange(TrustChange{
		UserID: "user-1",
		Change: -10,
		Reason: model.TrustReasonReportReceived,
	})
	mustAppError(t, err, shared.KindValidation)
}

func TestIsBlockedUnknownUser(t *testing.T) {
	svc, _ := newTestTrustService(t)

	blocked, err := svc.IsBlocked("never-seen")
	if err != nil {
		t.Fatalf("is blocked: %v", err)
	}
	if blocked {
		t.Fatal("unknown users are trusted by default")
	}
}
