package services

import (
	"context"
	"testing"
	"time"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
	"gorm.io/gorm"
)

func newTestReportService(t *testing.T) (*ReportService, *TrustScoreService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	trustSvc := NewTrustScoreService(repositories.NewTrustRepository(db))
	svc := NewReportService(repositories.NewReportRepository(db), repositories.NewMessageRepository(db), trustSvc)
	return svc, trustSvc, db
}

func seedSenderMessage(t *testing.T, db *gorm.DB, senderID string) *model.Message {
	t.Helper()
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyNormal, time.Now().Add(24*time.Hour))
	if err := db.Model(&model.Message{}).Where("id = ?", message.ID).Update("sender_id", senderID).Error; err != nil {
		t.Fatalf("set sender: %v", err)
	}
	message.SenderID = senderID
	return message
}

func TestSubmitReportAppliesBasePenalty(t *testing.T) {
	svc, trustSvc, db := newTestReportService(t)
	message := seedSenderMessage(t, db, "sender-1")

	resp, err := svc.SubmitReport("reporter-1", dto.SubmitReportRequest{
		MessageID: message.ID,
		Reason:    "harassment",
	})
	if err != nil {
		t.Fatalf("submit report: %v", err)
	}
	if resp.PenaltyApplied != 10 || resp.RepeatOffender {
		t.Fatalf("first report should cost the base penalty: %+v", resp)
	}

	state, err := trustSvc.GetState("sender-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.TrustScore != 90 {
		t.Fatalf("expected 90 after one report, got %d", state.TrustScore)
	}
}

func TestSubmitReportDuplicateRejected(t *testing.T) {
	svc, _, db := newTestReportService(t)
	message := seedSenderMessage(t, db, "sender-1")

	req := dto.SubmitReportRequest{MessageID: message.ID, Reason: "spam"}
	if _, err := svc.SubmitReport("reporter-1", req); err != nil {
		t.Fatalf("first report: %v", err)
	}

	_, err := svc.SubmitReport("reporter-1", req)
	mustAppError(t, err, shared.KindConflict)

	// A different reporter may still report the same message.
	if _, err := svc.SubmitReport("reporter-2", req); err != nil {
		t.Fatalf("second reporter: %v", err)
	}
}

func TestSubmitReportSelfReportRejected(t *testing.T) {
	svc, _, db := newTestReportService(t)
	message := seedSenderMessage(t, db, "sender-1")

	_, err := svc.SubmitReport("sender-1", dto.SubmitReportRequest{
		MessageID: message.ID,
		Reason:    "other",
	})
	mustAppError(t, err, shared.KindValidation)
}

func TestSubmitReportUnknownMessage(t *testing.T) {
	svc, _, _ := newTestReportService(t)

	_, err := svc.SubmitReport("reporter-1", dto.SubmitReportRequest{
		MessageID: "no-such-message",
		Reason:    "spam",
	})
	mustAppError(t, err, shared.KindNotFound)
}

func TestSubmitReportGuestMessageNoPenalty(t *testing.T) {
	svc, _, db := newTestReportService(t)
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyNormal, time.Now().Add(24*time.Hour))

	resp, err := svc.SubmitReport("reporter-1", dto.SubmitReportRequest{
		MessageID: message.ID,
		Reason:    "spam",
	})
	if err != nil {
		t.Fatalf("submit report: %v", err)
	}
	if resp.PenaltyApplied != 0 {
		t.Fatalf("guest message reports carry no penalty, got %d", resp.PenaltyApplied)
	}
}

func TestRepeatOffenderDoublesReportPenalty(t *testing.T) {
	svc, trustSvc, db := newTestReportService(t)

	// Three reports against three separate messages cross the threshold.
	for i, reporter := range []string{"r1", "r2", "r3"} {
		message := seedSenderMessage(t, db, "sender-1")
		resp, err := svc.SubmitReport(reporter, dto.SubmitReportRequest{
			MessageID: message.ID,
			Reason:    "spam",
		})
		if err != nil {
			t.Fatalf("report %d: %v", i+1, err)
		}
		if resp.PenaltyApplied != 10 {
			t.Fatalf("report %d should cost 10, got %d", i+1, resp.PenaltyApplied)
		}
	}

	// The 4th report sees 3 prior violations and doubles.
	message := seedSenderMessage(t, db, "sender-1")
	resp, err := svc.SubmitReport("r4", dto.SubmitReportRequest{
		MessageID: message.ID,
		Reason:    "spam",
	})
	if err != nil {
		t.Fatalf("4th report: %v", err)
	}
	if resp.PenaltyApplied != 20 || !resp.RepeatOffender {
		t.Fatalf("4th report should be doubled: %+v", resp)
	}

	state, err := trustSvc.GetState("sender-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.TrustScore != 50 {
		t.Fatalf("expected 100-10-10-10-20=50, got %d", state.TrustScore)
	}
	if state.Blocked {
		t.Fatal("score 50 sits on the threshold and must not block")
	}
}

func TestSubmitReportLedgerFailureSurfaces(t *testing.T) {
	svc, _, db := newTestReportService(t)
	message := seedSenderMessage(t, db, "sender-1")

	// Breaking the history table makes the penalty write fail.
	if err := db.Migrator().DropTable(&model.TrustScoreHistoryEntry{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	_, err := svc.SubmitReport("reporter-1", dto.SubmitReportRequest{
		MessageID: message.ID,
		Reason:    "spam",
	})
	if err == nil {
		t.Fatal("a failed penalty write must surface to the caller")
	}

	// The report row stands but must not claim an unapplied penalty.
	var report model.Report
	if err := db.Where("message_id = ?", message.ID).First(&report).Error; err != nil {
		t.Fatalf("report row: %v", err)
	}
	if report.PenaltyApplied != 0 {
		t.Fatalf("penalty was not applied, row claims %d", report.PenaltyApplied)
	}
}

func TestMessageSendBlockedSenderRejected(t *testing.T) {
	db := newTestDB(t)
	trustSvc := NewTrustScoreService(repositories.NewTrustRepository(db))
	messageSvc := NewMessageService(
		repositories.NewMessageRepository(db),
		repositories.NewUserRepository(db),
		trustSvc,
		&ModerationService{},
	)

	if _, err := trustSvc.ApplyChange(TrustChange{
		UserID:      "sender-1",
		Change:      -60,
		Reason:      model.TrustReasonAdminAdjustment,
		Details:     "test block",
		PerformedBy: "admin-1",
	}); err != nil {
		t.Fatalf("block sender: %v", err)
	}

	_, err := messageSvc.SendMessage(context.Background(), dto.SendMessageRequest{
		Plate:   "CA1234AB",
		Content: "hello",
	}, "sender-1", "10.0.0.1")
	mustAppError(t, err, shared.KindAuthorization)
}

func TestMessageRespondResolvesEscalations(t *testing.T) {
	db := newTestDB(t)
	trustSvc := NewTrustScoreService(repositories.NewTrustRepository(db))
	messageRepo := repositories.NewMessageRepository(db)
	userRepo := repositories.NewUserRepository(db)
	messageSvc := NewMessageService(messageRepo, userRepo, trustSvc, &ModerationService{})
	escalationSvc := NewEscalationService(messageRepo, userRepo)

	owner := seedUser(t, db, "owner", shared.RoleUser)
	seedPlate(t, db, "CA1234AB", owner.ID)
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyUrgent, time.Now().Add(-time.Minute))

	if _, err := escalationSvc.EscalateMessage(message.ID, "sender-1"); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	resp, err := messageSvc.RespondToMessage(message.ID, owner.ID, shared.RoleUser,
		dto.RespondMessageRequest{Response: "moving now"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !resp.Resolved || !resp.HasResponse {
		t.Fatalf("response should resolve the message: %+v", resp)
	}

	escalations, _ := messageRepo.GetEscalationsByMessage(message.ID)
	if len(escalations) != 1 || !escalations[0].Resolved ||
		escalations[0].Outcome != string(model.OutcomeOwnerResponded) {
		t.Fatalf("open escalations should close as owner_responded: %+v", escalations)
	}
}

func TestMessageSendSetsDeadlineByUrgency(t *testing.T) {
	db := newTestDB(t)
	trustSvc := NewTrustScoreService(repositories.NewTrustRepository(db))
	messageSvc := NewMessageService(
		repositories.NewMessageRepository(db),
		repositories.NewUserRepository(db),
		trustSvc,
		&ModerationService{},
	)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	messageSvc.now = func() time.Time { return base }

	cases := map[string]time.Time{
		shared.UrgencyEmergency: base.Add(1 * time.Hour),
		shared.UrgencyUrgent:    base.Add(6 * time.Hour),
		shared.UrgencyNormal:    base.Add(24 * time.Hour),
	}

	for urgency, want := range cases {
		resp, err := messageSvc.SendMessage(context.Background(), dto.SendMessageRequest{
			Plate:   "CA 1234-AB",
			Content: "test",
			Urgency: urgency,
		}, "", "10.0.0.1")
		if err != nil {
			t.Fatalf("send %s: %v", urgency, err)
		}
		if !resp.EscalationDeadline.Equal(want) {
			t.Fatalf("%s deadline: expected %v, got %v", urgency, want, resp.EscalationDeadline)
		}
		if resp.Plate != "CA1234AB" {
			t.Fatalf("plate should be normalized, got %q", resp.Plate)
		}
	}
}
