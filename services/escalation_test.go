package services

import (
	"testing"
	"time"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
	"gorm.io/gorm"
)

func newTestEscalationService(t *testing.T) (*EscalationService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc := NewEscalationService(repositories.NewMessageRepository(db), repositories.NewUserRepository(db))
	return svc, db
}

func TestEscalationLadder(t *testing.T) {
	svc, db := newTestEscalationService(t)
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyUrgent, time.Now().Add(-time.Hour))

	want := []model.EscalationLevel{
		model.EscalationLevelReminderSent,
		model.EscalationLevelAuthorityNotified,
		model.EscalationLevelTowingRequested,
	}

	for i, level := range want {
		resp, err := svc.EscalateMessage(message.ID, "user-1")
		if err != nil {
			t.Fatalf("escalate step %d: %v", i+1, err)
		}
		if resp.Level != string(level) {
			t.Fatalf("step %d: expected level %s, got %s", i+1, level, resp.Level)
		}
	}

	// Terminal level only leaves via resolution.
	_, err := svc.EscalateMessage(message.ID, "user-1")
	mustAppError(t, err, shared.KindConflict)
}

func TestEscalateResolvedMessage(t *testing.T) {
	svc, db := newTestEscalationService(t)
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyUrgent, time.Now().Add(24*time.Hour))

	if _, err := svc.messageRepo.ResolveMessage(message.ID, time.Now()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	_, err := svc.EscalateMessage(message.ID, "user-1")
	mustAppError(t, err, shared.KindConflict)
}

func TestEscalateNormalMessageNotEligible(t *testing.T) {
	svc, db := newTestEscalationService(t)
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyNormal, time.Now().Add(-time.Hour))

	_, err := svc.EscalateMessage(message.ID, "user-1")
	mustAppError(t, err, shared.KindValidation)
}

func TestAuthorityContactFlagPerLevel(t *testing.T) {
	svc, db := newTestEscalationService(t)
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyEmergency, time.Now().Add(-time.Hour))

	first, err := svc.EscalateMessage(message.ID, "user-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if first.AuthorityContacted {
		t.Fatal("reminder level must not contact authorities")
	}

	second, err := svc.EscalateMessage(message.ID, "user-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if !second.AuthorityContacted || second.AuthorityContactedAt == nil {
		t.Fatal("authority_notified level should record the authority contact")
	}
}

func TestSweepEscalatesOnlyOverdueMessages(t *testing.T) {
	svc, db := newTestEscalationService(t)

	overdue := seedMessage(t, db, "AA1111AA", shared.UrgencyUrgent, time.Now().Add(-time.Minute))
	fresh := seedMessage(t, db, "BB2222BB", shared.UrgencyUrgent, time.Now().Add(24*time.Hour))
	normal := seedMessage(t, db, "DD4444DD", shared.UrgencyNormal, time.Now().Add(-time.Minute))

	answered := seedMessage(t, db, "CC3333CC", shared.UrgencyUrgent, time.Now().Add(-time.Minute))
	if _, err := svc.messageRepo.MarkResponded(answered.ID, time.Now()); err != nil {
		t.Fatalf("mark responded: %v", err)
	}

	result, err := svc.RunAutoEscalationSweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Scanned != 1 || result.Escalated != 1 {
		t.Fatalf("expected 1/1, got scanned=%d escalated=%d", result.Scanned, result.Escalated)
	}

	got, _ := svc.messageRepo.GetMessage(overdue.ID)
	if !got.Escalated || got.EscalationLevel != model.EscalationLevelReminderSent {
		t.Fatalf("overdue message should be at reminder_sent, got %+v", got.EscalationLevel)
	}

	got, _ = svc.messageRepo.GetMessage(fresh.ID)
	if got.Escalated {
		t.Fatal("message before its deadline must not be swept")
	}

	got, _ = svc.messageRepo.GetMessage(normal.ID)
	if got.Escalated {
		t.Fatal("normal urgency message must not be swept")
	}

	got, _ = svc.messageRepo.GetMessage(answered.ID)
	if got.Escalated {
		t.Fatal("answered message must not be swept")
	}

	escalations, err := svc.messageRepo.GetEscalationsByMessage(overdue.ID)
	if err != nil {
		t.Fatalf("escalations: %v", err)
	}
	if len(escalations) != 1 || escalations[0].EscalatedBy != shared.SystemAutoEscalation {
		t.Fatalf("sweep escalation should be attributed to the system actor: %+v", escalations)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	svc, db := newTestEscalationService(t)
	seedMessage(t, db, "AA1111AA", shared.UrgencyUrgent, time.Now().Add(-time.Minute))

	if _, err := svc.RunAutoEscalationSweep(); err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	// The sweep only selects never-escalated messages, so a second run
	// finds nothing.
	result, err := svc.RunAutoEscalationSweep()
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if result.Scanned != 0 || result.Escalated != 0 {
		t.Fatalf("second sweep must be a no-op, got %+v", result)
	}
}

func TestSweepHonorsBatchLimit(t *testing.T) {
	svc, db := newTestEscalationService(t)
	svc.sweepBatch = 2

	seedMessage(t, db, "AA1111AA", shared.UrgencyUrgent, time.Now().Add(-3*time.Minute))
	seedMessage(t, db, "BB2222BB", shared.UrgencyUrgent, time.Now().Add(-2*time.Minute))
	seedMessage(t, db, "CC3333CC", shared.UrgencyUrgent, time.Now().Add(-time.Minute))

	result, err := svc.RunAutoEscalationSweep()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Escalated != 2 {
		t.Fatalf("batch of 2 expected, escalated %d", result.Escalated)
	}

	result, err = svc.RunAutoEscalationSweep()
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if result.Escalated != 1 {
		t.Fatalf("leftover should surface on the next tick, escalated %d", result.Escalated)
	}
}

func TestResolveEscalationAuthorization(t *testing.T) {
	svc, db := newTestEscalationService(t)

	owner := seedUser(t, db, "owner", shared.RoleUser)
	seedPlate(t, db, "CA1234AB", owner.ID)
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyUrgent, time.Now().Add(-time.Minute))

	escalation, err := svc.EscalateMessage(message.ID, "sender-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	req := dto.ResolveEscalationRequest{Outcome: string(model.OutcomeOwnerMovedCar)}

	_, err = svc.ResolveEscalation(escalation.ID, "random-user", shared.RoleUser, req)
	mustAppError(t, err, shared.KindAuthorization)

	resolved, err := svc.ResolveEscalation(escalation.ID, owner.ID, shared.RoleUser, req)
	if err != nil {
		t.Fatalf("resolve as owner: %v", err)
	}
	if !resolved.Resolved || resolved.Outcome != string(model.OutcomeOwnerMovedCar) {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}

	// Second resolution is a conflict.
	_, err = svc.ResolveEscalation(escalation.ID, owner.ID, shared.RoleUser, req)
	mustAppError(t, err, shared.KindConflict)
}

func TestResolveEscalationUpdatesReputation(t *testing.T) {
	svc, db := newTestEscalationService(t)

	owner := seedUser(t, db, "owner", shared.RoleUser)
	seedPlate(t, db, "CA1234AB", owner.ID)
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyUrgent, time.Now().Add(-time.Minute))

	escalation, err := svc.EscalateMessage(message.ID, "sender-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	userRepo := repositories.NewUserRepository(db)
	rep, _ := userRepo.GetReputation(owner.ID)
	if rep.EscalationsReceived != 1 {
		t.Fatalf("escalation should count as received, got %d", rep.EscalationsReceived)
	}

	if _, err := svc.ResolveEscalation(escalation.ID, owner.ID, shared.RoleUser,
		dto.ResolveEscalationRequest{Outcome: string(model.OutcomeOwnerResponded)}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	rep, _ = userRepo.GetReputation(owner.ID)
	if rep.EscalationsResolved != 1 {
		t.Fatalf("owner action should count as resolved, got %d", rep.EscalationsResolved)
	}

	// Outcome resolves the underlying message too.
	got, _ := svc.messageRepo.GetMessage(message.ID)
	if !got.Resolved {
		t.Fatal("owner outcome should resolve the message")
	}
}

func TestDismissedOutcomeResolvesMessage(t *testing.T) {
	svc, db := newTestEscalationService(t)

	admin := seedUser(t, db, "moderator", shared.RoleAdmin)
	message := seedMessage(t, db, "DD4444DD", shared.UrgencyUrgent, time.Now().Add(-time.Minute))

	escalation, err := svc.EscalateMessage(message.ID, "sender-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	if _, err := svc.ResolveEscalation(escalation.ID, admin.ID, shared.RoleAdmin,
		dto.ResolveEscalationRequest{Outcome: string(model.OutcomeDismissed)}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Every outcome in the enum resolves the message; dismissed is not an
	// exception, it only skips the reputation bump.
	got, _ := svc.messageRepo.GetMessage(message.ID)
	if !got.Resolved || got.ResolvedAt == nil {
		t.Fatal("dismissed outcome must resolve the message too")
	}

	rep, _ := repositories.NewUserRepository(db).GetReputation(admin.ID)
	if rep.EscalationsResolved != 0 {
		t.Fatalf("dismissed is not an owner action, got %d resolved", rep.EscalationsResolved)
	}
}

func TestResolveEscalationMessageFailureSurfaces(t *testing.T) {
	svc, db := newTestEscalationService(t)

	owner := seedUser(t, db, "owner", shared.RoleUser)
	seedPlate(t, db, "CA1234AB", owner.ID)
	message := seedMessage(t, db, "CA1234AB", shared.UrgencyUrgent, time.Now().Add(-time.Minute))

	escalation, err := svc.EscalateMessage(message.ID, "sender-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	// Breaking the messages table makes resolving the message fail; the
	// caller must see the error instead of a half-applied resolution.
	if err := db.Migrator().DropTable(&model.Message{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	_, err = svc.ResolveEscalation(escalation.ID, owner.ID, shared.RoleUser,
		dto.ResolveEscalationRequest{Outcome: string(model.OutcomeOwnerMovedCar)})
	if err == nil {
		t.Fatal("message resolution failure must surface to the caller")
	}
}
