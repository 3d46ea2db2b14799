package services

import (
	"context"
	"testing"

	"github.com/platevoice/plate_api/dto"
	"github.com/platevoice/plate_api/model"
	"github.com/platevoice/plate_api/services/repositories"
	"github.com/platevoice/plate_api/shared"
	"gorm.io/gorm"
)

func newTestIdentityService(t *testing.T) (*IdentityService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewIdentityService(repositories.NewUserRepository(db)), db
}

func TestIsRegisteredFollowsPlateOwnership(t *testing.T) {
	svc, db := newTestIdentityService(t)
	ctx := context.Background()
	user := seedUser(t, db, "driver", shared.RoleUser)

	registered, err := svc.IsRegistered(ctx, user.ID)
	if err != nil {
		t.Fatalf("is registered: %v", err)
	}
	if registered {
		t.Fatal("user without plates must not count as registered")
	}

	seedPlate(t, db, "CA1234AB", user.ID)

	// The negative answer is cached, so a direct read still says no.
	registered, err = svc.IsRegistered(ctx, user.ID)
	if err != nil {
		t.Fatalf("is registered: %v", err)
	}
	if registered {
		t.Fatal("cached answer should survive until invalidation")
	}

	svc.Invalidate(ctx, user.ID)
	registered, err = svc.IsRegistered(ctx, user.ID)
	if err != nil {
		t.Fatalf("is registered: %v", err)
	}
	if !registered {
		t.Fatal("plate owner should count as registered after invalidation")
	}
}

func TestIsPremiumReadsAccountFlag(t *testing.T) {
	svc, db := newTestIdentityService(t)
	ctx := context.Background()

	user := seedUser(t, db, "vip", shared.RoleUser)
	if err := db.Model(&model.User{}).Where("id = ?", user.ID).Update("premium", true).Error; err != nil {
		t.Fatalf("set premium: %v", err)
	}

	premium, err := svc.IsPremium(ctx, user.ID)
	if err != nil {
		t.Fatalf("is premium: %v", err)
	}
	if !premium {
		t.Fatal("premium flag should be reported")
	}

	other := seedUser(t, db, "regular", shared.RoleUser)
	premium, err = svc.IsPremium(ctx, other.ID)
	if err != nil {
		t.Fatalf("is premium: %v", err)
	}
	if premium {
		t.Fatal("regular account must not be premium")
	}
}

func TestRegisterPlateInvalidatesCachedBracket(t *testing.T) {
	svc, db := newTestIdentityService(t)
	ctx := context.Background()
	user := seedUser(t, db, "driver", shared.RoleUser)

	// Prime the cache with the guest answer.
	if registered, _ := svc.IsRegistered(ctx, user.ID); registered {
		t.Fatal("fresh user must not be registered")
	}

	plate, err := svc.RegisterPlate(ctx, user.ID, dto.RegisterPlateRequest{
		Number:  "ca 1234-ab",
		Country: "bg",
	})
	if err != nil {
		t.Fatalf("register plate: %v", err)
	}
	if plate.Number != "CA1234AB" {
		t.Fatalf("plate number should be normalized, got %q", plate.Number)
	}
	if plate.Country != "BG" {
		t.Fatalf("country should be uppercased, got %q", plate.Country)
	}

	// Registration drops the cached answer, so the new bracket applies at
	// once.
	registered, err := svc.IsRegistered(ctx, user.ID)
	if err != nil {
		t.Fatalf("is registered: %v", err)
	}
	if !registered {
		t.Fatal("quota bracket should flip immediately after registration")
	}
}

func TestRegisterPlateDuplicateNumber(t *testing.T) {
	svc, db := newTestIdentityService(t)
	ctx := context.Background()

	first := seedUser(t, db, "first", shared.RoleUser)
	second := seedUser(t, db, "second", shared.RoleUser)

	if _, err := svc.RegisterPlate(ctx, first.ID, dto.RegisterPlateRequest{
		Number:  "CA1234AB",
		Country: "BG",
	}); err != nil {
		t.Fatalf("first registration: %v", err)
	}

	// Same plate, different separators, different owner.
	_, err := svc.RegisterPlate(ctx, second.ID, dto.RegisterPlateRequest{
		Number:  "CA 1234 AB",
		Country: "BG",
	})
	mustAppError(t, err, shared.KindConflict)
}

func TestListPlatesReturnsOwnersOnly(t *testing.T) {
	svc, db := newTestIdentityService(t)

	owner := seedUser(t, db, "owner", shared.RoleUser)
	other := seedUser(t, db, "other", shared.RoleUser)
	seedPlate(t, db, "AA1111AA", owner.ID)
	seedPlate(t, db, "BB2222BB", owner.ID)
	seedPlate(t, db, "CC3333CC", other.ID)

	resp, err := svc.ListPlates(owner.ID)
	if err != nil {
		t.Fatalf("list plates: %v", err)
	}
	if len(resp.Plates) != 2 {
		t.Fatalf("expected 2 plates, got %d", len(resp.Plates))
	}
	for _, p := range resp.Plates {
		if p.Number == "CC3333CC" {
			t.Fatal("listing leaked another owner's plate")
		}
	}
}
