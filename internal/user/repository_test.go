package user_test

import (
	"context"
	"path/filepath"
	"testing"

	"cookin/internal/database"
	"cookin/internal/user"
)

func newTestRepo(t *testing.T) *user.Repository {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return user.NewRepository(db)
}

func TestGetOrCreate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.GetOrCreate(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if u.PhoneNumber != "+15551234567" {
		t.Errorf("expected phone +15551234567, got %s", u.PhoneNumber)
	}
	if u.ConversationState != user.StateNew {
		t.Errorf("expected new user in state %q, got %q", user.StateNew, u.ConversationState)
	}
	if u.MaxMessagesPerDay != 3 {
		t.Errorf("expected default max messages 3, got %d", u.MaxMessagesPerDay)
	}

	// second call returns the same row
	again, err := repo.GetOrCreate(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if again.CreatedAt != u.CreatedAt {
		t.Errorf("expected same row on second call")
	}
}

func TestGetMissing(t *testing.T) {
	repo := newTestRepo(t)

	u, err := repo.Get(context.Background(), "+10000000000")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil for missing user, got %+v", u)
	}
}

func TestUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetOrCreate(ctx, "+15551234567"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	name := "Priya"
	cuisines := []string{"indian", "thai"}
	size := 4
	if err := repo.Update(ctx, "+15551234567", user.ProfileUpdate{
		Name:               &name,
		CuisinePreferences: &cuisines,
		HouseholdSize:      &size,
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	u, err := repo.Get(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if u.Name != "Priya" {
		t.Errorf("expected name Priya, got %s", u.Name)
	}
	if len(u.CuisinePreferences) != 2 || u.CuisinePreferences[0] != "indian" {
		t.Errorf("unexpected cuisines: %v", u.CuisinePreferences)
	}
	if u.HouseholdSize != 4 {
		t.Errorf("expected household size 4, got %d", u.HouseholdSize)
	}
}

func TestUpdateRejectsBadSkillLevel(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetOrCreate(ctx, "+15551234567"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	bad := "grandmaster"
	err := repo.Update(ctx, "+15551234567", user.ProfileUpdate{SkillLevel: &bad})
	if err == nil {
		t.Fatal("expected error for unknown skill level")
	}
}

func TestUpdateField(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetOrCreate(ctx, "+15551234567"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	t.Run("StringField", func(t *testing.T) {
		if err := repo.UpdateField(ctx, "+15551234567", "timezone", "America/New_York"); err != nil {
			t.Fatalf("UpdateField failed: %v", err)
		}
		u, _ := repo.Get(ctx, "+15551234567")
		if u.Timezone != "America/New_York" {
			t.Errorf("expected timezone America/New_York, got %s", u.Timezone)
		}
	})

	t.Run("NumberFromJSON", func(t *testing.T) {
		// tool arguments decode numbers as float64
		if err := repo.UpdateField(ctx, "+15551234567", "household_size", float64(2)); err != nil {
			t.Fatalf("UpdateField failed: %v", err)
		}
		u, _ := repo.Get(ctx, "+15551234567")
		if u.HouseholdSize != 2 {
			t.Errorf("expected household size 2, got %d", u.HouseholdSize)
		}
	})

	t.Run("ListFromJSON", func(t *testing.T) {
		if err := repo.UpdateField(ctx, "+15551234567", "cook_days", []any{"monday", "thursday"}); err != nil {
			t.Fatalf("UpdateField failed: %v", err)
		}
		u, _ := repo.Get(ctx, "+15551234567")
		if len(u.CookDays) != 2 || u.CookDays[1] != "thursday" {
			t.Errorf("unexpected cook days: %v", u.CookDays)
		}
	})

	t.Run("UnknownField", func(t *testing.T) {
		err := repo.UpdateField(ctx, "+15551234567", "phone_number", "+1999")
		if err == nil {
			t.Fatal("expected error for non-updatable field")
		}
	})
}

func TestSetConversationState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetOrCreate(ctx, "+15551234567"); err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	err := repo.SetConversationState(ctx, "+15551234567", user.StateAwaitingPlanApproval,
		map[string]any{"plan_id": "abc"})
	if err != nil {
		t.Fatalf("SetConversationState failed: %v", err)
	}

	u, _ := repo.Get(ctx, "+15551234567")
	if u.ConversationState != user.StateAwaitingPlanApproval {
		t.Errorf("expected state %q, got %q", user.StateAwaitingPlanApproval, u.ConversationState)
	}
	if u.StateContext["plan_id"] != "abc" {
		t.Errorf("expected plan_id in context, got %v", u.StateContext)
	}

	// moving on replaces the context wholesale
	if err := repo.SetConversationState(ctx, "+15551234567", user.StateIdle, nil); err != nil {
		t.Fatalf("SetConversationState failed: %v", err)
	}
	u, _ = repo.Get(ctx, "+15551234567")
	if len(u.StateContext) != 0 {
		t.Errorf("expected empty context after transition, got %v", u.StateContext)
	}
}

func TestListOnboarded(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, phone := range []string{"+1111", "+2222", "+3333"} {
		if _, err := repo.GetOrCreate(ctx, phone); err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
	}
	if err := repo.SetConversationState(ctx, "+1111", user.StateIdle, nil); err != nil {
		t.Fatalf("SetConversationState failed: %v", err)
	}
	if err := repo.SetConversationState(ctx, "+2222", user.StateOnboardingCuisine, nil); err != nil {
		t.Fatalf("SetConversationState failed: %v", err)
	}

	users, err := repo.ListOnboarded(ctx)
	if err != nil {
		t.Fatalf("ListOnboarded failed: %v", err)
	}
	if len(users) != 1 || users[0].PhoneNumber != "+1111" {
		t.Errorf("expected only +1111 onboarded, got %v", users)
	}
}
