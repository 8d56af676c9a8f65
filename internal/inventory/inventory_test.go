package inventory_test

import (
	"context"
	"path/filepath"
	"testing"

	"cookin/internal/database"
	"cookin/internal/inventory"
	"cookin/internal/user"
)

func newTestRepo(t *testing.T) *inventory.Repository {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// inventory rows reference the user table
	if _, err := user.NewRepository(db).GetOrCreate(context.Background(), "+1555"); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return inventory.NewRepository(db)
}

func TestAddIsIdempotentOnName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Add(ctx, "+1555", inventory.Item{Name: "Rice", Quantity: "1 bag"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := repo.Add(ctx, "+1555", inventory.Item{Name: "rice", Quantity: "2 bags"}); err != nil {
		t.Fatalf("second Add failed: %v", err)
	}

	items, err := repo.List(ctx, "+1555")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item after duplicate add, got %d", len(items))
	}
	if items[0].Name != "rice" {
		t.Errorf("expected lowercased name, got %q", items[0].Name)
	}
	if items[0].Quantity != "2 bags" {
		t.Errorf("expected quantity updated to 2 bags, got %q", items[0].Quantity)
	}
}

func TestListOrdersStaplesFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddBatch(ctx, "+1555", []inventory.Item{
		{Name: "chicken"},
		{Name: "olive oil", IsStaple: true},
		{Name: "broccoli"},
		{Name: "salt", IsStaple: true},
	})
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	items, err := repo.List(ctx, "+1555")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"olive oil", "salt", "broccoli", "chicken"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, name := range want {
		if items[i].Name != name {
			t.Errorf("position %d: expected %q, got %q", i, name, items[i].Name)
		}
	}
}

func TestKeepOnly(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.AddBatch(ctx, "+1555", []inventory.Item{
		{Name: "eggs"}, {Name: "milk"}, {Name: "butter"},
	})
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	items, _ := repo.List(ctx, "+1555")
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	if err := repo.KeepOnly(ctx, "+1555", []int64{items[0].ID}); err != nil {
		t.Fatalf("KeepOnly failed: %v", err)
	}
	items, _ = repo.List(ctx, "+1555")
	if len(items) != 1 {
		t.Fatalf("expected 1 item after prune, got %d", len(items))
	}

	// empty keep list wipes everything
	if err := repo.KeepOnly(ctx, "+1555", nil); err != nil {
		t.Fatalf("KeepOnly with empty list failed: %v", err)
	}
	items, _ = repo.List(ctx, "+1555")
	if len(items) != 0 {
		t.Errorf("expected empty inventory, got %d items", len(items))
	}
}

func TestRemoveMissingItem(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.Remove(context.Background(), "+1555", "unicorn meat"); err != nil {
		t.Errorf("removing a missing item should not error, got %v", err)
	}
}
