package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hemovault/bloodbank/internal/domain"
	"github.com/hemovault/bloodbank/internal/testutil"
)

func TestInventoryRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewInventoryRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("Get returns the row and NOT_FOUND", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.SeedInventory(t, ctx, pool, domain.BloodOPos, 12, 3)

		e, err := repo.Get(ctx, domain.BloodOPos)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if e.BloodType != domain.BloodOPos || e.Quantity != 12 || e.Reserved != 3 || e.Available() != 9 {
			t.Fatalf("unexpected entry: %+v", e)
		}

		if _, err := repo.Get(ctx, domain.BloodABNeg); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("List orders by blood type", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.SeedInventory(t, ctx, pool, domain.BloodONeg, 5, 0)
		testutil.SeedInventory(t, ctx, pool, domain.BloodAPos, 7, 1)
		testutil.SeedInventory(t, ctx, pool, domain.BloodBNeg, 2, 0)

		entries, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := []domain.BloodType{domain.BloodAPos, domain.BloodBNeg, domain.BloodONeg}
		if len(entries) != len(want) {
			t.Fatalf("expected %d entries, got %d", len(want), len(entries))
		}
		for i, bt := range want {
			if entries[i].BloodType != bt {
				t.Fatalf("entries[%d] = %s, want %s", i, entries[i].BloodType, bt)
			}
		}
	})

	t.Run("Mutate updates under the row lock", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.SeedInventory(t, ctx, pool, domain.BloodAPos, 10, 0)

		e, err := repo.Mutate(ctx, domain.BloodAPos, false, func(e *domain.InventoryEntry) error {
			e.Reserved += 4
			e.UpdatedBy = "staff-1"
			return nil
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if e.Reserved != 4 {
			t.Fatalf("expected reserved 4, got %d", e.Reserved)
		}

		got, err := repo.Get(ctx, domain.BloodAPos)
		if err != nil {
			t.Fatalf("read-back: %v", err)
		}
		if got.Reserved != 4 || got.UpdatedBy != "staff-1" {
			t.Fatalf("mutation did not persist: %+v", got)
		}
	})

	t.Run("Mutate with create inserts a missing row", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if _, err := repo.Mutate(ctx, domain.BloodBPos, false, func(e *domain.InventoryEntry) error {
			return nil
		}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}

		e, err := repo.Mutate(ctx, domain.BloodBPos, true, func(e *domain.InventoryEntry) error {
			e.Quantity = 6
			e.UpdatedBy = "staff-1"
			return nil
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if e.BloodType != domain.BloodBPos || e.Quantity != 6 {
			t.Fatalf("unexpected entry: %+v", e)
		}
	})

	t.Run("Mutate callback error rolls back", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.SeedInventory(t, ctx, pool, domain.BloodOPos, 8, 2)

		boom := errors.New("boom")
		if _, err := repo.Mutate(ctx, domain.BloodOPos, false, func(e *domain.InventoryEntry) error {
			e.Quantity = 0
			e.Reserved = 0
			return boom
		}); !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}

		got, err := repo.Get(ctx, domain.BloodOPos)
		if err != nil {
			t.Fatalf("read-back: %v", err)
		}
		if got.Quantity != 8 || got.Reserved != 2 {
			t.Fatalf("rolled-back mutation leaked: %+v", got)
		}
	})

	t.Run("Mutate preserves expiry alerts and the inconsistent flag", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.SeedInventory(t, ctx, pool, domain.BloodABPos, 5, 0)

		_, err := repo.Mutate(ctx, domain.BloodABPos, false, func(e *domain.InventoryEntry) error {
			e.ExpiryAlerts = []domain.ExpiryAlert{{UnitID: "unit-7", AlertLevel: "warning"}}
			e.Inconsistent = true
			return nil
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		got, err := repo.Get(ctx, domain.BloodABPos)
		if err != nil {
			t.Fatalf("read-back: %v", err)
		}
		if !got.Inconsistent || len(got.ExpiryAlerts) != 1 || got.ExpiryAlerts[0].UnitID != "unit-7" {
			t.Fatalf("round trip lost fields: %+v", got)
		}
	})

	t.Run("concurrent mutations serialize per blood type", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.SeedInventory(t, ctx, pool, domain.BloodONeg, 100, 0)

		const workers = 10
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = repo.Mutate(ctx, domain.BloodONeg, false, func(e *domain.InventoryEntry) error {
					e.Reserved++
					return nil
				})
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("mutation %d: %v", i, err)
			}
		}
		got, err := repo.Get(ctx, domain.BloodONeg)
		if err != nil {
			t.Fatalf("read-back: %v", err)
		}
		if got.Reserved != workers {
			t.Fatalf("expected reserved %d, got %d: increments were lost", workers, got.Reserved)
		}
	})
}
