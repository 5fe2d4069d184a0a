package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemovault/bloodbank/internal/domain"
)

const inventoryColumns = `blood_type, quantity, reserved, expiry_alerts, inconsistent, last_updated, updated_by`

type InventoryRepository struct {
	q querier
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{q: querier{pool: pool}}
}

func (r *InventoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.q.pool, fn)
}

func (r *InventoryRepository) List(ctx context.Context) ([]domain.InventoryEntry, error) {
	rows, err := r.q.Query(ctx, `SELECT `+inventoryColumns+` FROM inventory ORDER BY blood_type ASC`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var entries []domain.InventoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *InventoryRepository) Get(ctx context.Context, bt domain.BloodType) (domain.InventoryEntry, error) {
	row := r.q.QueryRow(ctx, `SELECT `+inventoryColumns+` FROM inventory WHERE blood_type = $1`, string(bt))
	e, err := scanEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.InventoryEntry{}, domain.NotFoundf("inventory for blood type %s", bt)
		}
		return domain.InventoryEntry{}, fmt.Errorf("get inventory: %w", err)
	}
	return e, nil
}

// Mutate serializes concurrent mutations of one blood type through a
// SELECT ... FOR UPDATE row lock held for the duration of the callback.
func (r *InventoryRepository) Mutate(ctx context.Context, bt domain.BloodType, create bool, fn func(*domain.InventoryEntry) error) (domain.InventoryEntry, error) {
	var out domain.InventoryEntry

	err := withTx(ctx, r.q.pool, func(txCtx context.Context) error {
		if create {
			_, err := r.q.Exec(txCtx, `
INSERT INTO inventory (blood_type, quantity, reserved, expiry_alerts, inconsistent, last_updated, updated_by)
VALUES ($1, 0, 0, '[]', FALSE, NOW(), '')
ON CONFLICT (blood_type) DO NOTHING`, string(bt))
			if err != nil {
				return fmt.Errorf("ensure inventory row: %w", err)
			}
		}

		row := r.q.QueryRow(txCtx, `SELECT `+inventoryColumns+` FROM inventory WHERE blood_type = $1 FOR UPDATE`, string(bt))
		e, err := scanEntry(row)
		if err != nil {
			if err == pgx.ErrNoRows {
				return domain.NotFoundf("inventory for blood type %s", bt)
			}
			return fmt.Errorf("lock inventory row: %w", err)
		}

		if err := fn(&e); err != nil {
			return err
		}

		alerts := e.ExpiryAlerts
		if alerts == nil {
			alerts = []domain.ExpiryAlert{}
		}
		_, err = r.q.Exec(txCtx, `
UPDATE inventory
SET quantity = $2, reserved = $3, expiry_alerts = $4, inconsistent = $5, last_updated = $6, updated_by = $7
WHERE blood_type = $1`,
			string(e.BloodType), e.Quantity, e.Reserved, alerts, e.Inconsistent, e.LastUpdated, e.UpdatedBy,
		)
		if err != nil {
			return fmt.Errorf("update inventory: %w", err)
		}

		out = e
		return nil
	})
	if err != nil {
		return domain.InventoryEntry{}, err
	}
	return out, nil
}

func scanEntry(row pgx.Row) (domain.InventoryEntry, error) {
	var e domain.InventoryEntry
	var bt string
	err := row.Scan(&bt, &e.Quantity, &e.Reserved, &e.ExpiryAlerts, &e.Inconsistent, &e.LastUpdated, &e.UpdatedBy)
	if err != nil {
		return domain.InventoryEntry{}, err
	}
	e.BloodType = domain.BloodType(bt)
	return e, nil
}
