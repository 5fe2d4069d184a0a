package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemovault/bloodbank/internal/domain"
)

// AuditRepository appends to the audit_log table. The table is append-only;
// no update or delete statements exist anywhere in this package.
type AuditRepository struct {
	q querier
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{q: querier{pool: pool}}
}

func (r *AuditRepository) Append(ctx context.Context, rec domain.AuditRecord) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO audit_log (id, at, actor, action, blood_type, request_id, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.At, rec.Actor, string(rec.Action), string(rec.BloodType), rec.RequestID, rec.Detail,
	)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}
