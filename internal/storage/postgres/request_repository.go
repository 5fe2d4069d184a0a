package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemovault/bloodbank/internal/domain"
)

const requestColumns = `id, patient_name, hospital_name, contact_person, contact_phone, contact_email,
blood_type, quantity, urgency, status, request_date, required_by, fulfilled_date, notes, processed_by, version`

type RequestRepository struct {
	q querier
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{q: querier{pool: pool}}
}

func (r *RequestRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.q.pool, fn)
}

func (r *RequestRepository) Create(ctx context.Context, req domain.Request) error {
	_, err := r.q.Exec(ctx, `
INSERT INTO blood_requests (`+requestColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		req.ID, req.PatientName, req.HospitalName, req.ContactPerson, req.ContactPhone, req.ContactEmail,
		string(req.BloodType), req.Quantity, string(req.Urgency), string(req.Status),
		req.RequestDate, req.RequiredBy, req.FulfilledDate, req.Notes, req.ProcessedBy, req.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Validationf("request %s already exists", req.ID)
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (r *RequestRepository) Get(ctx context.Context, id string) (domain.Request, error) {
	row := r.q.QueryRow(ctx, `SELECT `+requestColumns+` FROM blood_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if isInvalidUUID(err) || err == pgx.ErrNoRows {
			return domain.Request{}, domain.NotFoundf("request %s", id)
		}
		return domain.Request{}, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// Save writes the request back guarded by its version; a version mismatch
// surfaces as STALE_WRITE so the coordinator can retry the whole transition.
func (r *RequestRepository) Save(ctx context.Context, req domain.Request) (domain.Request, error) {
	tag, err := r.q.Exec(ctx, `
UPDATE blood_requests
SET patient_name = $2, hospital_name = $3, contact_person = $4, contact_phone = $5, contact_email = $6,
    blood_type = $7, quantity = $8, urgency = $9, status = $10, request_date = $11, required_by = $12,
    fulfilled_date = $13, notes = $14, processed_by = $15, version = version + 1
WHERE id = $1 AND version = $16`,
		req.ID, req.PatientName, req.HospitalName, req.ContactPerson, req.ContactPhone, req.ContactEmail,
		string(req.BloodType), req.Quantity, string(req.Urgency), string(req.Status),
		req.RequestDate, req.RequiredBy, req.FulfilledDate, req.Notes, req.ProcessedBy, req.Version,
	)
	if err != nil {
		return domain.Request{}, fmt.Errorf("save request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM blood_requests WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
			return domain.Request{}, fmt.Errorf("check request: %w", err)
		}
		if !exists {
			return domain.Request{}, domain.NotFoundf("request %s", req.ID)
		}
		return domain.Request{}, domain.ErrStaleWrite
	}
	req.Version++
	return req, nil
}

var sortColumns = map[domain.SortField]string{
	domain.SortByRequestDate: "request_date",
	domain.SortByRequiredBy:  "required_by",
	domain.SortByQuantity:    "quantity",
	domain.SortByStatus:      "status",
	domain.SortByBloodType:   "blood_type",
	domain.SortByUrgency: `CASE urgency
WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END`,
}

func (r *RequestRepository) List(ctx context.Context, f domain.RequestFilter, p domain.Page, ord domain.Sort) ([]domain.Request, int, error) {
	var conds []string
	var args []any
	add := func(col, val string) {
		args = append(args, val)
		conds = append(conds, col+" = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	if f.Urgency != "" {
		add("urgency", string(f.Urgency))
	}
	if f.BloodType != "" {
		add("blood_type", string(f.BloodType))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM blood_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	orderCol, ok := sortColumns[ord.Field]
	if !ok {
		orderCol = "request_date"
	}
	dir := "ASC"
	if ord.Descending {
		dir = "DESC"
	}

	p = p.Normalize()
	args = append(args, p.Size, (p.Number-1)*p.Size)
	query := `SELECT ` + requestColumns + ` FROM blood_requests` + where +
		` ORDER BY ` + orderCol + ` ` + dir +
		` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	out, err := scanRequests(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *RequestRepository) Urgent(ctx context.Context) ([]domain.Request, error) {
	rows, err := r.q.Query(ctx, `
SELECT `+requestColumns+`
FROM blood_requests
WHERE urgency IN ('high', 'critical') AND status IN ('pending', 'approved')
ORDER BY CASE urgency WHEN 'critical' THEN 4 ELSE 3 END DESC, required_by ASC`)
	if err != nil {
		return nil, fmt.Errorf("urgent requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func (r *RequestRepository) Overdue(ctx context.Context, now time.Time) ([]domain.Request, error) {
	rows, err := r.q.Query(ctx, `
SELECT `+requestColumns+`
FROM blood_requests
WHERE required_by < $1 AND status <> 'fulfilled'
ORDER BY required_by ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("overdue requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

func scanRequests(rows pgx.Rows) ([]domain.Request, error) {
	out := make([]domain.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (domain.Request, error) {
	var req domain.Request
	var bt, urgency, status string
	err := row.Scan(
		&req.ID, &req.PatientName, &req.HospitalName, &req.ContactPerson, &req.ContactPhone, &req.ContactEmail,
		&bt, &req.Quantity, &urgency, &status,
		&req.RequestDate, &req.RequiredBy, &req.FulfilledDate, &req.Notes, &req.ProcessedBy, &req.Version,
	)
	if err != nil {
		return domain.Request{}, err
	}
	req.BloodType = domain.BloodType(bt)
	req.Urgency = domain.Urgency(urgency)
	req.Status = domain.RequestStatus(status)
	return req, nil
}
