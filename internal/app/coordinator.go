package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hemovault/bloodbank/internal/clock"
	"github.com/hemovault/bloodbank/internal/domain"
	"github.com/hemovault/bloodbank/internal/metrics"
)

// RequestRepository is the durable request store. Save applies optimistic
// concurrency: it rejects a write whose version no longer matches the stored
// row with STALE_WRITE.
type RequestRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, r domain.Request) error
	Get(ctx context.Context, id string) (domain.Request, error)
	Save(ctx context.Context, r domain.Request) (domain.Request, error)
	List(ctx context.Context, f domain.RequestFilter, p domain.Page, s domain.Sort) ([]domain.Request, int, error)
	Urgent(ctx context.Context) ([]domain.Request, error)
	Overdue(ctx context.Context, now time.Time) ([]domain.Request, error)
}

const transitionAttempts = 3
const defaultRetryBackoff = 10 * time.Millisecond

// Coordinator drives a request through its state machine and keeps the
// ledger consistent with it: approving reserves units, fulfilling commits
// them, cancelling or rejecting an approved request releases them.
type Coordinator struct {
	requests RequestRepository
	ledger   *LedgerService
	clock    clock.Clock
	newID    func() string
	backoff  time.Duration
}

func NewCoordinator(requests RequestRepository, ledger *LedgerService, clk clock.Clock, newID func() string, opts ...CoordinatorOption) *Coordinator {
	if newID == nil {
		newID = NewID
	}
	c := &Coordinator{
		requests: requests,
		ledger:   ledger,
		clock:    clk,
		newID:    newID,
		backoff:  defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type CoordinatorOption func(*Coordinator)

// WithRetryBackoff overrides the base delay between stale-write retries.
func WithRetryBackoff(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// CreateRequestInput carries the caller-supplied request fields.
type CreateRequestInput struct {
	PatientName   string
	HospitalName  string
	ContactPerson string
	ContactPhone  string
	ContactEmail  string
	BloodType     domain.BloodType
	Quantity      int
	Urgency       domain.Urgency
	RequiredBy    time.Time
	Notes         string
}

// CreateRequest validates the input and stores a new pending request.
func (c *Coordinator) CreateRequest(ctx context.Context, in CreateRequestInput, actor domain.Actor) (domain.Request, error) {
	urgency := in.Urgency
	if urgency == "" {
		urgency = domain.UrgencyMedium
	}

	req := domain.Request{
		ID:            c.newID(),
		PatientName:   in.PatientName,
		HospitalName:  in.HospitalName,
		ContactPerson: in.ContactPerson,
		ContactPhone:  in.ContactPhone,
		ContactEmail:  in.ContactEmail,
		BloodType:     in.BloodType,
		Quantity:      in.Quantity,
		Urgency:       urgency,
		Status:        domain.StatusPending,
		RequestDate:   c.clock.Now(),
		RequiredBy:    in.RequiredBy,
		Notes:         in.Notes,
		ProcessedBy:   actor.ID,
		Version:       1,
	}
	if err := req.Validate(); err != nil {
		return domain.Request{}, err
	}
	if err := c.requests.Create(ctx, req); err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

// GetRequest returns one request by id.
func (c *Coordinator) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	return c.requests.Get(ctx, id)
}

// ListRequests returns one page plus the total match count.
func (c *Coordinator) ListRequests(ctx context.Context, f domain.RequestFilter, p domain.Page, s domain.Sort) ([]domain.Request, int, error) {
	if s.Field == "" {
		s = domain.Sort{Field: domain.SortByRequestDate, Descending: true}
	}
	return c.requests.List(ctx, f, p.Normalize(), s)
}

// UrgentRequests lists open high/critical requests, most urgent first, then
// by nearest deadline.
func (c *Coordinator) UrgentRequests(ctx context.Context) ([]domain.Request, error) {
	return c.requests.Urgent(ctx)
}

// OverdueRequests lists unfulfilled requests whose deadline has passed.
func (c *Coordinator) OverdueRequests(ctx context.Context) ([]domain.Request, error) {
	return c.requests.Overdue(ctx, c.clock.Now())
}

// Transition moves a request to target, performing the paired ledger action.
// Stale writes are retried a few times with backoff before surfacing
// CONTENDED.
func (c *Coordinator) Transition(ctx context.Context, id string, target domain.RequestStatus, notes string, actor domain.Actor) (domain.Request, error) {
	req, err := c.transitionWithRetry(ctx, id, target, notes, actor)
	metrics.TransitionsTotal.WithLabelValues(string(target), metrics.Outcome(err)).Inc()
	return req, err
}

// CancelByCaller cancels a request from either pending or approved.
func (c *Coordinator) CancelByCaller(ctx context.Context, id string, actor domain.Actor) (domain.Request, error) {
	return c.Transition(ctx, id, domain.StatusCancelled, "", actor)
}

func (c *Coordinator) transitionWithRetry(ctx context.Context, id string, target domain.RequestStatus, notes string, actor domain.Actor) (domain.Request, error) {
	var lastErr error
	for attempt := 0; attempt < transitionAttempts; attempt++ {
		if attempt > 0 && c.backoff > 0 {
			select {
			case <-ctx.Done():
				return domain.Request{}, ctx.Err()
			case <-time.After(c.backoff << (attempt - 1)):
			}
		}
		req, err := c.transitionOnce(ctx, id, target, notes, actor)
		if errors.Is(err, domain.ErrStaleWrite) {
			lastErr = err
			continue
		}
		return req, err
	}
	return domain.Request{}, domain.ErrContended.WithDetails(map[string]string{
		"requestId": id,
		"cause":     lastErr.Error(),
	})
}

// ledgerAction names the inventory mutation a transition performs.
type ledgerAction int

const (
	actionNone ledgerAction = iota
	actionReserve
	actionCommit
	actionRelease
)

func actionFor(from, to domain.RequestStatus) ledgerAction {
	switch {
	case from == domain.StatusPending && to == domain.StatusApproved:
		return actionReserve
	case from == domain.StatusApproved && to == domain.StatusFulfilled:
		return actionCommit
	case from == domain.StatusApproved && (to == domain.StatusCancelled || to == domain.StatusRejected):
		return actionRelease
	}
	return actionNone
}

func (c *Coordinator) transitionOnce(ctx context.Context, id string, target domain.RequestStatus, notes string, actor domain.Actor) (domain.Request, error) {
	var updated domain.Request

	err := c.requests.WithTx(ctx, func(txCtx context.Context) error {
		req, err := c.requests.Get(txCtx, id)
		if err != nil {
			return err
		}

		// Only pending -> cancelled is open to the requester; everything
		// else is a processing decision.
		if !actor.CanProcess() && !(req.Status == domain.StatusPending && target == domain.StatusCancelled) {
			return domain.ErrForbidden
		}

		entry, err := c.ledger.Get(txCtx, req.BloodType)
		switch {
		case err == nil:
			if entry.Inconsistent {
				return domain.ErrInconsistent.WithDetails(map[string]string{
					"bloodType": string(req.BloodType),
				})
			}
		case errors.Is(err, domain.ErrNotFound):
			// No row yet; a reserve below will refuse on its own.
		default:
			return err
		}

		if req.Status == target && !req.Status.Terminal() {
			// Idempotent no-op: nothing is written, so the stored record
			// stays byte-identical.
			updated = req
			return nil
		}
		if !domain.CanTransition(req.Status, target) {
			return domain.ErrInvalidTransition.WithDetails(map[string]string{
				"from": string(req.Status),
				"to":   string(target),
			})
		}

		action := actionFor(req.Status, target)
		prev := req

		now := c.clock.Now()
		req.Status = target
		if target == domain.StatusFulfilled {
			req.FulfilledDate = &now
		}
		if notes != "" {
			req.Notes = notes
		}
		req.ProcessedBy = actor.ID

		// The version-checked save is the serialization point: the loser of
		// a concurrent transition fails here, before the ledger is touched,
		// and re-reads on retry. Running the ledger action first would make
		// its clamping inverse un-restorable under a duplicate release.
		saved, err := c.requests.Save(txCtx, req)
		if err != nil {
			return err
		}

		if err := c.applyLedgerAction(txCtx, action, prev, actor); err != nil {
			// The ledger refused and was not changed; put the request row
			// back the way it was.
			restore := prev
			restore.Version = saved.Version
			if _, rerr := c.requests.Save(txCtx, restore); rerr != nil {
				// The request now claims a state the ledger never entered.
				// Flag the blood type outside the transaction so the block
				// survives any rollback.
				c.ledger.MarkInconsistent(ctx, prev.BloodType, prev.ID,
					fmt.Sprintf("rollback after refused ledger action: action=%v restore=%v", err, rerr), actor)
				return domain.ErrInconsistent.WithDetails(map[string]string{
					"bloodType": string(prev.BloodType),
					"requestId": prev.ID,
				})
			}
			return err
		}

		updated = saved
		return nil
	})
	if err != nil {
		return domain.Request{}, err
	}
	return updated, nil
}

func (c *Coordinator) applyLedgerAction(ctx context.Context, action ledgerAction, req domain.Request, actor domain.Actor) error {
	var err error
	switch action {
	case actionReserve:
		_, err = c.ledger.Reserve(ctx, req.BloodType, req.Quantity, actor)
		// No inventory row at all reads the same as zero stock.
		if errors.Is(err, domain.ErrNotFound) {
			err = domain.ErrInsufficientStock.WithDetails(map[string]string{
				"bloodType": string(req.BloodType),
				"available": "0",
			})
		}
	case actionCommit:
		_, err = c.ledger.Commit(ctx, req.BloodType, req.Quantity, actor)
	case actionRelease:
		_, err = c.ledger.Release(ctx, req.BloodType, req.Quantity, actor)
	}
	return err
}
