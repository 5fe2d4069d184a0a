package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/hemovault/bloodbank/internal/clock"
	"github.com/hemovault/bloodbank/internal/domain"
	"github.com/hemovault/bloodbank/internal/metrics"
)

// InventoryRepository stores one entry per blood type. Mutate must be
// linearizable per blood type: the callback observes the current entry under
// exclusive ownership and its result is persisted before any concurrent
// mutation of the same blood type proceeds.
type InventoryRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	List(ctx context.Context) ([]domain.InventoryEntry, error)
	Get(ctx context.Context, bt domain.BloodType) (domain.InventoryEntry, error)
	// Mutate loads the entry for bt, applies fn, and persists the result if
	// fn returns nil. With create set, a missing entry starts zero-valued;
	// otherwise a missing entry yields NOT_FOUND.
	Mutate(ctx context.Context, bt domain.BloodType, create bool, fn func(*domain.InventoryEntry) error) (domain.InventoryEntry, error)
}

// AuditRepository is the append-only record of operator-relevant events.
type AuditRepository interface {
	Append(ctx context.Context, rec domain.AuditRecord) error
}

const (
	// DefaultLowStockThreshold flags entries as low stock.
	DefaultLowStockThreshold = 20
	// DefaultCriticalThreshold escalates low stock to critical.
	DefaultCriticalThreshold = 10
)

// LedgerService maintains the per-blood-type counters and the
// reserve/commit/release protocol over them.
type LedgerService struct {
	repo  InventoryRepository
	audit AuditRepository
	clock clock.Clock
	newID func() string
}

func NewLedgerService(repo InventoryRepository, audit AuditRepository, clk clock.Clock, newID func() string) *LedgerService {
	if newID == nil {
		newID = NewID
	}
	return &LedgerService{repo: repo, audit: audit, clock: clk, newID: newID}
}

// List returns a snapshot of all entries, blood type ascending.
func (s *LedgerService) List(ctx context.Context) ([]domain.InventoryEntry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].BloodType < entries[j].BloodType
	})
	return entries, nil
}

// Get returns the entry for one blood type.
func (s *LedgerService) Get(ctx context.Context, bt domain.BloodType) (domain.InventoryEntry, error) {
	if !bt.Valid() {
		return domain.InventoryEntry{}, domain.Validationf("invalid blood type %q", string(bt))
	}
	return s.repo.Get(ctx, bt)
}

// Update applies a set/add/subtract quantity change, creating the entry if
// absent. Subtract clamps at zero; every variant refuses to leave quantity
// below reserved.
func (s *LedgerService) Update(ctx context.Context, bt domain.BloodType, quantity int, op domain.UpdateOp, actor domain.Actor) (domain.InventoryEntry, error) {
	if !bt.Valid() {
		return domain.InventoryEntry{}, domain.Validationf("invalid blood type %q", string(bt))
	}
	if quantity < 0 {
		return domain.InventoryEntry{}, domain.Validationf("quantity cannot be negative")
	}

	entry, err := s.repo.Mutate(ctx, bt, true, func(e *domain.InventoryEntry) error {
		next := e.Quantity
		switch op {
		case domain.OpAdd:
			next = e.Quantity + quantity
		case domain.OpSubtract:
			next = e.Quantity - quantity
			if next < 0 {
				next = 0
			}
		default:
			next = quantity
		}
		if next < e.Reserved {
			return domain.ErrWouldUnderflow.WithDetails(map[string]string{
				"bloodType": string(bt),
				"reserved":  strconv.Itoa(e.Reserved),
				"requested": strconv.Itoa(next),
			})
		}
		e.Quantity = next
		s.stamp(e, actor)
		return nil
	})
	metrics.LedgerOpsTotal.WithLabelValues(op.String(), metrics.Outcome(err)).Inc()
	return entry, err
}

// Adjust adds a signed delta to quantity with strict underflow checking.
func (s *LedgerService) Adjust(ctx context.Context, bt domain.BloodType, delta int, actor domain.Actor) (domain.InventoryEntry, error) {
	if !bt.Valid() {
		return domain.InventoryEntry{}, domain.Validationf("invalid blood type %q", string(bt))
	}
	entry, err := s.repo.Mutate(ctx, bt, true, func(e *domain.InventoryEntry) error {
		next := e.Quantity + delta
		if next < 0 || next < e.Reserved {
			return domain.ErrWouldUnderflow.WithDetails(map[string]string{
				"bloodType": string(bt),
				"delta":     strconv.Itoa(delta),
			})
		}
		e.Quantity = next
		s.stamp(e, actor)
		return nil
	})
	metrics.LedgerOpsTotal.WithLabelValues("adjust", metrics.Outcome(err)).Inc()
	return entry, err
}

// Reserve holds n units for an approved request. Fails with
// INSUFFICIENT_STOCK when fewer than n units are available, leaving the
// entry untouched.
func (s *LedgerService) Reserve(ctx context.Context, bt domain.BloodType, n int, actor domain.Actor) (domain.InventoryEntry, error) {
	if err := validateUnits(bt, n); err != nil {
		return domain.InventoryEntry{}, err
	}
	entry, err := s.repo.Mutate(ctx, bt, false, func(e *domain.InventoryEntry) error {
		if e.Available() < n {
			return domain.ErrInsufficientStock.WithDetails(map[string]string{
				"bloodType": string(bt),
				"available": strconv.Itoa(e.Available()),
				"requested": strconv.Itoa(n),
			})
		}
		e.Reserved += n
		s.stamp(e, actor)
		return nil
	})
	metrics.LedgerOpsTotal.WithLabelValues("reserve", metrics.Outcome(err)).Inc()
	return entry, err
}

// Commit dispenses n reserved units: both reserved and quantity decrease.
func (s *LedgerService) Commit(ctx context.Context, bt domain.BloodType, n int, actor domain.Actor) (domain.InventoryEntry, error) {
	if err := validateUnits(bt, n); err != nil {
		return domain.InventoryEntry{}, err
	}
	entry, err := s.repo.Mutate(ctx, bt, false, func(e *domain.InventoryEntry) error {
		if n > e.Reserved {
			return domain.ErrInvalidCommit.WithDetails(map[string]string{
				"bloodType": string(bt),
				"reserved":  strconv.Itoa(e.Reserved),
				"requested": strconv.Itoa(n),
			})
		}
		e.Reserved -= n
		e.Quantity -= n
		s.stamp(e, actor)
		return nil
	})
	metrics.LedgerOpsTotal.WithLabelValues("commit", metrics.Outcome(err)).Inc()
	return entry, err
}

// Release returns n reserved units to the available pool. Clamps at zero
// instead of failing; releasing is always safe to attempt.
func (s *LedgerService) Release(ctx context.Context, bt domain.BloodType, n int, actor domain.Actor) (domain.InventoryEntry, error) {
	if err := validateUnits(bt, n); err != nil {
		return domain.InventoryEntry{}, err
	}
	entry, err := s.repo.Mutate(ctx, bt, false, func(e *domain.InventoryEntry) error {
		e.Reserved -= n
		if e.Reserved < 0 {
			e.Reserved = 0
		}
		s.stamp(e, actor)
		return nil
	})
	metrics.LedgerOpsTotal.WithLabelValues("release", metrics.Outcome(err)).Inc()
	return entry, err
}

// ManualReserve is the operational-correction entry point: role gated,
// bypasses the state machine, and leaves an audit trail.
func (s *LedgerService) ManualReserve(ctx context.Context, bt domain.BloodType, n int, actor domain.Actor) (domain.InventoryEntry, error) {
	if !actor.CanProcess() {
		return domain.InventoryEntry{}, domain.ErrForbidden
	}
	entry, err := s.Reserve(ctx, bt, n, actor)
	if err != nil {
		return domain.InventoryEntry{}, err
	}
	s.appendAudit(ctx, domain.AuditManualReserve, bt, "", actor, fmt.Sprintf("manually reserved %d units", n))
	return entry, nil
}

// ManualRelease mirrors ManualReserve for releasing held units.
func (s *LedgerService) ManualRelease(ctx context.Context, bt domain.BloodType, n int, actor domain.Actor) (domain.InventoryEntry, error) {
	if !actor.CanProcess() {
		return domain.InventoryEntry{}, domain.ErrForbidden
	}
	entry, err := s.Release(ctx, bt, n, actor)
	if err != nil {
		return domain.InventoryEntry{}, err
	}
	s.appendAudit(ctx, domain.AuditManualRelease, bt, "", actor, fmt.Sprintf("manually released %d units", n))
	return entry, nil
}

// LowStock lists entries under the threshold, quantity ascending, annotated
// with a severity. Non-positive thresholds fall back to the defaults.
func (s *LedgerService) LowStock(ctx context.Context, threshold, critical int) ([]domain.StockAlert, error) {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	if critical <= 0 {
		critical = DefaultCriticalThreshold
	}
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.StockAlert, 0, len(entries))
	for _, e := range entries {
		if e.Quantity >= threshold {
			continue
		}
		severity := domain.StockLow
		if e.Quantity < critical {
			severity = domain.StockCritical
		}
		alerts = append(alerts, domain.StockAlert{
			BloodType:   e.BloodType,
			Quantity:    e.Quantity,
			Severity:    severity,
			LastUpdated: e.LastUpdated,
		})
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Quantity != alerts[j].Quantity {
			return alerts[i].Quantity < alerts[j].Quantity
		}
		return alerts[i].BloodType < alerts[j].BloodType
	})
	return alerts, nil
}

// Reconcile overwrites the counters for a blood type and clears the
// inconsistency flag. Admin only; the overwrite is audited.
func (s *LedgerService) Reconcile(ctx context.Context, bt domain.BloodType, quantity, reserved int, actor domain.Actor) (domain.InventoryEntry, error) {
	if !actor.IsAdmin() {
		return domain.InventoryEntry{}, domain.ErrForbidden
	}
	if !bt.Valid() {
		return domain.InventoryEntry{}, domain.Validationf("invalid blood type %q", string(bt))
	}
	if quantity < 0 || reserved < 0 || reserved > quantity {
		return domain.InventoryEntry{}, domain.Validationf("reconciled counters must satisfy 0 <= reserved <= quantity")
	}

	entry, err := s.repo.Mutate(ctx, bt, true, func(e *domain.InventoryEntry) error {
		e.Quantity = quantity
		e.Reserved = reserved
		e.Inconsistent = false
		s.stamp(e, actor)
		return nil
	})
	if err != nil {
		return domain.InventoryEntry{}, err
	}

	metrics.InconsistentBloodTypes.WithLabelValues(string(bt)).Set(0)
	s.appendAudit(ctx, domain.AuditReconciliation, bt, "",
		actor, fmt.Sprintf("counters reset to quantity=%d reserved=%d", quantity, reserved))
	return entry, nil
}

// MarkInconsistent flags a blood type whose counters may no longer match the
// stored requests, after a write that could not be rolled back. The flag
// blocks further transitions until Reconcile clears it.
func (s *LedgerService) MarkInconsistent(ctx context.Context, bt domain.BloodType, requestID, detail string, actor domain.Actor) {
	_, err := s.repo.Mutate(ctx, bt, true, func(e *domain.InventoryEntry) error {
		e.Inconsistent = true
		s.stamp(e, actor)
		return nil
	})
	if err != nil {
		// Nothing left to do but record the attempt; the audit row below
		// still captures the damage for the operator.
		detail = detail + "; flagging failed: " + err.Error()
	}
	metrics.InconsistentBloodTypes.WithLabelValues(string(bt)).Set(1)
	s.appendAudit(ctx, domain.AuditCompensation, bt, requestID, actor, detail)
}

func (s *LedgerService) appendAudit(ctx context.Context, action domain.AuditAction, bt domain.BloodType, requestID string, actor domain.Actor, detail string) {
	rec := domain.AuditRecord{
		ID:        s.newID(),
		At:        s.clock.Now(),
		Actor:     actor.ID,
		Action:    action,
		BloodType: bt,
		RequestID: requestID,
		Detail:    detail,
	}
	// Audit failures must not mask the primary outcome.
	_ = s.audit.Append(ctx, rec)
}

func (s *LedgerService) stamp(e *domain.InventoryEntry, actor domain.Actor) {
	e.LastUpdated = s.clock.Now()
	e.UpdatedBy = actor.ID
}

func validateUnits(bt domain.BloodType, n int) error {
	if !bt.Valid() {
		return domain.Validationf("invalid blood type %q", string(bt))
	}
	if n < 1 {
		return domain.Validationf("unit count must be at least 1")
	}
	return nil
}
