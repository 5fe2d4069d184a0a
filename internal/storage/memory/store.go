// Package memory is an in-process store used for tests and database-free
// runs. Inventory mutations are serialized per blood type, requests use
// optimistic versioning, and WithTx is a passthrough: the unit of work is
// NOT atomic, so the coordinator's write ordering is live here.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hemovault/bloodbank/internal/app"
	"github.com/hemovault/bloodbank/internal/domain"
)

type invSlot struct {
	mu     sync.Mutex
	exists bool
	entry  domain.InventoryEntry
}

// Store holds the shared state behind the three repository facades.
type Store struct {
	inventory map[domain.BloodType]*invSlot

	mu       sync.Mutex
	requests map[string]domain.Request
	audit    []domain.AuditRecord
}

func NewStore() *Store {
	inv := make(map[domain.BloodType]*invSlot, len(domain.BloodTypes))
	for _, bt := range domain.BloodTypes {
		inv[bt] = &invSlot{entry: domain.InventoryEntry{BloodType: bt}}
	}
	return &Store{
		inventory: inv,
		requests:  make(map[string]domain.Request),
	}
}

// Inventory returns the inventory repository view of the store.
func (s *Store) Inventory() *InventoryRepository {
	return &InventoryRepository{store: s}
}

// Requests returns the request repository view of the store.
func (s *Store) Requests() *RequestRepository {
	return &RequestRepository{store: s}
}

// Audit returns the audit repository view of the store.
func (s *Store) Audit() *AuditRepository {
	return &AuditRepository{store: s}
}

// AuditRecords snapshots the audit log, oldest first.
func (s *Store) AuditRecords() []domain.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditRecord, len(s.audit))
	copy(out, s.audit)
	return out
}

type InventoryRepository struct {
	store *Store
}

var _ app.InventoryRepository = (*InventoryRepository)(nil)

// WithTx runs fn directly; this store has no transactions.
func (r *InventoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *InventoryRepository) List(ctx context.Context) ([]domain.InventoryEntry, error) {
	entries := make([]domain.InventoryEntry, 0, len(r.store.inventory))
	for _, bt := range domain.BloodTypes {
		slot := r.store.inventory[bt]
		slot.mu.Lock()
		if slot.exists {
			entries = append(entries, copyEntry(slot.entry))
		}
		slot.mu.Unlock()
	}
	return entries, nil
}

func (r *InventoryRepository) Get(ctx context.Context, bt domain.BloodType) (domain.InventoryEntry, error) {
	slot, ok := r.store.inventory[bt]
	if !ok {
		return domain.InventoryEntry{}, domain.NotFoundf("inventory for blood type %s", bt)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if !slot.exists {
		return domain.InventoryEntry{}, domain.NotFoundf("inventory for blood type %s", bt)
	}
	return copyEntry(slot.entry), nil
}

// Mutate holds the blood type's lock across load, callback, and store, which
// makes concurrent mutations of one blood type linearizable.
func (r *InventoryRepository) Mutate(ctx context.Context, bt domain.BloodType, create bool, fn func(*domain.InventoryEntry) error) (domain.InventoryEntry, error) {
	slot, ok := r.store.inventory[bt]
	if !ok {
		return domain.InventoryEntry{}, domain.NotFoundf("inventory for blood type %s", bt)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if !slot.exists && !create {
		return domain.InventoryEntry{}, domain.NotFoundf("inventory for blood type %s", bt)
	}

	entry := copyEntry(slot.entry)
	if !slot.exists {
		entry.BloodType = bt
	}
	if err := fn(&entry); err != nil {
		return domain.InventoryEntry{}, err
	}
	slot.entry = copyEntry(entry)
	slot.exists = true
	return entry, nil
}

type RequestRepository struct {
	store *Store
}

var _ app.RequestRepository = (*RequestRepository)(nil)

// WithTx runs fn directly; this store has no transactions.
func (r *RequestRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *RequestRepository) Create(ctx context.Context, req domain.Request) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.requests[req.ID]; ok {
		return domain.Validationf("request %s already exists", req.ID)
	}
	r.store.requests[req.ID] = copyRequest(req)
	return nil
}

func (r *RequestRepository) Get(ctx context.Context, id string) (domain.Request, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	req, ok := r.store.requests[id]
	if !ok {
		return domain.Request{}, domain.NotFoundf("request %s", id)
	}
	return copyRequest(req), nil
}

// Save persists req if its version still matches the stored row, then bumps
// the version.
func (r *RequestRepository) Save(ctx context.Context, req domain.Request) (domain.Request, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	current, ok := r.store.requests[req.ID]
	if !ok {
		return domain.Request{}, domain.NotFoundf("request %s", req.ID)
	}
	if current.Version != req.Version {
		return domain.Request{}, domain.ErrStaleWrite
	}
	req.Version++
	r.store.requests[req.ID] = copyRequest(req)
	return copyRequest(req), nil
}

func (r *RequestRepository) List(ctx context.Context, f domain.RequestFilter, p domain.Page, ord domain.Sort) ([]domain.Request, int, error) {
	r.store.mu.Lock()
	matched := make([]domain.Request, 0, len(r.store.requests))
	for _, req := range r.store.requests {
		if f.Matches(req) {
			matched = append(matched, copyRequest(req))
		}
	}
	r.store.mu.Unlock()

	sortRequests(matched, ord)

	p = p.Normalize()
	total := len(matched)
	start := (p.Number - 1) * p.Size
	if start >= total {
		return []domain.Request{}, total, nil
	}
	end := start + p.Size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *RequestRepository) Urgent(ctx context.Context) ([]domain.Request, error) {
	r.store.mu.Lock()
	out := make([]domain.Request, 0)
	for _, req := range r.store.requests {
		open := req.Status == domain.StatusPending || req.Status == domain.StatusApproved
		hot := req.Urgency == domain.UrgencyHigh || req.Urgency == domain.UrgencyCritical
		if open && hot {
			out = append(out, copyRequest(req))
		}
	}
	r.store.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Urgency.Rank() != out[j].Urgency.Rank() {
			return out[i].Urgency.Rank() > out[j].Urgency.Rank()
		}
		return out[i].RequiredBy.Before(out[j].RequiredBy)
	})
	return out, nil
}

func (r *RequestRepository) Overdue(ctx context.Context, now time.Time) ([]domain.Request, error) {
	r.store.mu.Lock()
	out := make([]domain.Request, 0)
	for _, req := range r.store.requests {
		if req.Overdue(now) {
			out = append(out, copyRequest(req))
		}
	}
	r.store.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RequiredBy.Before(out[j].RequiredBy)
	})
	return out, nil
}

type AuditRepository struct {
	store *Store
}

var _ app.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Append(ctx context.Context, rec domain.AuditRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.audit = append(r.store.audit, rec)
	return nil
}

func sortRequests(rs []domain.Request, ord domain.Sort) {
	less := func(a, b domain.Request) bool {
		switch ord.Field {
		case domain.SortByRequiredBy:
			return a.RequiredBy.Before(b.RequiredBy)
		case domain.SortByUrgency:
			return a.Urgency.Rank() < b.Urgency.Rank()
		case domain.SortByQuantity:
			return a.Quantity < b.Quantity
		case domain.SortByStatus:
			return a.Status < b.Status
		case domain.SortByBloodType:
			return a.BloodType < b.BloodType
		default:
			return a.RequestDate.Before(b.RequestDate)
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if ord.Descending {
			return less(rs[j], rs[i])
		}
		return less(rs[i], rs[j])
	})
}

func copyEntry(e domain.InventoryEntry) domain.InventoryEntry {
	out := e
	if e.ExpiryAlerts != nil {
		out.ExpiryAlerts = append([]domain.ExpiryAlert(nil), e.ExpiryAlerts...)
	}
	return out
}

func copyRequest(r domain.Request) domain.Request {
	out := r
	if r.FulfilledDate != nil {
		t := *r.FulfilledDate
		out.FulfilledDate = &t
	}
	return out
}
