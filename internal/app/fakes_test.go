package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hemovault/bloodbank/internal/domain"
)

// fakeInventoryRepo is a map-backed inventory store. mutateErrs is a queue
// of injected outcomes: each Mutate call pops one entry and fails with it
// when non-nil.
type fakeInventoryRepo struct {
	entries    map[domain.BloodType]domain.InventoryEntry
	getErr     error
	mutateErrs []error
	mutations  int
}

func newFakeInventoryRepo(entries ...domain.InventoryEntry) *fakeInventoryRepo {
	m := make(map[domain.BloodType]domain.InventoryEntry)
	for _, e := range entries {
		m[e.BloodType] = e
	}
	return &fakeInventoryRepo{entries: m}
}

func (f *fakeInventoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeInventoryRepo) List(_ context.Context) ([]domain.InventoryEntry, error) {
	out := make([]domain.InventoryEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BloodType < out[j].BloodType })
	return out, nil
}

func (f *fakeInventoryRepo) Get(_ context.Context, bt domain.BloodType) (domain.InventoryEntry, error) {
	if f.getErr != nil {
		return domain.InventoryEntry{}, f.getErr
	}
	e, ok := f.entries[bt]
	if !ok {
		return domain.InventoryEntry{}, domain.NotFoundf("inventory for blood type %s", bt)
	}
	return e, nil
}

func (f *fakeInventoryRepo) Mutate(_ context.Context, bt domain.BloodType, create bool, fn func(*domain.InventoryEntry) error) (domain.InventoryEntry, error) {
	if len(f.mutateErrs) > 0 {
		err := f.mutateErrs[0]
		f.mutateErrs = f.mutateErrs[1:]
		if err != nil {
			return domain.InventoryEntry{}, err
		}
	}

	e, ok := f.entries[bt]
	if !ok {
		if !create {
			return domain.InventoryEntry{}, domain.NotFoundf("inventory for blood type %s", bt)
		}
		e = domain.InventoryEntry{BloodType: bt}
	}
	if err := fn(&e); err != nil {
		return domain.InventoryEntry{}, err
	}
	f.entries[bt] = e
	f.mutations++
	return e, nil
}

// fakeRequestRepo stores requests with version checking. saveErrs is a
// queue of injected Save outcomes, popped before the version check.
type fakeRequestRepo struct {
	requests map[string]domain.Request
	saveErrs []error
	saves    int
}

func newFakeRequestRepo(requests ...domain.Request) *fakeRequestRepo {
	m := make(map[string]domain.Request)
	for _, r := range requests {
		if r.Version == 0 {
			r.Version = 1
		}
		m[r.ID] = r
	}
	return &fakeRequestRepo{requests: m}
}

func (f *fakeRequestRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeRequestRepo) Create(_ context.Context, r domain.Request) error {
	if _, ok := f.requests[r.ID]; ok {
		return domain.Validationf("request %s already exists", r.ID)
	}
	f.requests[r.ID] = r
	return nil
}

func (f *fakeRequestRepo) Get(_ context.Context, id string) (domain.Request, error) {
	r, ok := f.requests[id]
	if !ok {
		return domain.Request{}, domain.NotFoundf("request %s", id)
	}
	return r, nil
}

func (f *fakeRequestRepo) Save(_ context.Context, r domain.Request) (domain.Request, error) {
	if len(f.saveErrs) > 0 {
		err := f.saveErrs[0]
		f.saveErrs = f.saveErrs[1:]
		if err != nil {
			return domain.Request{}, err
		}
	}

	current, ok := f.requests[r.ID]
	if !ok {
		return domain.Request{}, domain.NotFoundf("request %s", r.ID)
	}
	if current.Version != r.Version {
		return domain.Request{}, domain.ErrStaleWrite
	}
	r.Version++
	f.requests[r.ID] = r
	f.saves++
	return r, nil
}

func (f *fakeRequestRepo) List(_ context.Context, filter domain.RequestFilter, p domain.Page, _ domain.Sort) ([]domain.Request, int, error) {
	var out []domain.Request
	for _, r := range f.requests {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (f *fakeRequestRepo) Urgent(_ context.Context) ([]domain.Request, error) {
	var out []domain.Request
	for _, r := range f.requests {
		open := r.Status == domain.StatusPending || r.Status == domain.StatusApproved
		hot := r.Urgency == domain.UrgencyHigh || r.Urgency == domain.UrgencyCritical
		if open && hot {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) Overdue(_ context.Context, now time.Time) ([]domain.Request, error) {
	var out []domain.Request
	for _, r := range f.requests {
		if r.Overdue(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeAuditRepo struct {
	records []domain.AuditRecord
}

func (f *fakeAuditRepo) Append(_ context.Context, rec domain.AuditRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}
