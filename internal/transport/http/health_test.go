package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hemovault/bloodbank/internal/domain"
)

type stubInventoryLister struct {
	entries []domain.InventoryEntry
	err     error
}

func (s *stubInventoryLister) List(_ context.Context) ([]domain.InventoryEntry, error) {
	return s.entries, s.err
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	t.Run("ok when nothing is flagged", func(t *testing.T) {
		t.Parallel()
		lister := &stubInventoryLister{entries: []domain.InventoryEntry{
			{BloodType: domain.BloodAPos, Quantity: 10},
		}}
		rec := httptest.NewRecorder()
		HandleHealth(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
			t.Fatalf("expected ok status in %q", rec.Body.String())
		}
	})

	t.Run("degraded when a blood type awaits reconciliation", func(t *testing.T) {
		t.Parallel()
		lister := &stubInventoryLister{entries: []domain.InventoryEntry{
			{BloodType: domain.BloodAPos, Quantity: 10},
			{BloodType: domain.BloodONeg, Quantity: 3, Inconsistent: true},
		}}
		rec := httptest.NewRecorder()
		HandleHealth(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, `"status":"degraded"`) || !strings.Contains(body, `"O-"`) {
			t.Fatalf("expected degraded with O- listed, got %q", body)
		}
	})

	t.Run("unavailable when storage fails", func(t *testing.T) {
		t.Parallel()
		lister := &stubInventoryLister{err: errors.New("connection refused")}
		rec := httptest.NewRecorder()
		HandleHealth(lister).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})
}
