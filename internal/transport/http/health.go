package http

import (
	"context"
	"net/http"

	"github.com/hemovault/bloodbank/internal/domain"
)

// InventoryLister is the read-only view the health check needs.
type InventoryLister interface {
	List(ctx context.Context) ([]domain.InventoryEntry, error)
}

// HandleHealth reports liveness and surfaces blood types blocked on
// reconciliation, per the escalation policy for INCONSISTENT.
func HandleHealth(inv InventoryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := inv.List(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}

		var flagged []domain.BloodType
		for _, e := range entries {
			if e.Inconsistent {
				flagged = append(flagged, e.BloodType)
			}
		}

		status := "ok"
		if len(flagged) > 0 {
			status = "degraded"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":                 status,
			"inconsistentBloodTypes": flagged,
		})
	}
}
