package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hemovault/bloodbank/internal/domain"
)

// InventoryService is the slice of the ledger the inventory handlers need.
type InventoryService interface {
	List(ctx context.Context) ([]domain.InventoryEntry, error)
	Update(ctx context.Context, bt domain.BloodType, quantity int, op domain.UpdateOp, actor domain.Actor) (domain.InventoryEntry, error)
	ManualReserve(ctx context.Context, bt domain.BloodType, n int, actor domain.Actor) (domain.InventoryEntry, error)
	ManualRelease(ctx context.Context, bt domain.BloodType, n int, actor domain.Actor) (domain.InventoryEntry, error)
	Reconcile(ctx context.Context, bt domain.BloodType, quantity, reserved int, actor domain.Actor) (domain.InventoryEntry, error)
	LowStock(ctx context.Context, threshold, critical int) ([]domain.StockAlert, error)
}

type inventoryEntryResponse struct {
	BloodType    domain.BloodType     `json:"bloodType"`
	Quantity     int                  `json:"quantity"`
	Reserved     int                  `json:"reserved"`
	Available    int                  `json:"available"`
	ExpiryAlerts []domain.ExpiryAlert `json:"expiryAlerts,omitempty"`
	Inconsistent bool                 `json:"inconsistent,omitempty"`
	LastUpdated  time.Time            `json:"lastUpdated"`
	UpdatedBy    string               `json:"updatedBy,omitempty"`
}

func toEntryResponse(e domain.InventoryEntry) inventoryEntryResponse {
	return inventoryEntryResponse{
		BloodType:    e.BloodType,
		Quantity:     e.Quantity,
		Reserved:     e.Reserved,
		Available:    e.Available(),
		ExpiryAlerts: e.ExpiryAlerts,
		Inconsistent: e.Inconsistent,
		LastUpdated:  e.LastUpdated,
		UpdatedBy:    e.UpdatedBy,
	}
}

// HandleInventory serves GET /inventory.
func HandleInventory(svc InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, errorResponse{Code: "VALIDATION", Message: "method not allowed"})
			return
		}
		entries, err := svc.List(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]inventoryEntryResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, toEntryResponse(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"inventory": out})
	}
}

// HandleInventoryOps serves the /inventory/ subtree: alerts, manual
// reserve/release, per-blood-type updates, and reconciliation.
func HandleInventoryOps(svc InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/inventory/")
		switch {
		case rest == "alerts":
			handleLowStock(svc, w, r)
		case rest == "reserve":
			handleManualOp(svc.ManualReserve, w, r)
		case rest == "release":
			handleManualOp(svc.ManualRelease, w, r)
		case strings.HasSuffix(rest, "/reconcile"):
			handleReconcile(svc, strings.TrimSuffix(rest, "/reconcile"), w, r)
		case rest != "" && !strings.Contains(rest, "/"):
			handleUpdate(svc, rest, w, r)
		default:
			writeError(w, http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "not found"})
		}
	}
}

func handleLowStock(svc InventoryService, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errorResponse{Code: "VALIDATION", Message: "method not allowed"})
		return
	}
	threshold, err := queryInt(r, "threshold", 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	critical, err := queryInt(r, "criticalThreshold", 0)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	alerts, err := svc.LowStock(r.Context(), threshold, critical)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	type alertResponse struct {
		BloodType   domain.BloodType     `json:"bloodType"`
		Quantity    int                  `json:"currentQuantity"`
		Status      domain.StockSeverity `json:"status"`
		LastUpdated time.Time            `json:"lastUpdated"`
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertResponse{
			BloodType:   a.BloodType,
			Quantity:    a.Quantity,
			Status:      a.Severity,
			LastUpdated: a.LastUpdated,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": out})
}

type manualOpRequest struct {
	BloodType string `json:"bloodType"`
	Quantity  int    `json:"quantity"`
}

func handleManualOp(op func(context.Context, domain.BloodType, int, domain.Actor) (domain.InventoryEntry, error), w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errorResponse{Code: "VALIDATION", Message: "method not allowed"})
		return
	}
	var req manualOpRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	bt, err := domain.ParseBloodType(req.BloodType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entry, err := op(r.Context(), bt, req.Quantity, actorFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": toEntryResponse(entry)})
}

type updateInventoryRequest struct {
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation"`
}

func handleUpdate(svc InventoryService, rawType string, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, errorResponse{Code: "VALIDATION", Message: "method not allowed"})
		return
	}
	bt, err := domain.ParseBloodType(rawType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req updateInventoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	op, err := domain.ParseUpdateOp(req.Operation)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	actor := actorFromRequest(r)
	if !actor.CanProcess() {
		writeDomainError(w, domain.ErrForbidden)
		return
	}
	entry, err := svc.Update(r.Context(), bt, req.Quantity, op, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": toEntryResponse(entry)})
}

type reconcileRequest struct {
	Quantity int `json:"quantity"`
	Reserved int `json:"reserved"`
}

func handleReconcile(svc InventoryService, rawType string, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errorResponse{Code: "VALIDATION", Message: "method not allowed"})
		return
	}
	bt, err := domain.ParseBloodType(rawType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req reconcileRequest
	if err := decodeBody(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	entry, err := svc.Reconcile(r.Context(), bt, req.Quantity, req.Reserved, actorFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": toEntryResponse(entry)})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validationf("invalid %s %q", key, raw)
	}
	return n, nil
}
