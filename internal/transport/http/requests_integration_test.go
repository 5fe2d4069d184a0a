package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hemovault/bloodbank/internal/app"
	"github.com/hemovault/bloodbank/internal/clock"
	"github.com/hemovault/bloodbank/internal/storage/postgres"
	"github.com/hemovault/bloodbank/internal/testutil"
)

func newIntegrationServer(t *testing.T) *httptest.Server {
	t.Helper()
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	clk := clock.NewSystem()
	ledger := app.NewLedgerService(postgres.NewInventoryRepository(pool), postgres.NewAuditRepository(pool), clk, nil)
	coord := app.NewCoordinator(postgres.NewRequestRepository(pool), ledger, clk, nil)

	mux := http.NewServeMux()
	mux.Handle("/inventory", HandleInventory(ledger))
	mux.Handle("/inventory/", HandleInventoryOps(ledger))
	mux.Handle("/requests", HandleRequests(coord))
	mux.Handle("/requests/", HandleRequestOps(coord))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor-Id", "staff-1")
	req.Header.Set("X-Actor-Role", "staff")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res, payload
}

func TestRequestLifecycle_HTTPIntegration(t *testing.T) {
	srv := newIntegrationServer(t)

	// Stock 10 units of O+.
	res, _ := doJSON(t, http.MethodPut, srv.URL+"/inventory/O+", `{"quantity": 10, "operation": "set"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stock inventory: status %d", res.StatusCode)
	}

	// Create a request for 3 units.
	res, payload := doJSON(t, http.MethodPost, srv.URL+"/requests", `{
		"patientName": "Jane Roe",
		"hospitalName": "General Hospital",
		"contactPerson": "Dr. Smith",
		"contactPhone": "555-0100",
		"bloodType": "O+",
		"quantity": 3,
		"urgency": "high",
		"requiredBy": "2030-01-01T00:00:00Z"
	}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request: status %d: %v", res.StatusCode, payload)
	}
	created := payload["request"].(map[string]any)
	id := created["id"].(string)

	// Approve reserves the units.
	res, payload = doJSON(t, http.MethodPut, fmt.Sprintf("%s/requests/%s/status", srv.URL, id), `{"status": "approved"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: status %d: %v", res.StatusCode, payload)
	}

	res, payload = doJSON(t, http.MethodGet, srv.URL+"/inventory", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list inventory: status %d", res.StatusCode)
	}
	entries := payload["inventory"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0].(map[string]any)
	if entry["reserved"].(float64) != 3 || entry["available"].(float64) != 7 {
		t.Fatalf("after approve: %v", entry)
	}

	// Fulfil consumes them.
	res, payload = doJSON(t, http.MethodPut, fmt.Sprintf("%s/requests/%s/status", srv.URL, id), `{"status": "fulfilled"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("fulfil: status %d: %v", res.StatusCode, payload)
	}
	fulfilled := payload["request"].(map[string]any)
	if fulfilled["fulfilledDate"] == nil {
		t.Fatalf("expected a fulfilledDate, got %v", fulfilled)
	}

	res, payload = doJSON(t, http.MethodGet, srv.URL+"/inventory", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list inventory: status %d", res.StatusCode)
	}
	entry = payload["inventory"].([]any)[0].(map[string]any)
	if entry["quantity"].(float64) != 7 || entry["reserved"].(float64) != 0 {
		t.Fatalf("after fulfil: %v", entry)
	}

	// A terminal request refuses further transitions.
	res, payload = doJSON(t, http.MethodPut, fmt.Sprintf("%s/requests/%s/status", srv.URL, id), `{"status": "cancelled"}`)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("transition after fulfil: status %d: %v", res.StatusCode, payload)
	}
}

func TestInsufficientStock_HTTPIntegration(t *testing.T) {
	srv := newIntegrationServer(t)

	res, _ := doJSON(t, http.MethodPut, srv.URL+"/inventory/AB-", `{"quantity": 2, "operation": "set"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stock inventory: status %d", res.StatusCode)
	}

	res, payload := doJSON(t, http.MethodPost, srv.URL+"/requests", `{
		"patientName": "Jane Roe",
		"hospitalName": "General Hospital",
		"contactPerson": "Dr. Smith",
		"contactPhone": "555-0100",
		"bloodType": "AB-",
		"quantity": 5,
		"requiredBy": "2030-01-01T00:00:00Z"
	}`)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request: status %d: %v", res.StatusCode, payload)
	}
	id := payload["request"].(map[string]any)["id"].(string)

	res, payload = doJSON(t, http.MethodPut, fmt.Sprintf("%s/requests/%s/status", srv.URL, id), `{"status": "approved"}`)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %v", res.StatusCode, payload)
	}
	if payload["code"] != "INSUFFICIENT_STOCK" {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", payload)
	}

	// The request is still pending and the stock untouched.
	res, payload = doJSON(t, http.MethodGet, fmt.Sprintf("%s/requests/%s", srv.URL, id), "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get request: status %d", res.StatusCode)
	}
	if payload["request"].(map[string]any)["status"] != "pending" {
		t.Fatalf("expected pending, got %v", payload)
	}
}
