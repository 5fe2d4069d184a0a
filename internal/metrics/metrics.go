// Package metrics exposes the engine's Prometheus collectors. Everything is
// registered on the default registry and served by promhttp in cmd/api.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hemovault/bloodbank/internal/domain"
)

var (
	// TransitionsTotal counts request transition attempts by target state
	// and outcome (ok or the stable error code).
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "request_transitions_total",
		Help:      "Request status transition attempts.",
	}, []string{"to", "outcome"})

	// LedgerOpsTotal counts ledger mutations by operation and outcome.
	LedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodbank",
		Name:      "ledger_operations_total",
		Help:      "Inventory ledger mutations.",
	}, []string{"op", "outcome"})

	// InconsistentBloodTypes tracks blood types flagged for reconciliation.
	InconsistentBloodTypes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bloodbank",
		Name:      "inconsistent_blood_types",
		Help:      "Blood types refusing transitions until reconciled (1 = flagged).",
	}, []string{"blood_type"})
)

// Outcome renders an error as a low-cardinality metric label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := domain.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
