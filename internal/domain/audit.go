package domain

import "time"

// AuditAction labels an append-only audit record.
type AuditAction string

const (
	AuditManualReserve  AuditAction = "manual_reserve"
	AuditManualRelease  AuditAction = "manual_release"
	AuditCompensation   AuditAction = "compensation_failed"
	AuditReconciliation AuditAction = "reconciliation"
)

// AuditRecord captures an operator-relevant ledger event. Records are
// append-only; there is no update or delete path.
type AuditRecord struct {
	ID        string
	At        time.Time
	Actor     string
	Action    AuditAction
	BloodType BloodType
	RequestID string
	Detail    string
}
