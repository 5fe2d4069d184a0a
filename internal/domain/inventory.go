package domain

import "time"

// InventoryEntry holds the stock counters for one blood type. Units are
// fungible within a blood type; there is exactly one entry per type.
//
// Invariant: 0 <= Reserved <= Quantity at every observable point.
type InventoryEntry struct {
	BloodType    BloodType
	Quantity     int
	Reserved     int
	ExpiryAlerts []ExpiryAlert
	// Inconsistent is set when a failed write could not be rolled back and
	// the counters can no longer be trusted. Transitions touching this blood
	// type are refused until an admin reconciles.
	Inconsistent bool
	LastUpdated  time.Time
	UpdatedBy    string
}

// Available is the number of units a new reservation may claim.
func (e InventoryEntry) Available() int {
	return e.Quantity - e.Reserved
}

// ExpiryAlert is a pre-computed expiry notice surfaced verbatim; the engine
// never derives or mutates these.
type ExpiryAlert struct {
	UnitID     string    `json:"unitId"`
	ExpiryDate time.Time `json:"expiryDate"`
	AlertLevel string    `json:"alertLevel"`
}

// UpdateOp is the tagged variant for inventory quantity updates.
type UpdateOp int

const (
	OpSet UpdateOp = iota
	OpAdd
	OpSubtract
)

// ParseUpdateOp rejects unknown operation tags at the boundary.
func ParseUpdateOp(raw string) (UpdateOp, error) {
	switch raw {
	case "set", "":
		return OpSet, nil
	case "add":
		return OpAdd, nil
	case "subtract":
		return OpSubtract, nil
	}
	return 0, Validationf("unknown inventory operation %q", raw)
}

func (op UpdateOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSubtract:
		return "subtract"
	default:
		return "set"
	}
}

// StockSeverity classifies a low-stock alert.
type StockSeverity string

const (
	StockLow      StockSeverity = "low"
	StockCritical StockSeverity = "critical"
)

// StockAlert annotates an entry whose quantity fell under the alert threshold.
type StockAlert struct {
	BloodType   BloodType
	Quantity    int
	Severity    StockSeverity
	LastUpdated time.Time
}
