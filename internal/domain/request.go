package domain

import (
	"regexp"
	"time"
)

// RequestStatus is the lifecycle state of a blood request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusFulfilled RequestStatus = "fulfilled"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
)

// ParseRequestStatus validates a raw status string.
func ParseRequestStatus(raw string) (RequestStatus, error) {
	switch s := RequestStatus(raw); s {
	case StatusPending, StatusApproved, StatusFulfilled, StatusRejected, StatusCancelled:
		return s, nil
	}
	return "", Validationf("invalid status %q", raw)
}

// Terminal reports whether no further transition is permitted.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusFulfilled, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits from -> to.
// Same-state on a non-terminal status is allowed as a no-op.
func CanTransition(from, to RequestStatus) bool {
	if from == to {
		return !from.Terminal()
	}
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected || to == StatusCancelled
	case StatusApproved:
		return to == StatusFulfilled || to == StatusRejected || to == StatusCancelled
	}
	return false
}

// Urgency ranks how quickly a request must be served.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// ParseUrgency validates a raw urgency string; empty defaults to medium.
func ParseUrgency(raw string) (Urgency, error) {
	switch u := Urgency(raw); u {
	case "":
		return UrgencyMedium, nil
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return u, nil
	}
	return "", Validationf("invalid urgency %q", raw)
}

// Rank orders urgencies for descending sorts; critical is highest.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	}
	return 0
}

const maxNotesLen = 500

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// Request is one incoming blood order and its lifecycle state.
type Request struct {
	ID            string
	PatientName   string
	HospitalName  string
	ContactPerson string
	ContactPhone  string
	ContactEmail  string
	BloodType     BloodType
	Quantity      int
	Urgency       Urgency
	Status        RequestStatus
	RequestDate   time.Time
	RequiredBy    time.Time
	FulfilledDate *time.Time
	Notes         string
	ProcessedBy   string
	// Version supports optimistic concurrency; saves carrying a stale
	// version are rejected.
	Version int64
}

// Validate checks the creation-time rules. RequiredBy may be in the past so
// callers can backfill historical requests.
func (r Request) Validate() error {
	if !r.BloodType.Valid() {
		return Validationf("invalid blood type %q", string(r.BloodType))
	}
	if r.Quantity < 1 {
		return Validationf("quantity must be at least 1")
	}
	if r.PatientName == "" {
		return Validationf("patient name is required")
	}
	if r.HospitalName == "" {
		return Validationf("hospital name is required")
	}
	if r.ContactPerson == "" {
		return Validationf("contact person is required")
	}
	if r.ContactPhone == "" {
		return Validationf("contact phone is required")
	}
	if r.ContactEmail != "" && !emailPattern.MatchString(r.ContactEmail) {
		return Validationf("invalid contact email")
	}
	if len(r.Notes) > maxNotesLen {
		return Validationf("notes must be less than %d characters", maxNotesLen)
	}
	if r.RequiredBy.IsZero() {
		return Validationf("required by date is required")
	}
	return nil
}

// Overdue reports whether the deadline passed without fulfillment.
func (r Request) Overdue(now time.Time) bool {
	return now.After(r.RequiredBy) && r.Status != StatusFulfilled
}

// RequestFilter narrows a listing; zero values match everything.
type RequestFilter struct {
	Status    RequestStatus
	Urgency   Urgency
	BloodType BloodType
}

// Matches applies the filter to one request.
func (f RequestFilter) Matches(r Request) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Urgency != "" && r.Urgency != f.Urgency {
		return false
	}
	if f.BloodType != "" && r.BloodType != f.BloodType {
		return false
	}
	return true
}

// Page is a 1-based pagination window.
type Page struct {
	Number int
	Size   int
}

const (
	// DefaultPageSize applies when the caller asks for no size at all.
	DefaultPageSize = 10
	// MaxPageSize caps a single window so one call cannot drag the whole
	// table across the wire.
	MaxPageSize = 100
)

// Normalize clamps the window to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// SortField names a whitelisted request ordering key.
type SortField string

const (
	SortByRequestDate SortField = "requestDate"
	SortByRequiredBy  SortField = "requiredBy"
	SortByUrgency     SortField = "urgency"
	SortByQuantity    SortField = "quantity"
	SortByStatus      SortField = "status"
	SortByBloodType   SortField = "bloodType"
)

// ParseSortField validates an ordering key; empty defaults to requestDate.
func ParseSortField(raw string) (SortField, error) {
	switch f := SortField(raw); f {
	case "":
		return SortByRequestDate, nil
	case SortByRequestDate, SortByRequiredBy, SortByUrgency, SortByQuantity, SortByStatus, SortByBloodType:
		return f, nil
	}
	return "", Validationf("invalid sort field %q", raw)
}

// Sort pairs a field with a direction.
type Sort struct {
	Field      SortField
	Descending bool
}
