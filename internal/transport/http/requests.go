package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hemovault/bloodbank/internal/app"
	"github.com/hemovault/bloodbank/internal/domain"
)

// RequestService is the slice of the coordinator the request handlers need.
type RequestService interface {
	CreateRequest(ctx context.Context, in app.CreateRequestInput, actor domain.Actor) (domain.Request, error)
	GetRequest(ctx context.Context, id string) (domain.Request, error)
	ListRequests(ctx context.Context, f domain.RequestFilter, p domain.Page, s domain.Sort) ([]domain.Request, int, error)
	Transition(ctx context.Context, id string, target domain.RequestStatus, notes string, actor domain.Actor) (domain.Request, error)
	UrgentRequests(ctx context.Context) ([]domain.Request, error)
	OverdueRequests(ctx context.Context) ([]domain.Request, error)
}

type requestResponse struct {
	ID            string               `json:"id"`
	PatientName   string               `json:"patientName"`
	HospitalName  string               `json:"hospitalName"`
	ContactPerson string               `json:"contactPerson"`
	ContactPhone  string               `json:"contactPhone"`
	ContactEmail  string               `json:"contactEmail,omitempty"`
	BloodType     domain.BloodType     `json:"bloodType"`
	Quantity      int                  `json:"quantity"`
	Urgency       domain.Urgency       `json:"urgency"`
	Status        domain.RequestStatus `json:"status"`
	RequestDate   time.Time            `json:"requestDate"`
	RequiredBy    time.Time            `json:"requiredBy"`
	FulfilledDate *time.Time           `json:"fulfilledDate,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	ProcessedBy   string               `json:"processedBy,omitempty"`
	IsOverdue     bool                 `json:"isOverdue"`
}

func toRequestResponse(r domain.Request, now time.Time) requestResponse {
	return requestResponse{
		ID:            r.ID,
		PatientName:   r.PatientName,
		HospitalName:  r.HospitalName,
		ContactPerson: r.ContactPerson,
		ContactPhone:  r.ContactPhone,
		ContactEmail:  r.ContactEmail,
		BloodType:     r.BloodType,
		Quantity:      r.Quantity,
		Urgency:       r.Urgency,
		Status:        r.Status,
		RequestDate:   r.RequestDate,
		RequiredBy:    r.RequiredBy,
		FulfilledDate: r.FulfilledDate,
		Notes:         r.Notes,
		ProcessedBy:   r.ProcessedBy,
		IsOverdue:     r.Overdue(now),
	}
}

func toRequestResponses(rs []domain.Request, now time.Time) []requestResponse {
	out := make([]requestResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRequestResponse(r, now))
	}
	return out
}

// HandleRequests serves /requests: POST creates, GET lists.
func HandleRequests(svc RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleCreateRequest(svc, w, r)
		case http.MethodGet:
			handleListRequests(svc, w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, errorResponse{Code: "VALIDATION", Message: "method not allowed"})
		}
	}
}

type createRequestBody struct {
	PatientName   string    `json:"patientName"`
	HospitalName  string    `json:"hospitalName"`
	ContactPerson string    `json:"contactPerson"`
	ContactPhone  string    `json:"contactPhone"`
	ContactEmail  string    `json:"contactEmail"`
	BloodType     string    `json:"bloodType"`
	Quantity      int       `json:"quantity"`
	Urgency       string    `json:"urgency"`
	RequiredBy    time.Time `json:"requiredBy"`
	Notes         string    `json:"notes"`
}

func handleCreateRequest(svc RequestService, w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	urgency, err := domain.ParseUrgency(body.Urgency)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	req, err := svc.CreateRequest(r.Context(), app.CreateRequestInput{
		PatientName:   body.PatientName,
		HospitalName:  body.HospitalName,
		ContactPerson: body.ContactPerson,
		ContactPhone:  body.ContactPhone,
		ContactEmail:  body.ContactEmail,
		BloodType:     domain.BloodType(body.BloodType),
		Quantity:      body.Quantity,
		Urgency:       urgency,
		RequiredBy:    body.RequiredBy,
		Notes:         body.Notes,
	}, actorFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"request": toRequestResponse(req, time.Now().UTC())})
}

func handleListRequests(svc RequestService, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter domain.RequestFilter
	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseRequestStatus(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		filter.Status = status
	}
	if raw := q.Get("urgency"); raw != "" {
		urgency, err := domain.ParseUrgency(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		filter.Urgency = urgency
	}
	if raw := q.Get("bloodType"); raw != "" {
		bt, err := domain.ParseBloodType(raw)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		filter.BloodType = bt
	}

	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	field, err := domain.ParseSortField(q.Get("sortBy"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	order := domain.Sort{Field: field, Descending: q.Get("order") != "asc"}

	requests, total, err := svc.ListRequests(r.Context(), filter, domain.Page{Number: page, Size: limit}, order)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	p := domain.Page{Number: page, Size: limit}.Normalize()
	pages := (total + p.Size - 1) / p.Size
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": toRequestResponses(requests, time.Now().UTC()),
		"pagination": map[string]int{
			"current": p.Number,
			"pages":   pages,
			"total":   total,
		},
	})
}

// HandleRequestOps serves the /requests/ subtree: reads by id, status
// transitions, and the urgent/overdue views.
func HandleRequestOps(svc RequestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/requests/")
		switch {
		case rest == "urgent/list":
			handleRequestView(svc.UrgentRequests, w, r)
		case rest == "overdue/list":
			handleRequestView(svc.OverdueRequests, w, r)
		case strings.HasSuffix(rest, "/status"):
			handleTransition(svc, strings.TrimSuffix(rest, "/status"), w, r)
		case rest != "" && !strings.Contains(rest, "/"):
			handleGetRequest(svc, rest, w, r)
		default:
			writeError(w, http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "not found"})
		}
	}
}

func handleRequestView(view func(context.Context) ([]domain.Request, error), w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errorResponse{Code: "VALIDATION", Message: "method not allowed"})
		return
	}
	requests, err := view(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": toRequestResponses(requests, time.Now().UTC())})
}

func handleGetRequest(svc RequestService, id string, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errorResponse{Code: "VALIDATION", Message: "method not allowed"})
		return
	}
	req, err := svc.GetRequest(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": toRequestResponse(req, time.Now().UTC())})
}

type transitionBody struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func handleTransition(svc RequestService, id string, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, errorResponse{Code: "VALIDATION", Message: "method not allowed"})
		return
	}
	var body transitionBody
	if err := decodeBody(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	target, err := domain.ParseRequestStatus(body.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	req, err := svc.Transition(r.Context(), id, target, body.Notes, actorFromRequest(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": toRequestResponse(req, time.Now().UTC())})
}
