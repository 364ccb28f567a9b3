package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/baytaljazeera/eliteslots/internal/app"
	"github.com/baytaljazeera/eliteslots/internal/domain"
)

// ExtensionRequester is the minimal interface needed to open an extension.
type ExtensionRequester interface {
	Request(ctx context.Context, in app.ExtensionRequestInput) (domain.ExtensionRequest, error)
}

// HandleExtensionRequest returns an HTTP handler for opening paid extensions.
func HandleExtensionRequest(svc ExtensionRequester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req extensionRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if key := r.Header.Get(idempotencyHeader); key != "" {
			req.IdempotencyKey = key
		}
		if err := req.validate(); err != nil {
			respondValidationError(w, err)
			return
		}

		ext, err := svc.Request(r.Context(), app.ExtensionRequestInput{
			ReservationID:  req.ReservationID,
			AdditionalDays: req.AdditionalDays,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, renderExtension(ext))
	}
}

// ExtensionPaymentRecorder is the minimal interface needed to record a
// captured extension payment.
type ExtensionPaymentRecorder interface {
	OnPaymentCaptured(ctx context.Context, extensionID, paymentRef string) (domain.ExtensionRequest, error)
}

// HandleExtensionPayment returns an HTTP handler for the payment collaborator's
// capture callback.
func HandleExtensionPayment(svc ExtensionPaymentRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseExtensionPath(r.URL.Path, "payment")
		if !ok {
			http.NotFound(w, r)
			return
		}

		var req extensionPaymentRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.PaymentRef == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "payment_ref is required")
			return
		}

		ext, err := svc.OnPaymentCaptured(r.Context(), id, req.PaymentRef)
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, renderExtension(ext))
	}
}

// ExtensionDecider is the minimal interface needed to resolve an extension.
type ExtensionDecider interface {
	Decide(ctx context.Context, in app.DecideInput) (domain.ExtensionRequest, error)
}

// HandleExtensionDecide returns an HTTP handler for the admin decision.
func HandleExtensionDecide(svc ExtensionDecider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseExtensionPath(r.URL.Path, "decide")
		if !ok {
			http.NotFound(w, r)
			return
		}

		var req extensionDecideRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.AdminRef == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "admin_ref is required")
			return
		}

		ext, err := svc.Decide(r.Context(), app.DecideInput{
			ExtensionID: id,
			Approve:     req.Approve,
			AdminRef:    req.AdminRef,
			Note:        req.Note,
		})
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, renderExtension(ext))
	}
}

// ExtensionCanceller is the minimal interface needed to abandon an unpaid
// extension request.
type ExtensionCanceller interface {
	Cancel(ctx context.Context, extensionID string) (domain.ExtensionRequest, error)
}

// HandleExtensionCancel returns an HTTP handler for abandoning an extension
// before payment.
func HandleExtensionCancel(svc ExtensionCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseExtensionPath(r.URL.Path, "cancel")
		if !ok {
			http.NotFound(w, r)
			return
		}

		ext, err := svc.Cancel(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, renderExtension(ext))
	}
}

func parseExtensionPath(path, action string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "extensions" || parts[2] != action {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

type extensionRequest struct {
	ReservationID  string `json:"reservation_id"`
	AdditionalDays int    `json:"additional_days"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (r extensionRequest) validate() error {
	if r.ReservationID == "" {
		return errors.New("reservation_id is required")
	}
	if r.AdditionalDays <= 0 {
		return domain.ErrInvalidDays
	}
	if r.IdempotencyKey == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	return nil
}

type extensionPaymentRequest struct {
	PaymentRef string `json:"payment_ref"`
}

type extensionDecideRequest struct {
	Approve  bool   `json:"approve"`
	AdminRef string `json:"admin_ref"`
	Note     string `json:"note"`
}

type extensionResponse struct {
	ID             string     `json:"id"`
	ReservationID  string     `json:"reservation_id"`
	AdditionalDays int        `json:"additional_days"`
	Price          string     `json:"price"`
	Tax            string     `json:"tax"`
	Total          string     `json:"total"`
	Status         string     `json:"status"`
	DecidedBy      string     `json:"decided_by,omitempty"`
	DecisionNote   string     `json:"decision_note,omitempty"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func renderExtension(ext domain.ExtensionRequest) extensionResponse {
	return extensionResponse{
		ID:             ext.ID,
		ReservationID:  ext.ReservationID,
		AdditionalDays: ext.AdditionalDays,
		Price:          ext.Price.StringFixed(2),
		Tax:            ext.Tax.StringFixed(2),
		Total:          ext.Total.StringFixed(2),
		Status:         string(ext.Status),
		DecidedBy:      ext.DecidedBy,
		DecisionNote:   ext.DecisionNote,
		DecidedAt:      ext.DecidedAt,
		CreatedAt:      ext.CreatedAt,
	}
}
