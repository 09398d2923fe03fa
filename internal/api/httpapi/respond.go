package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err.Error())
	}
	writeJSON(w, status, resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Message: "request is invalid", Fields: ve.Fields}
	}

	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "a valid bearer token is required"}
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: "not permitted"}
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "not found"}
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Message: err.Error()}
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Error: "invalid_transition", Message: err.Error()}
	case errors.Is(err, models.ErrBookingFrozen):
		return http.StatusConflict, ErrorResponse{Error: "booking_frozen", Message: "booking can only be edited while BOOKED"}
	case errors.Is(err, models.ErrConcurrentModification):
		return http.StatusConflict, ErrorResponse{Error: "concurrent_modification", Message: "record changed, please refresh"}
	case errors.Is(err, models.ErrAllocationUnavailable):
		return http.StatusConflict, ErrorResponse{Error: "allocation_unavailable", Message: "could not issue an LR number, try again"}
	case errors.Is(err, models.ErrDuplicatePosting):
		return http.StatusConflict, ErrorResponse{Error: "duplicate_posting", Message: err.Error()}
	case errors.Is(err, models.ErrAlreadyReversed):
		return http.StatusConflict, ErrorResponse{Error: "already_reversed", Message: err.Error()}
	case errors.Is(err, models.ErrLedgerReferenced):
		return http.StatusConflict, ErrorResponse{Error: "ledger_referenced", Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "something went wrong, try again"}
}
