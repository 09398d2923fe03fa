package httpapi

import (
	"net/http"
	"strings"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/admin"
	"github.com/BearBump/CargoLedger/internal/services/bookings"
	"github.com/BearBump/CargoLedger/internal/services/ledger"
	"github.com/BearBump/CargoLedger/internal/services/reports"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	bookings *bookings.Service
	ledger   *ledger.Service
	admin    *admin.Service
	reports  *reports.Aggregator
}

func NewHandler(b *bookings.Service, l *ledger.Service, a *admin.Service, r *reports.Aggregator) *Handler {
	return &Handler{bookings: b, ledger: l, admin: a, reports: r}
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.bookings.Create(r.Context(), UserFrom(r.Context()), req.toDraft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := models.BookingFilter{
		FromBranch:  q.branch("fromBranch"),
		ToBranch:    q.branch("toBranch"),
		Status:      q.status("status"),
		CreatedFrom: q.from("from"),
		CreatedTo:   q.to("to"),
		Limit:       q.num("limit", bookings.DefaultListLimit),
		Offset:      q.num("offset", 0),
	}
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.bookings.List(r.Context(), UserFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": out})
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.bookings.Get(r.Context(), UserFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) GetBookingByLR(w http.ResponseWriter, r *http.Request) {
	lr := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "lr")))
	b, err := h.bookings.GetByLR(r.Context(), UserFrom(r.Context()), lr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req UpdateBookingRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.bookings.UpdateDetails(r.Context(), UserFrom(r.Context()), id, req.toDetails(), req.ExpectedVersion)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req UpdateStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	target, ok := models.ParseStatus(req.Status)
	if !ok {
		ve := models.NewValidationError()
		ve.Add("status", "unknown status")
		writeError(w, r, ve)
		return
	}
	res, err := h.bookings.UpdateStatus(r.Context(), UserFrom(r.Context()), id, bookings.StatusChange{
		Target:            target,
		Remark:            req.Remark,
		CollectedBy:       req.CollectedBy,
		CollectedByMobile: req.CollectedByMobile,
		ExpectedVersion:   req.ExpectedVersion,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Booking: res.Booking, LedgerTransaction: res.Posting})
}

func (h *Handler) PurgeBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.bookings.Purge(r.Context(), UserFrom(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LedgerStatement(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := models.LedgerFilter{
		Branch:      q.branch("branch"),
		CreatedFrom: q.from("from"),
		CreatedTo:   q.to("to"),
		Limit:       q.num("limit", ledger.DefaultListLimit),
		Offset:      q.num("offset", 0),
	}
	if raw := q.v.Get("bookingId"); raw != "" {
		id, err := parseUint(raw)
		if err != nil {
			q.ve.Add("bookingId", "must be a positive integer")
		} else {
			f.BookingID = &id
		}
	}
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := h.ledger.Statement(r.Context(), UserFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) ReverseTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ReverseRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	t, err := h.ledger.Reverse(r.Context(), UserFrom(r.Context()), id, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) OverrideCounter(w http.ResponseWriter, r *http.Request) {
	var req CounterOverrideRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key := models.SequenceKey{
		Branch: models.BranchID(strings.ToUpper(chi.URLParam(r, "branch"))),
		Entity: chi.URLParam(r, "entity"),
		Field:  chi.URLParam(r, "field"),
	}
	prev, err := h.admin.OverrideCounter(r.Context(), UserFrom(r.Context()), key, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CounterOverrideResponse{Key: key.String(), Previous: prev, Value: req.Value})
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := models.AuditFilter{
		EntityType: q.str("entityType"),
		EntityID:   q.str("entityId"),
		Actor:      q.str("actor"),
		Limit:      q.num("limit", admin.DefaultAuditLimit),
	}
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.admin.Audit(r.Context(), UserFrom(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	q := newQuery(r)
	f := reports.Filter{
		FromBranch:  q.branch("fromBranch"),
		ToBranch:    q.branch("toBranch"),
		CreatedFrom: q.from("from"),
		CreatedTo:   q.to("to"),
	}
	if err := q.err(); err != nil {
		writeError(w, r, err)
		return
	}
	rt := models.ReportType(strings.ToLower(chi.URLParam(r, "type")))
	rep, err := h.reports.Build(r.Context(), UserFrom(r.Context()), rt, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
