package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/go-chi/chi/v5"
)

const dateOnly = "2006-01-02"

// query collects parse failures so a handler reports them all at once.
type query struct {
	v  url.Values
	ve *models.ValidationError
}

func newQuery(r *http.Request) *query {
	return &query{v: r.URL.Query(), ve: models.NewValidationError()}
}

func (q *query) err() error { return q.ve.OrNil() }

func (q *query) branch(name string) *models.BranchID {
	raw := strings.TrimSpace(q.v.Get(name))
	if raw == "" {
		return nil
	}
	b := models.BranchID(strings.ToUpper(raw))
	return &b
}

func (q *query) str(name string) *string {
	raw := strings.TrimSpace(q.v.Get(name))
	if raw == "" {
		return nil
	}
	return &raw
}

func (q *query) status(name string) *models.Status {
	raw := q.v.Get(name)
	if raw == "" {
		return nil
	}
	s, ok := models.ParseStatus(raw)
	if !ok {
		q.ve.Add(name, "unknown status")
		return nil
	}
	return &s
}

// from accepts RFC3339 or YYYY-MM-DD (start of that day, UTC).
func (q *query) from(name string) *time.Time {
	return q.instant(name, false)
}

// to accepts RFC3339 (exclusive) or YYYY-MM-DD, which includes the whole day.
func (q *query) to(name string) *time.Time {
	return q.instant(name, true)
}

func (q *query) instant(name string, endOfDay bool) *time.Time {
	raw := strings.TrimSpace(q.v.Get(name))
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		q.ve.Add(name, "must be RFC3339 or YYYY-MM-DD")
		return nil
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t
}

func (q *query) num(name string, def int) int {
	raw := q.v.Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		q.ve.Add(name, "must be a non-negative integer")
		return def
	}
	return n
}

func pathID(r *http.Request, name string) (uint64, error) {
	id, err := parseUint(chi.URLParam(r, name))
	if err != nil {
		ve := models.NewValidationError()
		ve.Add(name, "must be a positive integer")
		return 0, ve
	}
	return id, nil
}

func parseUint(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err == nil && id == 0 {
		err = strconv.ErrRange
	}
	return id, err
}
