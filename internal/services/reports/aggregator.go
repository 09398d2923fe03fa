package reports

import (
	"context"
	"sort"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/access"
	"github.com/BearBump/CargoLedger/internal/storage"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Filter struct {
	FromBranch  *models.BranchID
	ToBranch    *models.BranchID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type StatusTotal struct {
	Status models.Status   `json:"status"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type BookingSummary struct {
	Count    int             `json:"count"`
	Amount   decimal.Decimal `json:"amount"`
	ByStatus []StatusTotal   `json:"byStatus"`
}

type DeliverySummary struct {
	Delivered      int             `json:"delivered"`
	Pending        int             `json:"pending"`
	ToPayCollected decimal.Decimal `json:"toPayCollected"`
	PaidDelivered  decimal.Decimal `json:"paidDelivered"`
}

type PaymentSummary struct {
	Branch models.BranchID `json:"branch"`
	Count  int             `json:"count"`
	Paid   decimal.Decimal `json:"paid"`
	ToPay  decimal.Decimal `json:"toPay"`
}

type Report struct {
	Type        models.ReportType `json:"type"`
	GeneratedAt time.Time         `json:"generatedAt"`

	Bookings   *BookingSummary       `json:"bookings,omitempty"`
	Deliveries *DeliverySummary      `json:"deliveries,omitempty"`
	Payments   []PaymentSummary      `json:"payments,omitempty"`
	Ledger     []models.BranchBalance `json:"ledger,omitempty"`
}

// Aggregator folds scope-limited bookings into summaries. It reads only
// through the resolver-scoped queries, never with its own branch matching.
type Aggregator struct {
	st       storage.Store
	resolver *access.Resolver
	now      func() time.Time
}

func New(st storage.Store) *Aggregator {
	return &Aggregator{st: st, resolver: access.New(st), now: func() time.Time { return time.Now().UTC() }}
}

func (a *Aggregator) Build(ctx context.Context, u *models.User, rt models.ReportType, f Filter) (*Report, error) {
	if !rt.Valid() {
		v := models.NewValidationError()
		v.Add("type", "unknown report type")
		return nil, v
	}
	if err := a.resolver.AuthorizeReport(ctx, u, rt); err != nil {
		return nil, err
	}

	r := &Report{Type: rt, GeneratedAt: a.now()}
	if rt == models.ReportLedger {
		lf, err := a.resolver.ScopeLedger(ctx, u, models.LedgerFilter{CreatedFrom: f.CreatedFrom, CreatedTo: f.CreatedTo})
		if err != nil {
			return nil, err
		}
		txs, err := a.st.ListLedger(ctx, lf)
		if err != nil {
			return nil, errors.Wrap(err, "list ledger")
		}
		r.Ledger = models.Balances(txs)
		sort.Slice(r.Ledger, func(i, j int) bool { return r.Ledger[i].Branch < r.Ledger[j].Branch })
		return r, nil
	}

	bf, err := a.resolver.ScopeBookings(ctx, u, models.BookingFilter{
		FromBranch:  f.FromBranch,
		ToBranch:    f.ToBranch,
		CreatedFrom: f.CreatedFrom,
		CreatedTo:   f.CreatedTo,
	})
	if err != nil {
		return nil, err
	}
	bs, err := a.st.ListBookings(ctx, bf)
	if err != nil {
		return nil, errors.Wrap(err, "list bookings")
	}

	switch rt {
	case models.ReportBookings:
		r.Bookings = summarizeBookings(bs)
	case models.ReportDeliveries:
		r.Deliveries = summarizeDeliveries(bs)
	case models.ReportPayments:
		r.Payments = summarizePayments(bs)
	}
	return r, nil
}

func summarizeBookings(bs []*models.Booking) *BookingSummary {
	by := map[models.Status]*StatusTotal{}
	out := &BookingSummary{}
	for _, st := range models.AllStatuses() {
		by[st] = &StatusTotal{Status: st}
	}
	for _, b := range bs {
		out.Count++
		out.Amount = out.Amount.Add(b.Costs.Total)
		if t, ok := by[b.Status]; ok {
			t.Count++
			t.Amount = t.Amount.Add(b.Costs.Total)
		}
	}
	for _, st := range models.AllStatuses() {
		out.ByStatus = append(out.ByStatus, *by[st])
	}
	return out
}

func summarizeDeliveries(bs []*models.Booking) *DeliverySummary {
	out := &DeliverySummary{}
	for _, b := range bs {
		switch {
		case b.Status == models.StatusDelivered:
			out.Delivered++
			if b.PaymentType == models.PaymentToPay {
				out.ToPayCollected = out.ToPayCollected.Add(b.Costs.Total)
			} else {
				out.PaidDelivered = out.PaidDelivered.Add(b.Costs.Total)
			}
		case !b.Status.Terminal():
			out.Pending++
		}
	}
	return out
}

func summarizePayments(bs []*models.Booking) []PaymentSummary {
	idx := map[models.BranchID]*PaymentSummary{}
	for _, b := range bs {
		if b.Status == models.StatusCancelled {
			continue
		}
		p, ok := idx[b.OriginBranch]
		if !ok {
			p = &PaymentSummary{Branch: b.OriginBranch}
			idx[b.OriginBranch] = p
		}
		p.Count++
		if b.PaymentType == models.PaymentToPay {
			p.ToPay = p.ToPay.Add(b.Costs.Total)
		} else {
			p.Paid = p.Paid.Add(b.Costs.Total)
		}
	}
	out := make([]PaymentSummary, 0, len(idx))
	for _, p := range idx {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Branch < out[j].Branch })
	return out
}
