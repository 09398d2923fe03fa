// Package access is the single place that decides which branches, and
// therefore which bookings and ledger postings, a user may see or act on.
package access

import (
	"context"
	"sort"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
)

type BranchLister interface {
	ListBranches(ctx context.Context) ([]models.Branch, error)
}

// Scope is a resolved visible set. All is set for unrestricted users.
type Scope struct {
	All      bool
	Branches map[models.BranchID]struct{}
}

func (s Scope) Contains(id models.BranchID) bool {
	if s.All {
		return true
	}
	_, ok := s.Branches[id]
	return ok
}

// Filter returns the branch list to push down into queries, or nil when unrestricted.
func (s Scope) Filter() []models.BranchID {
	if s.All {
		return nil
	}
	out := make([]models.BranchID, 0, len(s.Branches))
	for id := range s.Branches {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type Resolver struct {
	branches BranchLister
}

func New(branches BranchLister) *Resolver {
	return &Resolver{branches: branches}
}

func (r *Resolver) ResolveVisibleBranches(ctx context.Context, u *models.User) (Scope, error) {
	if u == nil {
		return Scope{}, models.ErrUnauthenticated
	}
	switch u.Role {
	case models.RoleSuperAdmin:
		s := Scope{All: true, Branches: map[models.BranchID]struct{}{}}
		if r.branches != nil {
			bs, err := r.branches.ListBranches(ctx)
			if err != nil {
				return Scope{}, errors.Wrap(err, "list branches")
			}
			for _, b := range bs {
				s.Branches[b.Code] = struct{}{}
			}
		}
		return s, nil
	case models.RoleBranch:
		if u.HomeBranch == "" {
			return Scope{}, models.Forbidden("user %s has no home branch", u.ID)
		}
		s := Scope{Branches: map[models.BranchID]struct{}{u.HomeBranch: {}}}
		for _, b := range u.AllowedBranches {
			if b != "" {
				s.Branches[b] = struct{}{}
			}
		}
		return s, nil
	}
	return Scope{}, models.Forbidden("unknown role %q", u.Role)
}

func (r *Resolver) CanAccessBranch(ctx context.Context, u *models.User, branch models.BranchID) (bool, error) {
	s, err := r.ResolveVisibleBranches(ctx, u)
	if err != nil {
		return false, err
	}
	return s.Contains(branch), nil
}

// CanViewBooking: a booking is visible iff its origin or destination is in scope.
func (r *Resolver) CanViewBooking(ctx context.Context, u *models.User, b *models.Booking) (bool, error) {
	s, err := r.ResolveVisibleBranches(ctx, u)
	if err != nil {
		return false, err
	}
	return s.All || b.Touches(s.Branches), nil
}

func (r *Resolver) AuthorizeView(ctx context.Context, u *models.User, b *models.Booking) error {
	ok, err := r.CanViewBooking(ctx, u, b)
	if err != nil {
		return err
	}
	if !ok {
		return models.Forbidden("booking is outside the user's branches")
	}
	return nil
}

// AuthorizeCreate allows booking only from the branch the user operates from.
func (r *Resolver) AuthorizeCreate(ctx context.Context, u *models.User, origin models.BranchID) error {
	if _, err := r.ResolveVisibleBranches(ctx, u); err != nil {
		return err
	}
	if u.IsSuperAdmin() {
		return nil
	}
	if u.HomeBranch != origin {
		return models.Forbidden("user %s cannot book from branch %s", u.ID, origin)
	}
	return nil
}

// AuthorizeMutation requires visibility plus physical custody: the acting user's
// home branch must be the booking's current custody branch.
func (r *Resolver) AuthorizeMutation(ctx context.Context, u *models.User, b *models.Booking) error {
	if err := r.AuthorizeView(ctx, u, b); err != nil {
		return err
	}
	if u.IsSuperAdmin() {
		return nil
	}
	if custody := b.CustodyBranch(); u.HomeBranch != custody {
		return models.Forbidden("booking is in custody of %s, user operates from %s", custody, u.HomeBranch)
	}
	return nil
}

func (r *Resolver) AuthorizeReport(ctx context.Context, u *models.User, rt models.ReportType) error {
	if _, err := r.ResolveVisibleBranches(ctx, u); err != nil {
		return err
	}
	if u.IsSuperAdmin() {
		return nil
	}
	for _, allowed := range u.AllowedReports {
		if allowed == rt {
			return nil
		}
	}
	return models.Forbidden("report %q not allowed", rt)
}

func (r *Resolver) RequireSuperAdmin(u *models.User) error {
	if u == nil {
		return models.ErrUnauthenticated
	}
	if !u.IsSuperAdmin() {
		return models.Forbidden("super admin only")
	}
	return nil
}

// ScopeBookings pins the filter to the user's visible set. Caller-supplied
// branch filters are kept but can only narrow the result further.
func (r *Resolver) ScopeBookings(ctx context.Context, u *models.User, f models.BookingFilter) (models.BookingFilter, error) {
	s, err := r.ResolveVisibleBranches(ctx, u)
	if err != nil {
		return f, err
	}
	f.Scope = s.Filter()
	return f, nil
}

// ScopeLedger pins the filter to the user's visible set. A posting is visible
// when its branch, or the origin or destination of its booking, is in that set,
// so the origin desk sees what the destination collected on its bookings. A
// branch filter only narrows within the scope.
func (r *Resolver) ScopeLedger(ctx context.Context, u *models.User, f models.LedgerFilter) (models.LedgerFilter, error) {
	s, err := r.ResolveVisibleBranches(ctx, u)
	if err != nil {
		return f, err
	}
	f.Scope = s.Filter()
	return f, nil
}
