package bookings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BearBump/CargoLedger/internal/broker/messages"
	"github.com/BearBump/CargoLedger/internal/cache"
	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/access"
	"github.com/BearBump/CargoLedger/internal/services/audit"
	"github.com/BearBump/CargoLedger/internal/services/ledger"
	"github.com/BearBump/CargoLedger/internal/services/lifecycle"
	"github.com/BearBump/CargoLedger/internal/services/sequence"
	"github.com/BearBump/CargoLedger/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

type Options struct {
	Topic    string
	CacheTTL time.Duration
	LRWidth  int
	Defaults lifecycle.Defaults
}

type Service struct {
	st       storage.Store
	cache    cache.BytesCache
	cacheTTL time.Duration
	topic    string

	resolver  *access.Resolver
	machine   *lifecycle.Machine
	allocator *sequence.Allocator

	now func() time.Time
}

func New(st storage.Store, c cache.BytesCache, opts Options) *Service {
	if opts.Topic == "" {
		opts.Topic = messages.TopicBookingEvents
	}
	return &Service{
		st:        st,
		cache:     c,
		cacheTTL:  opts.CacheTTL,
		topic:     opts.Topic,
		resolver:  access.New(st),
		machine:   lifecycle.New(opts.Defaults),
		allocator: sequence.New(opts.LRWidth),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Resolver() *access.Resolver { return s.resolver }

// StatusChange is a request to move a booking along the lifecycle graph.
type StatusChange struct {
	Target            models.Status
	Remark            string
	CollectedBy       string
	CollectedByMobile string
	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion *int64
}

// StatusResult is the committed booking plus the posting the change produced, if any.
type StatusResult struct {
	Booking *models.Booking
	Posting *models.LedgerTransaction
}

// Create allocates the LR number and persists the booking as one unit: if any
// step fails nothing is stored and the number is not consumed.
func (s *Service) Create(ctx context.Context, u *models.User, d models.BookingDraft) (*models.Booking, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.resolver.AuthorizeCreate(ctx, u, d.OriginBranch); err != nil {
		return nil, err
	}

	var out *models.Booking
	err := s.st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := checkBranches(ctx, tx, d.OriginBranch, d.DestinationBranch); err != nil {
			return err
		}
		seq, lr, err := s.allocator.AllocateLR(ctx, tx, d.OriginBranch)
		if err != nil {
			return err
		}
		now := s.now()
		b := &models.Booking{
			LRNumber:          lr,
			LRSeq:             seq,
			OriginBranch:      d.OriginBranch,
			DestinationBranch: d.DestinationBranch,
			Sender:            d.Sender,
			Receiver:          d.Receiver,
			Parcels:           append([]models.Parcel(nil), d.Parcels...),
			Costs:             models.NewCosts(d.Freight, d.Handling, d.Hamali),
			PaymentType:       d.PaymentType,
			Status:            models.StatusBooked,
			Version:           1,
			CreatedBy:         u.ID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return errors.Wrap(err, "insert booking")
		}
		if err := audit.NewRecorder(tx).Record(ctx, u.ID, models.AuditBookingCreated, models.EntityBooking, idString(b.ID), nil, b); err != nil {
			return err
		}
		if err := s.enqueue(ctx, tx, messages.BookingCreated, u.ID, b, nil); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		logRejected("create booking", u, 0, err)
		return nil, err
	}
	slog.Info("booking created", "booking_id", out.ID, "lr", out.LRNumber, "actor", u.ID)
	return out, nil
}

// UpdateStatus applies one transition. Status, ledger posting, audit entry and
// outbox event commit together or not at all.
func (s *Service) UpdateStatus(ctx context.Context, u *models.User, id uint64, req StatusChange) (*StatusResult, error) {
	if _, err := s.resolver.ResolveVisibleBranches(ctx, u); err != nil {
		return nil, err
	}

	var res StatusResult
	err := s.st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := s.resolver.AuthorizeView(ctx, u, cur); err != nil {
			return err
		}
		// graph before custody: a terminal booking has no custodian to ask
		if err := lifecycle.Check(cur.Status, req.Target); err != nil {
			return err
		}
		if err := s.resolver.AuthorizeMutation(ctx, u, cur); err != nil {
			return err
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != cur.Version {
			return errors.Wrapf(models.ErrConcurrentModification, "booking %d is at version %d", id, cur.Version)
		}

		next, err := s.machine.Transition(cur, req.Target, lifecycle.Context{
			Remark:            req.Remark,
			CollectedBy:       req.CollectedBy,
			CollectedByMobile: req.CollectedByMobile,
			Now:               s.now(),
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateBookingStatus(ctx, next, cur.Status, cur.Version); err != nil {
			return err
		}

		var posting *models.LedgerTransaction
		if lifecycle.RequiresCollection(cur, req.Target) {
			posting, err = ledger.NewPoster(tx).PostDeliveryCollection(ctx, next, u.ID)
			if err != nil {
				return err
			}
		}
		if err := audit.NewRecorder(tx).Record(ctx, u.ID, models.AuditBookingStatusChanged, models.EntityBooking, idString(id), cur, next); err != nil {
			return err
		}
		if err := s.enqueue(ctx, tx, messages.BookingStatusChanged, u.ID, next, posting); err != nil {
			return err
		}
		res = StatusResult{Booking: next, Posting: posting}
		return nil
	})
	if err != nil {
		logRejected("update status", u, id, err)
		return nil, err
	}
	// drop rather than overwrite: a concurrent writer may already hold a newer copy
	s.forget(ctx, id)
	slog.Info("booking status changed", "booking_id", id, "status", res.Booking.Status, "actor", u.ID)
	return &res, nil
}

// UpdateDetails replaces parcels, parties, costs and payment type while the
// booking is still BOOKED.
func (s *Service) UpdateDetails(ctx context.Context, u *models.User, id uint64, d models.BookingDetails, expectedVersion *int64) (*models.Booking, error) {
	var out *models.Booking
	err := s.st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := s.resolver.AuthorizeView(ctx, u, cur); err != nil {
			return err
		}
		if err := lifecycle.EnsureEditable(cur); err != nil {
			return err
		}
		if err := s.resolver.AuthorizeMutation(ctx, u, cur); err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != cur.Version {
			return errors.Wrapf(models.ErrConcurrentModification, "booking %d is at version %d", id, cur.Version)
		}
		next, err := s.machine.ApplyDetails(cur, d, s.now())
		if err != nil {
			return err
		}
		if err := tx.UpdateBookingDetails(ctx, next, cur.Version); err != nil {
			return err
		}
		if err := audit.NewRecorder(tx).Record(ctx, u.ID, models.AuditBookingUpdated, models.EntityBooking, idString(id), cur, next); err != nil {
			return err
		}
		if err := s.enqueue(ctx, tx, messages.BookingUpdated, u.ID, next, nil); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		logRejected("update booking", u, id, err)
		return nil, err
	}
	s.forget(ctx, id)
	return out, nil
}

// Purge removes a booking that never reached the ledger. Super admin only.
func (s *Service) Purge(ctx context.Context, u *models.User, id uint64) error {
	if err := s.resolver.RequireSuperAdmin(u); err != nil {
		return err
	}
	err := s.st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		cur, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		n, err := tx.CountLedgerByBooking(ctx, id)
		if err != nil {
			return errors.Wrap(err, "count ledger")
		}
		if n > 0 {
			return errors.Wrapf(models.ErrLedgerReferenced, "booking %d has %d ledger transactions", id, n)
		}
		if err := tx.DeleteBooking(ctx, id, cur.Version); err != nil {
			return err
		}
		if err := audit.NewRecorder(tx).Record(ctx, u.ID, models.AuditBookingPurged, models.EntityBooking, idString(id), cur, nil); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, messages.BookingPurged, u.ID, cur, nil)
	})
	if err != nil {
		logRejected("purge booking", u, id, err)
		return err
	}
	s.forget(ctx, id)
	slog.Info("booking purged", "booking_id", id, "actor", u.ID)
	return nil
}

// Get loads one booking. Visibility is checked after every load, cached or not.
func (s *Service) Get(ctx context.Context, u *models.User, id uint64) (*models.Booking, error) {
	if _, err := s.resolver.ResolveVisibleBranches(ctx, u); err != nil {
		return nil, err
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.AuthorizeView(ctx, u, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) GetByLR(ctx context.Context, u *models.User, lr string) (*models.Booking, error) {
	if _, err := s.resolver.ResolveVisibleBranches(ctx, u); err != nil {
		return nil, err
	}
	b, err := s.st.GetBookingByLR(ctx, lr)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.AuthorizeView(ctx, u, b); err != nil {
		return nil, err
	}
	return b, nil
}

// List returns bookings matching f, always narrowed to the caller's branches.
func (s *Service) List(ctx context.Context, u *models.User, f models.BookingFilter) ([]*models.Booking, error) {
	f, err := s.resolver.ScopeBookings(ctx, u, f)
	if err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.st.ListBookings(ctx, f)
}

// Refresh reloads a booking into the cache after a committed change was
// observed on the event stream.
func (s *Service) Refresh(ctx context.Context, ev messages.BookingEvent) error {
	if ev.BookingID == 0 {
		return errors.New("booking_id is required")
	}
	if ev.Type == messages.BookingPurged {
		s.forget(ctx, ev.BookingID)
		return nil
	}
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil
	}
	b, err := s.st.GetBooking(ctx, ev.BookingID)
	if errors.Is(err, models.ErrNotFound) {
		s.forget(ctx, ev.BookingID)
		return nil
	}
	if err != nil {
		return err
	}
	s.remember(ctx, b)
	return nil
}

func (s *Service) load(ctx context.Context, id uint64) (*models.Booking, error) {
	if s.cache != nil && s.cacheTTL > 0 {
		if raw, ok, err := s.cache.Get(ctx, currentKey(id)); err == nil && ok {
			var b models.Booking
			if json.Unmarshal(raw, &b) == nil {
				return &b, nil
			}
		}
	}
	b, err := s.st.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, b)
	return b, nil
}

// remember caches b unless the cache already holds the same or a later version,
// so a slow reader cannot push an older copy over a fresher one.
func (s *Service) remember(ctx context.Context, b *models.Booking) {
	if s.cache == nil || s.cacheTTL <= 0 || b == nil {
		return
	}
	if raw, ok, err := s.cache.Get(ctx, currentKey(b.ID)); err == nil && ok {
		var cached models.Booking
		if json.Unmarshal(raw, &cached) == nil && cached.Version >= b.Version {
			return
		}
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, currentKey(b.ID), raw, s.cacheTTL); err != nil {
		slog.Warn("booking cache set", "booking_id", b.ID, "error", err.Error())
	}
}

func (s *Service) forget(ctx context.Context, id uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, currentKey(id)); err != nil {
		slog.Warn("booking cache delete", "booking_id", id, "error", err.Error())
	}
}

func (s *Service) enqueue(ctx context.Context, tx storage.Tx, typ messages.BookingEventType, actor string, b *models.Booking, posting *models.LedgerTransaction) error {
	now := s.now()
	ev := messages.BookingEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		BookingID:  b.ID,
		LRNumber:   b.LRNumber,
		Status:     b.Status,
		Version:    b.Version,
		Actor:      actor,
		OccurredAt: now,
	}
	if typ != messages.BookingPurged {
		ev.Booking = b
	}
	if posting != nil {
		id := posting.ID
		ev.LedgerTransactionID = &id
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal booking event")
	}
	if err := tx.InsertOutboxEvent(ctx, &models.OutboxEvent{
		ID:            ev.EventID,
		Topic:         s.topic,
		Key:           idString(b.ID),
		Payload:       payload,
		NextAttemptAt: now,
		CreatedAt:     now,
	}); err != nil {
		return errors.Wrap(err, "insert outbox event")
	}
	return nil
}

func checkBranches(ctx context.Context, tx storage.Tx, ids ...models.BranchID) error {
	v := models.NewValidationError()
	names := []string{"originBranch", "destinationBranch"}
	for i, id := range ids {
		ok, err := tx.BranchExists(ctx, id)
		if err != nil {
			return errors.Wrap(err, "check branch")
		}
		if !ok {
			v.Add(names[i], fmt.Sprintf("unknown branch %q", id))
		}
	}
	return v.OrNil()
}

func logRejected(op string, u *models.User, id uint64, err error) {
	actor := ""
	if u != nil {
		actor = u.ID
	}
	if models.IsClientError(err) || models.IsRetryable(err) || errors.Is(err, models.ErrLedgerReferenced) ||
		errors.Is(err, models.ErrUnauthenticated) || errors.Is(err, models.ErrDuplicatePosting) {
		slog.Warn(op+" rejected", "booking_id", id, "actor", actor, "error", err.Error())
		return
	}
	slog.Error(op+" failed", "booking_id", id, "actor", actor, "error", err.Error())
}

func idString(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func currentKey(id uint64) string {
	return fmt.Sprintf("booking:%d:current", id)
}
