package pgcargo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/services/bookings"
	"github.com/BearBump/CargoLedger/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "cargoledger_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/cargoledger_test?sslmode=disable"
	st, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	require.NoError(t, st.UpsertBranches(ctx, []models.Branch{
		{Code: "HO", Name: "Head Office"},
		{Code: "KA", Name: "Kalyan"},
		{Code: "PA", Name: "Panvel"},
	}))
	return st
}

func TestPGCargo_BookingLifecycle(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	svc := bookings.New(st, nil, bookings.Options{})

	ho := &models.User{ID: "u-ho", Role: models.RoleBranch, HomeBranch: "HO"}
	ka := &models.User{ID: "u-ka", Role: models.RoleBranch, HomeBranch: "KA"}
	pa := &models.User{ID: "u-pa", Role: models.RoleBranch, HomeBranch: "PA"}
	w := decimal.RequireFromString("2.5")

	b, err := svc.Create(ctx, ho, models.BookingDraft{
		OriginBranch:      "HO",
		DestinationBranch: "KA",
		Sender:            models.Party{Name: "Ravi", Mobile: "9800000001"},
		Receiver:          models.Party{Name: "Kiran", Mobile: "9800000002"},
		Parcels: []models.Parcel{
			{Quantity: 2, Category: models.CategoryBox, Rate: decimal.NewFromInt(150), Weight: &w},
			{Quantity: 1, Category: models.CategoryDocument, Rate: decimal.NewFromInt(100)},
		},
		Freight:     decimal.NewFromInt(400),
		Handling:    decimal.NewFromInt(60),
		Hamali:      decimal.NewFromInt(40),
		PaymentType: models.PaymentToPay,
	})
	require.NoError(t, err)
	require.Equal(t, "HO-000001", b.LRNumber)
	require.True(t, b.Costs.Total.Equal(decimal.NewFromInt(500)))

	got, err := st.GetBookingByLR(ctx, "HO-000001")
	require.NoError(t, err)
	require.Len(t, got.Parcels, 2)
	require.True(t, got.Parcels[0].Weight.Equal(w))
	require.Nil(t, got.Parcels[1].Weight)
	require.Equal(t, "Kiran", got.Receiver.Name)

	_, err = svc.UpdateStatus(ctx, ho, b.ID, bookings.StatusChange{Target: models.StatusInTransit})
	require.NoError(t, err)
	res, err := svc.UpdateStatus(ctx, ka, b.ID, bookings.StatusChange{Target: models.StatusArrived})
	require.NoError(t, err)
	ver := res.Booking.Version

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateStatus(ctx, ka, b.ID, bookings.StatusChange{Target: models.StatusDelivered, Remark: "Delivered at counter", ExpectedVersion: &ver})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)

	txs, err := st.ListLedger(ctx, models.LedgerFilter{BookingID: &b.ID})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, models.BranchID("KA"), txs[0].Branch)
	require.True(t, txs[0].Amount.Equal(decimal.NewFromInt(500)))

	// the KA credit is visible from the booking's origin, not from an unrelated branch
	txs, err = st.ListLedger(ctx, models.LedgerFilter{Scope: []models.BranchID{"HO"}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	txs, err = st.ListLedger(ctx, models.LedgerFilter{Scope: []models.BranchID{"PA"}})
	require.NoError(t, err)
	require.Empty(t, txs)

	list, err := svc.List(ctx, pa, models.BookingFilter{})
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = svc.Get(ctx, pa, b.ID)
	require.ErrorIs(t, err, models.ErrForbidden)

	entity, id := models.EntityBooking, "1"
	audit, err := st.ListAudit(ctx, models.AuditFilter{EntityType: &entity, EntityID: &id})
	require.NoError(t, err)
	require.Len(t, audit, 4)
}

func TestPGCargo_DuplicateCollectionIsRejectedByIndex(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	var bookingID uint64
	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		now := time.Now().UTC()
		b := &models.Booking{
			LRNumber: "HO-000009", LRSeq: 9, OriginBranch: "HO", DestinationBranch: "KA",
			Sender: models.Party{Name: "a", Mobile: "1"}, Receiver: models.Party{Name: "b", Mobile: "2"},
			Costs:       models.NewCosts(decimal.NewFromInt(10), decimal.Zero, decimal.Zero),
			PaymentType: models.PaymentToPay, Status: models.StatusArrived, Version: 1,
			CreatedBy: "t", CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		bookingID = b.ID
		return nil
	}))

	post := func() error {
		return st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.InsertLedgerTransaction(ctx, &models.LedgerTransaction{
				BookingID: bookingID, Branch: "KA", Amount: decimal.NewFromInt(10),
				Type: models.LedgerCredit, Reason: models.LedgerReasonDeliveryCollection,
				Description: "x", CreatedBy: "t", CreatedAt: time.Now().UTC(),
			})
		})
	}
	require.NoError(t, post())
	require.ErrorIs(t, post(), models.ErrDuplicatePosting)
}

func TestPGCargo_CountersAndOutbox(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	key := models.LRSequenceKey("HO")

	var got []int64
	for i := 0; i < 3; i++ {
		require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			n, err := tx.IncrementSequence(ctx, key)
			got = append(got, n)
			return err
		}))
	}
	require.Equal(t, []int64{1, 2, 3}, got)

	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.SetSequence(ctx, key, 2); err != nil {
			return err
		}
		n, err := tx.GetSequence(ctx, key)
		require.Equal(t, int64(3), n)
		return err
	}))

	now := time.Now().UTC()
	require.NoError(t, st.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertOutboxEvent(ctx, &models.OutboxEvent{
			ID: "2b7c6a43-3c0f-4b7e-8d7a-0d7a1f6f7a11", Topic: "booking.events", Key: "1",
			Payload: []byte(`{"booking_id":1}`), NextAttemptAt: now.Add(-time.Second), CreatedAt: now,
		})
	}))

	lease := 30 * time.Second
	due, err := st.ClaimDueEvents(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.WithinDuration(t, now.Add(lease), due[0].NextAttemptAt, time.Second)

	again, err := st.ClaimDueEvents(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Empty(t, again)

	require.NoError(t, st.MarkFailed(ctx, due[0].ID, "broker down", now.Add(-time.Second)))
	retry, err := st.ClaimDueEvents(ctx, now, 10, lease)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	require.Equal(t, int32(1), retry[0].Attempts)

	require.NoError(t, st.MarkPublished(ctx, due[0].ID, now))
	n, err := st.PendingCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
