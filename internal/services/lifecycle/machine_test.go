package lifecycle

import (
	"testing"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func booked() *models.Booking {
	return &models.Booking{
		ID:                1,
		LRNumber:          "HO-000001",
		OriginBranch:      "HO",
		DestinationBranch: "KA",
		Parcels:           []models.Parcel{{Quantity: 1, Category: models.CategoryBox, Rate: decimal.NewFromInt(500)}},
		Costs:             models.NewCosts(decimal.NewFromInt(500), decimal.Zero, decimal.Zero),
		PaymentType:       models.PaymentToPay,
		Status:            models.StatusBooked,
		Version:           1,
	}
}

func TestCanTransition_Graph(t *testing.T) {
	legal := [][2]models.Status{
		{models.StatusBooked, models.StatusInTransit},
		{models.StatusInTransit, models.StatusArrived},
		{models.StatusArrived, models.StatusDelivered},
		{models.StatusBooked, models.StatusCancelled},
		{models.StatusInTransit, models.StatusCancelled},
		{models.StatusArrived, models.StatusCancelled},
	}
	isLegal := func(from, to models.Status) bool {
		for _, e := range legal {
			if e[0] == from && e[1] == to {
				return true
			}
		}
		return false
	}
	for _, from := range models.AllStatuses() {
		for _, to := range models.AllStatuses() {
			require.Equal(t, isLegal(from, to), CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	require.Empty(t, Next(models.StatusDelivered))
	require.Empty(t, Next(models.StatusCancelled))
}

func TestTransition_NoOpRejected(t *testing.T) {
	m := New(Defaults{})
	_, err := m.Transition(booked(), models.StatusBooked, Context{})
	var te *models.TransitionError
	require.True(t, errors.As(err, &te))
	require.Equal(t, models.StatusBooked, te.From)
	require.Equal(t, models.StatusBooked, te.To)
}

func TestTransition_SkipRejected(t *testing.T) {
	m := New(Defaults{})
	_, err := m.Transition(booked(), models.StatusDelivered, Context{})
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCheck(t *testing.T) {
	require.NoError(t, Check(models.StatusArrived, models.StatusDelivered))
	require.ErrorIs(t, Check(models.StatusCancelled, models.StatusCancelled), models.ErrInvalidTransition)
	require.ErrorIs(t, Check(models.StatusDelivered, models.StatusCancelled), models.ErrInvalidTransition)
	require.ErrorIs(t, Check(models.StatusBooked, models.Status("LOST")), models.ErrValidation)
}

func TestTransition_UnknownTarget(t *testing.T) {
	m := New(Defaults{})
	_, err := m.Transition(booked(), models.Status("LOST"), Context{})
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	m := New(Defaults{})
	b := booked()
	out, err := m.Transition(b, models.StatusInTransit, Context{})
	require.NoError(t, err)
	require.Equal(t, models.StatusBooked, b.Status)
	require.Equal(t, int64(1), b.Version)
	require.Equal(t, models.StatusInTransit, out.Status)
	require.Equal(t, int64(2), out.Version)
}

func TestTransition_DeliveredDefaultsRemark(t *testing.T) {
	m := New(Defaults{})
	b := booked()
	b.Status = models.StatusArrived
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	out, err := m.Transition(b, models.StatusDelivered, Context{Now: now})
	require.NoError(t, err)
	require.NotNil(t, out.DeliveryRemark)
	require.Equal(t, DefaultDeliveryRemark, *out.DeliveryRemark)
	require.Nil(t, out.CollectedBy)
	require.Equal(t, now, *out.DeliveredAt)

	out, err = m.Transition(b, models.StatusDelivered, Context{Remark: "Delivered at counter", CollectedBy: "Ravi", CollectedByMobile: "98"})
	require.NoError(t, err)
	require.Equal(t, "Delivered at counter", *out.DeliveryRemark)
	require.Equal(t, "Ravi", *out.CollectedBy)
	require.Equal(t, "98", *out.CollectedByMobile)
}

func TestTransition_CancelledUsesConfiguredDefault(t *testing.T) {
	m := New(Defaults{CancelRemark: "Cancelled by branch"})
	out, err := m.Transition(booked(), models.StatusCancelled, Context{Remark: "   "})
	require.NoError(t, err)
	require.Equal(t, "Cancelled by branch", *out.CancelRemark)
	require.NotNil(t, out.CancelledAt)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	m := New(Defaults{})
	for _, st := range []models.Status{models.StatusDelivered, models.StatusCancelled} {
		b := booked()
		b.Status = st
		for _, to := range models.AllStatuses() {
			_, err := m.Transition(b, to, Context{})
			require.ErrorIs(t, err, models.ErrInvalidTransition, "%s -> %s", st, to)
		}
	}
}

func TestRequiresCollection(t *testing.T) {
	b := booked()
	require.True(t, RequiresCollection(b, models.StatusDelivered))
	require.False(t, RequiresCollection(b, models.StatusArrived))
	b.PaymentType = models.PaymentPaid
	require.False(t, RequiresCollection(b, models.StatusDelivered))
}

func TestApplyDetails(t *testing.T) {
	m := New(Defaults{})
	b := booked()
	d := models.BookingDetails{
		Sender:      models.Party{Name: "S", Mobile: "1"},
		Receiver:    models.Party{Name: "R", Mobile: "2"},
		Parcels:     []models.Parcel{{Quantity: 3, Category: models.CategoryBag, Rate: decimal.NewFromInt(10)}},
		Freight:     decimal.NewFromInt(30),
		Handling:    decimal.NewFromInt(5),
		Hamali:      decimal.NewFromInt(2),
		PaymentType: models.PaymentPaid,
	}
	out, err := m.ApplyDetails(b, d, time.Time{})
	require.NoError(t, err)
	require.True(t, out.Costs.Total.Equal(decimal.NewFromInt(37)))
	require.True(t, out.Costs.Consistent())
	require.Equal(t, int64(2), out.Version)

	b.Status = models.StatusInTransit
	_, err = m.ApplyDetails(b, d, time.Time{})
	require.ErrorIs(t, err, models.ErrBookingFrozen)

	b.Status = models.StatusBooked
	d.Parcels = nil
	_, err = m.ApplyDetails(b, d, time.Time{})
	require.ErrorIs(t, err, models.ErrValidation)
}
