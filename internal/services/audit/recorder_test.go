package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	got []*models.AuditLogEntry
	err error
}

func (f *fakeStore) InsertAudit(ctx context.Context, e *models.AuditLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, e)
	return nil
}

func TestRecord_SnapshotsBeforeAndAfter(t *testing.T) {
	st := &fakeStore{}
	r := NewRecorder(st)

	before := &models.Booking{ID: 1, Status: models.StatusArrived}
	after := &models.Booking{ID: 1, Status: models.StatusDelivered}
	require.NoError(t, r.Record(context.Background(), "u-ka", models.AuditBookingStatusChanged, models.EntityBooking, "1", before, after))

	require.Len(t, st.got, 1)
	e := st.got[0]
	require.NotEmpty(t, e.ID)
	require.Equal(t, "u-ka", e.Actor)
	require.False(t, e.CreatedAt.IsZero())

	var b, a models.Booking
	require.NoError(t, json.Unmarshal(e.Before, &b))
	require.NoError(t, json.Unmarshal(e.After, &a))
	require.Equal(t, models.StatusArrived, b.Status)
	require.Equal(t, models.StatusDelivered, a.Status)
}

func TestRecord_NilSnapshotsAndRawPassthrough(t *testing.T) {
	st := &fakeStore{}
	r := NewRecorder(st)
	raw := json.RawMessage(`{"value":10}`)
	require.NoError(t, r.Record(context.Background(), "root", models.AuditCounterOverride, models.EntityCounter, "HO/booking/lr_number", nil, raw))
	require.Nil(t, st.got[0].Before)
	require.JSONEq(t, `{"value":10}`, string(st.got[0].After))
}

func TestRecord_FailureIsReturned(t *testing.T) {
	want := errors.New("disk full")
	r := NewRecorder(&fakeStore{err: want})
	err := r.Record(context.Background(), "u", models.AuditBookingCreated, models.EntityBooking, "1", nil, nil)
	require.ErrorIs(t, err, want)
}

func TestRecord_RequiresActorAndEntity(t *testing.T) {
	r := NewRecorder(&fakeStore{})
	require.Error(t, r.Record(context.Background(), "", models.AuditBookingCreated, models.EntityBooking, "1", nil, nil))
	require.Error(t, r.Record(context.Background(), "u", models.AuditBookingCreated, "", "1", nil, nil))
}

func TestRecord_UnmarshalableSnapshot(t *testing.T) {
	r := NewRecorder(&fakeStore{})
	err := r.Record(context.Background(), "u", models.AuditBookingCreated, models.EntityBooking, "1", nil, func() {})
	require.Error(t, err)
}
