package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/booking-core/internal/apperr"
	"github.com/smarttransit/booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type formFixture struct {
	env     *saleEnv
	forms   *PassengerFormService
	token   string
	seatIDs []string
	ref     string
}

func setupFormTest(t *testing.T, seats int) *formFixture {
	t.Helper()
	env := setupSaleTest(t)
	env.store.addTrip(testTrip("trip-1", models.SeatSelectionNone), 1, 10)

	result, err := env.sales.CreateSale(context.Background(), testCaller,
		cashSale("trip-1", models.ByQuantity{Count: seats}, int64(20*seats)))
	require.NoError(t, err)

	res := env.store.reservation(result.ReservationID)
	require.NotNil(t, res.FormToken)

	rows, err := env.store.GetReservationSeats(context.Background(), res.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	return &formFixture{
		env:     env,
		forms:   NewPassengerFormService(env.store, env.clock, discardLogger()),
		token:   *res.FormToken,
		seatIDs: ids,
		ref:     result.BookingReference,
	}
}

func passenger(seatID, name string) models.PassengerInput {
	return models.PassengerInput{
		ReservationSeatID: seatID,
		FullName:          name,
		DocumentType:      models.DocumentTypeDNI,
		DocumentNumber:    "70112233",
	}
}

func TestGetByToken(t *testing.T) {
	f := setupFormTest(t, 2)
	ctx := context.Background()

	view, err := f.forms.GetByToken(ctx, f.token)
	require.NoError(t, err)
	assert.Equal(t, f.ref, view.BookingReference)
	assert.Equal(t, 2, view.SeatCount)
	assert.Len(t, view.Seats, 2)
	assert.False(t, view.IsExpired)
	assert.False(t, view.IsCompleted)

	f.env.clock.Advance(49 * time.Hour)
	view, err = f.forms.GetByToken(ctx, f.token)
	require.NoError(t, err)
	assert.True(t, view.IsExpired)
}

func TestGetByToken_Unknown(t *testing.T) {
	f := setupFormTest(t, 1)

	_, err := f.forms.GetByToken(context.Background(), uuid.New().String())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.forms.GetByToken(context.Background(), "garbage")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestComplete_Success(t *testing.T) {
	f := setupFormTest(t, 2)
	ctx := context.Background()

	ref, err := f.forms.Complete(ctx, f.token, []models.PassengerInput{
		passenger(f.seatIDs[0], "Ana Torres"),
		passenger(f.seatIDs[1], "Luis Torres"),
	})
	require.NoError(t, err)
	assert.Equal(t, f.ref, ref)
	assert.Len(t, f.env.store.passengers, 2)

	view, err := f.forms.GetByToken(ctx, f.token)
	require.NoError(t, err)
	assert.True(t, view.IsCompleted)

	_, err = f.forms.Complete(ctx, f.token, []models.PassengerInput{
		passenger(f.seatIDs[0], "Ana Torres"),
		passenger(f.seatIDs[1], "Luis Torres"),
	})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	assert.Len(t, f.env.store.passengers, 2)
}

func TestComplete_Validation(t *testing.T) {
	f := setupFormTest(t, 2)
	ctx := context.Background()

	tests := []struct {
		name       string
		passengers []models.PassengerInput
	}{
		{"too few", []models.PassengerInput{passenger(f.seatIDs[0], "Ana")}},
		{"duplicate seat", []models.PassengerInput{passenger(f.seatIDs[0], "Ana"), passenger(f.seatIDs[0], "Luis")}},
		{"foreign seat", []models.PassengerInput{passenger(f.seatIDs[0], "Ana"), passenger(uuid.New().String(), "Luis")}},
		{"blank name", []models.PassengerInput{passenger(f.seatIDs[0], "Ana"), passenger(f.seatIDs[1], "  ")}},
		{"bad document", []models.PassengerInput{
			passenger(f.seatIDs[0], "Ana"),
			{ReservationSeatID: f.seatIDs[1], FullName: "Luis", DocumentType: "LICENSE", DocumentNumber: "1"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.forms.Complete(ctx, f.token, tt.passengers)
			require.Error(t, err)
			assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
		})
	}
	assert.Empty(t, f.env.store.passengers)
}

func TestComplete_Expired(t *testing.T) {
	f := setupFormTest(t, 1)
	f.env.clock.Advance(72 * time.Hour)

	_, err := f.forms.Complete(context.Background(), f.token, []models.PassengerInput{passenger(f.seatIDs[0], "Ana")})
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	assert.Empty(t, f.env.store.passengers)
}
