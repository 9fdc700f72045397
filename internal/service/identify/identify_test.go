package identify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
)

type fakeReader struct {
	customers map[string]models.Customer
	calls     []string
}

func (r *fakeReader) GetProfile(_ context.Context, customerID string) (models.Customer, error) {
	r.calls = append(r.calls, customerID)
	customer, ok := r.customers[customerID]
	if !ok {
		return models.Customer{}, apperrors.ErrCustomerNotFound
	}
	return customer, nil
}

func newFakeReader() *fakeReader {
	return &fakeReader{customers: map[string]models.Customer{
		"M001234": {ID: "M001234", DisplayName: "Taro Yamada", PointBalance: 2100, Rank: models.RankGold},
		"04A1B2":  {ID: "04A1B2", DisplayName: "Hanako Sato", PointBalance: 450, Rank: models.RankRegular},
	}}
}

func TestIdentifier(t *testing.T) {
	t.Run("manual entry ok", func(t *testing.T) {
		id := New(newFakeReader(), logger.NewNoOpLogger())

		customer, err := id.Lookup(t.Context(), models.IdentifyMethodManual, "  m001234 ")

		require.NoError(t, err)
		require.Equal(t, "M001234", customer.ID)
		require.Equal(t, int64(2100), customer.PointBalance)
		require.Equal(t, models.RankGold, customer.Rank)
	})

	t.Run("nfc uid is normalized", func(t *testing.T) {
		reader := newFakeReader()
		id := New(reader, logger.NewNoOpLogger())

		customer, err := id.Lookup(t.Context(), models.IdentifyMethodNFC, "04a1b2")

		require.NoError(t, err)
		require.Equal(t, "04A1B2", customer.ID)
	})

	t.Run("qr scheme is required", func(t *testing.T) {
		id := New(newFakeReader(), logger.NewNoOpLogger())

		_, err := id.Lookup(t.Context(), models.IdentifyMethodQR, "M001234")

		require.ErrorIs(t, err, apperrors.ErrCodeUnreadable)
	})

	t.Run("qr ok", func(t *testing.T) {
		id := New(newFakeReader(), logger.NewNoOpLogger())

		customer, err := id.Lookup(t.Context(), models.IdentifyMethodQR, "biid:M001234")

		require.NoError(t, err)
		require.Equal(t, "M001234", customer.ID)
	})

	t.Run("unknown member fails with lookup error", func(t *testing.T) {
		id := New(newFakeReader(), logger.NewNoOpLogger())

		_, err := id.Lookup(t.Context(), models.IdentifyMethodManual, "M999999")

		require.ErrorIs(t, err, apperrors.ErrCustomerNotFound)
	})

	t.Run("empty reads never reach the ledger", func(t *testing.T) {
		reader := newFakeReader()
		id := New(reader, logger.NewNoOpLogger())

		_, err := id.Lookup(t.Context(), models.IdentifyMethodNFC, "   ")
		require.ErrorIs(t, err, apperrors.ErrCodeUnreadable)

		_, err = id.Lookup(t.Context(), models.IdentifyMethodManual, "")
		require.ErrorIs(t, err, apperrors.ErrCodeUnreadable)

		require.Empty(t, reader.calls)
	})

	t.Run("unknown method fails", func(t *testing.T) {
		id := New(newFakeReader(), logger.NewNoOpLogger())

		_, err := id.Lookup(t.Context(), "retina", "whatever")

		require.ErrorIs(t, err, apperrors.ErrUnknownMethod)
	})
}
