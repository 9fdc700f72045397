package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/models"
)

func TestMaxRedeemable(t *testing.T) {
	tests := []struct {
		name     string
		balance  int64
		gross    int64
		expected int64
	}{
		{"balance covers amount", 2100, 1200, 1200},
		{"amount exceeds balance", 500, 1200, 500},
		{"equal", 1000, 1000, 1000},
		{"zero balance", 0, 1200, 0},
		{"zero amount", 2100, 0, 0},
		{"negative balance treated as zero", -10, 1200, 0},
		{"negative amount treated as zero", 2100, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxRedeemable(tt.balance, tt.gross)

			require.Equal(t, tt.expected, got)
			require.GreaterOrEqual(t, got, int64(0), "max redeemable must never be negative")
		})
	}
}

func TestNetAmount(t *testing.T) {
	t.Run("subtracts redemption", func(t *testing.T) {
		net, err := NetAmount(3500, 0)

		require.NoError(t, err)
		require.Equal(t, int64(3500), net)
	})

	t.Run("full redemption nets to zero", func(t *testing.T) {
		net, err := NetAmount(1200, 1200)

		require.NoError(t, err)
		require.Equal(t, int64(0), net)
	})

	t.Run("redeeming past gross is rejected", func(t *testing.T) {
		_, err := NetAmount(1200, 1201)

		require.ErrorIs(t, err, apperrors.ErrRedeemExceedsMax)
	})

	t.Run("negative input is rejected", func(t *testing.T) {
		_, err := NetAmount(-1, 0)
		require.ErrorIs(t, err, apperrors.ErrAmountInvalid)

		_, err = NetAmount(100, -1)
		require.ErrorIs(t, err, apperrors.ErrAmountInvalid)
	})
}

func TestEarnedPoints(t *testing.T) {
	t.Run("one percent floored", func(t *testing.T) {
		require.Equal(t, int64(35), EarnedPoints(3500, true))
		require.Equal(t, int64(0), EarnedPoints(99, true))
		require.Equal(t, int64(1), EarnedPoints(199, true))
	})

	t.Run("zero whenever accrual disabled", func(t *testing.T) {
		for _, net := range []int64{0, 1, 99, 100, 3500, 1_000_000} {
			require.Zero(t, EarnedPoints(net, false), "net=%d", net)
		}
	})

	t.Run("zero net earns nothing", func(t *testing.T) {
		require.Zero(t, EarnedPoints(0, true))
	})
}

func TestRecalculate(t *testing.T) {
	t.Run("scenario full redemption", func(t *testing.T) {
		s := &models.TransactionSession{
			GrossAmount:    1200,
			PointsRedeemed: 1200,
			AccrualEnabled: true,
		}

		Recalculate(s, 2100)

		require.Equal(t, int64(0), s.NetAmount)
		require.Equal(t, int64(0), s.PointsEarned)
	})

	t.Run("scenario no redemption", func(t *testing.T) {
		s := &models.TransactionSession{
			GrossAmount:    3500,
			PointsRedeemed: 0,
			AccrualEnabled: true,
		}

		Recalculate(s, 2100)

		require.Equal(t, int64(3500), s.NetAmount)
		require.Equal(t, int64(35), s.PointsEarned)
	})

	t.Run("stale redemption clamps when amount shrinks", func(t *testing.T) {
		s := &models.TransactionSession{
			GrossAmount:    1000,
			PointsRedeemed: 1000,
			AccrualEnabled: true,
		}
		Recalculate(s, 2100)

		s.GrossAmount = 300
		Recalculate(s, 2100)

		require.Equal(t, int64(300), s.PointsRedeemed, "redemption must clamp to new max")
		require.Equal(t, int64(0), s.NetAmount)
	})

	t.Run("toggling accrual off zeroes earned points", func(t *testing.T) {
		s := &models.TransactionSession{
			GrossAmount:    3500,
			AccrualEnabled: true,
		}
		Recalculate(s, 0)
		require.Equal(t, int64(35), s.PointsEarned)

		s.AccrualEnabled = false
		Recalculate(s, 0)

		require.Zero(t, s.PointsEarned)
	})

	t.Run("net never negative", func(t *testing.T) {
		for gross := int64(0); gross <= 50; gross += 7 {
			for balance := int64(0); balance <= 50; balance += 11 {
				s := &models.TransactionSession{
					GrossAmount:    gross,
					PointsRedeemed: MaxRedeemable(balance, gross),
					AccrualEnabled: true,
				}
				Recalculate(s, balance)

				require.GreaterOrEqual(t, s.NetAmount, int64(0))
				require.LessOrEqual(t, s.PointsRedeemed, gross)
				require.LessOrEqual(t, s.PointsRedeemed, max(balance, 0))
			}
		}
	})
}
