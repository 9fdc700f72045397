// Package ledger holds the point calculator: pure functions over amounts and
// balances, no side effects.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/models"
)

// Accrual is a flat 1% of the net amount regardless of member rank.
var accrualRate = decimal.New(1, -2)

// MaxRedeemable returns how many points may be spent against a gross amount.
// Never negative.
func MaxRedeemable(balance, gross int64) int64 {
	if balance < 0 {
		balance = 0
	}
	if gross < 0 {
		gross = 0
	}
	if balance < gross {
		return balance
	}
	return gross
}

// NetAmount returns the payable amount after redemption. Redeeming more than
// the gross amount is a boundary violation, not something to clamp here.
func NetAmount(gross, redeemed int64) (int64, error) {
	if gross < 0 || redeemed < 0 {
		return 0, apperrors.ErrAmountInvalid
	}
	if redeemed > gross {
		return 0, apperrors.ErrRedeemExceedsMax
	}
	return gross - redeemed, nil
}

// EarnedPoints returns floor(net * 1%) when accrual is enabled, zero otherwise.
// Rounding is always toward zero.
func EarnedPoints(net int64, accrualEnabled bool) int64 {
	if !accrualEnabled || net <= 0 {
		return 0
	}
	return decimal.NewFromInt(net).Mul(accrualRate).Floor().IntPart()
}

// Recalculate reapplies the calculator to a draft session after any edit.
// A redemption left stale by a shrinking gross amount is clamped down to the
// new maximum; this is the single place where clamping is allowed.
func Recalculate(s *models.TransactionSession, balance int64) {
	max := MaxRedeemable(balance, s.GrossAmount)
	if s.PointsRedeemed > max {
		s.PointsRedeemed = max
	}
	s.NetAmount = s.GrossAmount - s.PointsRedeemed
	s.PointsEarned = EarnedPoints(s.NetAmount, s.AccrualEnabled)
}
