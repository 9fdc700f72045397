package ledgerapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/testutil"
)

func newTestClient(t *testing.T) (*Client, *testutil.FakeLedger) {
	t.Helper()

	ledger := testutil.NewFakeLedger(t)
	ledger.AddCustomer("M001234", "Taro Yamada", 2100, models.RankGold)

	client := NewClient(ledger.URL(), Credentials{
		TerminalID: "T-001",
		Secret:     "terminal-secret",
	}, logger.NewNoOpLogger())

	return client, ledger
}

func TestClient_GetProfile(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		client, _ := newTestClient(t)

		customer, err := client.GetProfile(t.Context(), "M001234")

		require.NoError(t, err)
		require.Equal(t, "M001234", customer.ID)
		require.Equal(t, "Taro Yamada", customer.DisplayName)
		require.Equal(t, int64(2100), customer.PointBalance)
		require.Equal(t, models.RankGold, customer.Rank)
	})

	t.Run("unknown member", func(t *testing.T) {
		client, _ := newTestClient(t)

		_, err := client.GetProfile(t.Context(), "M999999")

		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		require.Equal(t, CodeNotFound, lerr.Code)
		require.False(t, Ambiguous(err), "a not-found answer is definite")
	})
}

func TestClient_FinalizePayment(t *testing.T) {
	t.Run("applies idempotency key once", func(t *testing.T) {
		client, ledger := newTestClient(t)

		transactionID, err := client.InitiatePayment(t.Context(), "M001234", 3500)
		require.NoError(t, err)

		req := FinalizePaymentRequest{
			TransactionID:  transactionID,
			CustomerID:     "M001234",
			GrossAmount:    3500,
			PointsEarned:   35,
			IdempotencyKey: "key-1",
		}

		first, err := client.FinalizePayment(t.Context(), req)
		require.NoError(t, err)
		second, err := client.FinalizePayment(t.Context(), req)
		require.NoError(t, err)

		require.Equal(t, int64(2135), first.BalanceAfter)
		require.Equal(t, int64(2135), second.BalanceAfter, "replay must not credit twice")
		require.Equal(t, int64(2135), ledger.Balance("M001234"))
	})

	t.Run("decline is a definite rejection", func(t *testing.T) {
		client, ledger := newTestClient(t)
		ledger.SetDeclining(true)

		transactionID, err := client.InitiatePayment(t.Context(), "M001234", 3500)
		require.NoError(t, err)

		_, err = client.FinalizePayment(t.Context(), FinalizePaymentRequest{
			TransactionID:  transactionID,
			CustomerID:     "M001234",
			GrossAmount:    3500,
			IdempotencyKey: "key-1",
		})

		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		require.Equal(t, CodeRejected, lerr.Code)
		require.False(t, Ambiguous(err))
	})
}

func TestClient_Transport(t *testing.T) {
	t.Run("deadline exceeded is ambiguous", func(t *testing.T) {
		client, ledger := newTestClient(t)
		ledger.SetDelay(time.Second)

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()

		_, err := client.GetProfile(ctx, "M001234")

		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		require.Equal(t, CodeTimeout, lerr.Code)
		require.True(t, Ambiguous(err))
	})

	t.Run("unreachable ledger is ambiguous", func(t *testing.T) {
		client, ledger := newTestClient(t)
		ledger.Server.Close()

		_, err := client.GetProfile(t.Context(), "M001234")

		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		require.Equal(t, CodeUnavailable, lerr.Code)
		require.True(t, Ambiguous(err))
	})

	t.Run("plain errors stay ambiguous", func(t *testing.T) {
		require.True(t, Ambiguous(errors.New("connection reset")))
	})
}

func TestClient_Token(t *testing.T) {
	t.Run("token reused across calls", func(t *testing.T) {
		client, ledger := newTestClient(t)

		_, err := client.GetProfile(t.Context(), "M001234")
		require.NoError(t, err)
		_, err = client.GetProfile(t.Context(), "M001234")
		require.NoError(t, err)
		require.NoError(t, client.Ping(t.Context()))

		require.Equal(t, 1, ledger.Logins(), "one login serves every call until expiry")
	})

	t.Run("bad credentials", func(t *testing.T) {
		ledger := testutil.NewFakeLedger(t)
		client := NewClient(ledger.URL(), Credentials{}, logger.NewNoOpLogger())

		err := client.Ping(t.Context())

		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		require.Equal(t, CodeUnauthorized, lerr.Code)
	})

	t.Run("expired token triggers relogin", func(t *testing.T) {
		client, ledger := newTestClient(t)

		require.NoError(t, client.Ping(t.Context()))
		client.tokens.invalidate()
		require.NoError(t, client.Ping(t.Context()))

		require.Equal(t, 2, ledger.Logins())
	})
}

func TestTokenExpiry(t *testing.T) {
	t.Run("unreadable token falls back to default lifetime", func(t *testing.T) {
		expiry := tokenExpiry("not-a-jwt")

		require.WithinDuration(t, time.Now().Add(tokenDefaultLifetime), expiry, time.Minute)
	})
}
