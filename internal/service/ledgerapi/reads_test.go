package ledgerapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biid/pointterminal/internal/cache"
	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/repository/sqlite"
	"github.com/biid/pointterminal/internal/testutil"
)

func newCachedReads(t *testing.T) (*CachedReads, *testutil.FakeLedger) {
	t.Helper()

	ledger := testutil.NewFakeLedger(t)
	ledger.AddCustomer("M001234", "Taro Yamada", 2100, models.RankGold)

	client := NewClient(ledger.URL(), Credentials{
		TerminalID: "T-001",
		Secret:     "terminal-secret",
	}, logger.NewNoOpLogger())

	agent := cache.NewAgent(sqlite.NewStorage(testutil.OpenTestDB(t)).Cache(), logger.NewNoOpLogger())

	return NewCachedReads(client, agent), ledger
}

func TestCachedReads_GetProfile(t *testing.T) {
	t.Run("live profile populates the cache", func(t *testing.T) {
		reads, _ := newCachedReads(t)

		customer, err := reads.GetProfile(t.Context(), "M001234")

		require.NoError(t, err)
		require.Equal(t, int64(2100), customer.PointBalance)
	})

	t.Run("falls back to cached profile when ledger is down", func(t *testing.T) {
		reads, ledger := newCachedReads(t)

		_, err := reads.GetProfile(t.Context(), "M001234")
		require.NoError(t, err)

		ledger.Server.Close()

		customer, err := reads.GetProfile(t.Context(), "M001234")
		require.NoError(t, err, "cached balance must keep the terminal identifying members")
		require.Equal(t, "M001234", customer.ID)
		require.Equal(t, int64(2100), customer.PointBalance)
	})

	t.Run("no cache and no ledger fails", func(t *testing.T) {
		reads, ledger := newCachedReads(t)
		ledger.Server.Close()

		_, err := reads.GetProfile(t.Context(), "M001234")

		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		require.Equal(t, CodeUnavailable, lerr.Code)
	})
}

func TestCachedReads_PointsHistory(t *testing.T) {
	t.Run("history readable offline", func(t *testing.T) {
		reads, ledger := newCachedReads(t)

		live, stale, err := reads.PointsHistory(t.Context(), "M001234")
		require.NoError(t, err)
		require.False(t, stale)
		require.JSONEq(t, `[]`, string(live))

		ledger.Server.Close()

		cached, stale, err := reads.PointsHistory(t.Context(), "M001234")
		require.NoError(t, err)
		require.True(t, stale, "offline history comes from the cache")
		require.Equal(t, live, cached)
	})
}

func TestCachedReads_Resource(t *testing.T) {
	t.Run("static resources are cache first", func(t *testing.T) {
		reads, ledger := newCachedReads(t)

		// /health doubles as a fetchable resource for the fake ledger.
		first, err := reads.Resource(t.Context(), "/health")
		require.NoError(t, err)

		ledger.Server.Close()

		second, err := reads.Resource(t.Context(), "/health")
		require.NoError(t, err, "a cached static resource never needs the network again")
		require.Equal(t, first, second)
	})

	t.Run("unknown resource misses", func(t *testing.T) {
		reads, _ := newCachedReads(t)

		_, err := reads.Resource(t.Context(), "/terminal/app.js")

		var lerr *Error
		require.ErrorAs(t, err, &lerr)
		require.Equal(t, CodeNotFound, lerr.Code)
	})
}
