package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/biid/pointterminal/internal/apperrors"
	"github.com/biid/pointterminal/internal/db"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/repository"
	"github.com/biid/pointterminal/internal/testutil"
)

func pendingRecord(key string) models.PendingSyncRecord {
	return models.PendingSyncRecord{
		ID: ulid.Make().String(),
		Session: models.TransactionSession{
			CustomerID:     "M001234",
			Mode:           models.ModePayment,
			GrossAmount:    1200,
			PointsRedeemed: 300,
			AccrualEnabled: true,
			NetAmount:      900,
			PointsEarned:   9,
			IdempotencyKey: key,
		},
		CreatedAt: time.Now(),
	}
}

func TestPendingRepo(t *testing.T) {
	newRepo := func(t *testing.T) repository.PendingRepo {
		t.Helper()
		return NewStorage(testutil.OpenTestDB(t)).Pending()
	}

	t.Run("append and list", func(t *testing.T) {
		repo := newRepo(t)
		record := pendingRecord("key-1")

		require.NoError(t, repo.Append(t.Context(), record))

		records, err := repo.List(t.Context(), 0)
		require.NoError(t, err)
		require.Len(t, records, 1)

		got := records[0]
		require.Equal(t, record.ID, got.ID)
		require.Equal(t, record.Session.IdempotencyKey, got.Session.IdempotencyKey)
		require.Equal(t, record.Session.GrossAmount, got.Session.GrossAmount)
		require.Equal(t, record.Session.PointsRedeemed, got.Session.PointsRedeemed)
		require.Equal(t, record.Session.NetAmount, got.Session.NetAmount)
		require.Equal(t, models.SessionStatusQueued, got.Session.Status, "listed records are queued by definition")
		require.Zero(t, got.RetryCount)
		require.True(t, got.LastAttemptAt.IsZero())
	})

	t.Run("duplicate idempotency key is a no-op", func(t *testing.T) {
		repo := newRepo(t)

		require.NoError(t, repo.Append(t.Context(), pendingRecord("key-1")))
		require.NoError(t, repo.Append(t.Context(), pendingRecord("key-1")))

		count, err := repo.Count(t.Context())
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("list is oldest first", func(t *testing.T) {
		repo := newRepo(t)

		first := pendingRecord("key-1")
		second := pendingRecord("key-2")
		third := pendingRecord("key-3")
		for _, record := range []models.PendingSyncRecord{first, second, third} {
			require.NoError(t, repo.Append(t.Context(), record))
		}

		records, err := repo.List(t.Context(), 0)
		require.NoError(t, err)
		require.Len(t, records, 3)
		require.Equal(t, first.ID, records[0].ID)
		require.Equal(t, second.ID, records[1].ID)
		require.Equal(t, third.ID, records[2].ID)

		limited, err := repo.List(t.Context(), 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
	})

	t.Run("mark attempt increments retries", func(t *testing.T) {
		repo := newRepo(t)
		record := pendingRecord("key-1")
		require.NoError(t, repo.Append(t.Context(), record))

		at := time.Now()
		require.NoError(t, repo.MarkAttempt(t.Context(), record.ID, at))
		require.NoError(t, repo.MarkAttempt(t.Context(), record.ID, at.Add(time.Minute)))

		records, err := repo.List(t.Context(), 0)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, 2, records[0].RetryCount)
		require.False(t, records[0].LastAttemptAt.IsZero())
	})

	t.Run("remove", func(t *testing.T) {
		repo := newRepo(t)
		record := pendingRecord("key-1")
		require.NoError(t, repo.Append(t.Context(), record))

		require.NoError(t, repo.Remove(t.Context(), record.ID))

		count, err := repo.Count(t.Context())
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("remove unknown id", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.Remove(t.Context(), ulid.Make().String())
		require.ErrorIs(t, err, apperrors.ErrPendingNotFound)
	})

	t.Run("mark attempt unknown id", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.MarkAttempt(t.Context(), ulid.Make().String(), time.Now())
		require.ErrorIs(t, err, apperrors.ErrPendingNotFound)
	})

	t.Run("queue survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "terminal.db")

		conn, err := db.ConnectAndMigrate(path)
		require.NoError(t, err)

		record := pendingRecord("key-1")
		require.NoError(t, NewStorage(conn).Pending().Append(t.Context(), record))
		require.NoError(t, conn.Close())

		conn, err = db.ConnectAndMigrate(path)
		require.NoError(t, err)
		defer conn.Close() // nolint:errcheck

		records, err := NewStorage(conn).Pending().List(t.Context(), 0)
		require.NoError(t, err)
		require.Len(t, records, 1, "pending records must survive a terminal restart")
		require.Equal(t, record.Session.IdempotencyKey, records[0].Session.IdempotencyKey)
	})
}
