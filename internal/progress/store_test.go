package progress

import (
	"log/slog"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db, slog.Default())
}

func record(bookID int64, status string, ts int64) domain.ProgressRecord {
	return domain.ProgressRecord{BookID: bookID, Status: status, LastUpdated: ts}
}

func TestStore_Upsert(t *testing.T) {
	t.Run("stores first record", func(t *testing.T) {
		store := newTestStore(t)

		got, err := store.Upsert(record(1, domain.StatusReading, 100))
		require.NoError(t, err)
		assert.Equal(t, record(1, domain.StatusReading, 100), got)
	})

	t.Run("newer write wins", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Upsert(record(1, domain.StatusReading, 100))
		require.NoError(t, err)

		got, err := store.Upsert(record(1, domain.StatusFinished, 200))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFinished, got.Status)

		stored, found, err := store.Get(1)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int64(200), stored.LastUpdated)
	})

	t.Run("stale write loses and returns the stored truth", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Upsert(record(1, domain.StatusFinished, 200))
		require.NoError(t, err)

		got, err := store.Upsert(record(1, domain.StatusReading, 100))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFinished, got.Status)
		assert.Equal(t, int64(200), got.LastUpdated)

		stored, _, err := store.Get(1)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFinished, stored.Status)
	})

	t.Run("equal timestamps favor the incoming write", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.Upsert(record(1, domain.StatusReading, 100))
		require.NoError(t, err)

		got, err := store.Upsert(record(1, domain.StatusFinished, 100))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFinished, got.Status)

		// Replaying the same record is idempotent.
		again, err := store.Upsert(record(1, domain.StatusFinished, 100))
		require.NoError(t, err)
		assert.Equal(t, got, again)
	})
}

func TestStore_Get(t *testing.T) {
	store := newTestStore(t)

	_, found, err := store.Get(42)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_All(t *testing.T) {
	t.Run("empty store yields empty slice", func(t *testing.T) {
		store := newTestStore(t)

		records, err := store.All()
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("returns every record", func(t *testing.T) {
		store := newTestStore(t)

		for i := int64(1); i <= 3; i++ {
			_, err := store.Upsert(record(i, domain.StatusUnread, 100+i))
			require.NoError(t, err)
		}

		records, err := store.All()
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})
}
