// Package progress persists per-book reading state in a local Badger
// database and reconciles concurrent updates with last-writer-wins.
package progress

import (
	"encoding/json/v2"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
)

const keyPrefix = "progress:"

// Store is a Badger-backed progress record store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewStore creates a progress store on top of an open Badger database.
func NewStore(db *badger.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func recordKey(bookID int64) []byte {
	return fmt.Appendf(nil, "%s%d", keyPrefix, bookID)
}

// Upsert applies an incoming record under last-writer-wins: the
// incoming record is stored unless a stored record carries a strictly
// newer timestamp. Equal timestamps favor the incoming record so a
// replayed update is idempotent. Returns the record that is stored
// after the merge.
func (s *Store) Upsert(incoming domain.ProgressRecord) (domain.ProgressRecord, error) {
	result := incoming

	err := s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(incoming.BookID)

		item, err := txn.Get(key)
		switch {
		case err == badger.ErrKeyNotFound:
			// First record for this book.
		case err != nil:
			return fmt.Errorf("read progress record: %w", err)
		default:
			var stored domain.ProgressRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return fmt.Errorf("decode progress record: %w", err)
			}
			if stored.LastUpdated > incoming.LastUpdated {
				result = stored
				return nil
			}
		}

		data, err := json.Marshal(incoming)
		if err != nil {
			return fmt.Errorf("encode progress record: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return domain.ProgressRecord{}, err
	}

	if result.LastUpdated != incoming.LastUpdated || result.Status != incoming.Status {
		s.logger.Debug("progress update superseded by newer record",
			"book_id", incoming.BookID,
			"stored_ts", result.LastUpdated,
			"incoming_ts", incoming.LastUpdated)
	}
	return result, nil
}

// Get returns the stored record for a book, or false if none exists.
func (s *Store) Get(bookID int64) (domain.ProgressRecord, bool, error) {
	var record domain.ProgressRecord
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(bookID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return domain.ProgressRecord{}, false, fmt.Errorf("read progress record: %w", err)
	}
	return record, found, nil
}

// All returns every stored progress record. An empty store yields an
// empty slice, never nil, so the wire encoding is always a JSON array.
func (s *Store) All() ([]domain.ProgressRecord, error) {
	records := make([]domain.ProgressRecord, 0, 16)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record domain.ProgressRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return fmt.Errorf("decode progress record: %w", err)
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
