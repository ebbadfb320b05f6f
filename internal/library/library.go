// Package library owns the in-memory snapshot of the served Calibre
// library: the library path and the cached book list.
//
// The cache is authoritative for every request until the next explicit
// refresh; handlers never touch the catalog database directly.
package library

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shelfsyncapp/shelfsync-agent/internal/calibre"
	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
	"github.com/shelfsyncapp/shelfsync-agent/internal/errors"
	"github.com/shelfsyncapp/shelfsync-agent/internal/events"
)

// Loader produces the book list for a library path.
// calibre.Load is the production implementation.
type Loader func(ctx context.Context, libraryPath string) ([]domain.Book, error)

// Service holds the library path and the cached book list.
// Path and book list are guarded by independent locks; values are
// cloned out so no lock is held across I/O.
type Service struct {
	loader    Loader
	publisher events.Publisher
	logger    *slog.Logger

	pathMu sync.RWMutex
	path   string

	booksMu sync.RWMutex
	books   []domain.Book
}

// NewService creates a library service. A nil loader defaults to
// calibre.Load.
func NewService(loader Loader, publisher events.Publisher, logger *slog.Logger) *Service {
	if loader == nil {
		loader = calibre.Load
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		loader:    loader,
		publisher: publisher,
		logger:    logger,
	}
}

// Load reads the catalog at libraryPath and, on success, replaces the
// cached book list and remembered path wholesale. On failure the
// previous cache is kept untouched.
func (s *Service) Load(ctx context.Context, libraryPath string) ([]domain.Book, error) {
	books, err := s.loader(ctx, libraryPath)
	if err != nil {
		s.logger.Warn("library load failed, keeping previous snapshot",
			"path", libraryPath,
			"error", err)
		return nil, err
	}

	s.pathMu.Lock()
	s.path = libraryPath
	s.pathMu.Unlock()

	s.booksMu.Lock()
	s.books = books
	s.booksMu.Unlock()

	s.logger.Info("library snapshot refreshed",
		"path", libraryPath,
		"books", len(books))
	s.publisher.Publish(events.EventLibraryUpdated, map[string]any{
		"path":  libraryPath,
		"books": len(books),
	})

	return s.Books(), nil
}

// Refresh reloads the catalog from the current path.
// Returns errors.ErrUnavailable if no library has been loaded yet.
func (s *Service) Refresh(ctx context.Context) ([]domain.Book, error) {
	path := s.Path()
	if path == "" {
		return nil, errors.Unavailable("no library loaded")
	}
	return s.Load(ctx, path)
}

// Path returns the current library path, or "" when none is loaded.
func (s *Service) Path() string {
	s.pathMu.RLock()
	defer s.pathMu.RUnlock()
	return s.path
}

// Books returns a copy of the cached book list.
func (s *Service) Books() []domain.Book {
	s.booksMu.RLock()
	defer s.booksMu.RUnlock()

	out := make([]domain.Book, len(s.books))
	copy(out, s.books)
	return out
}

// Count returns the number of cached books.
func (s *Service) Count() int {
	s.booksMu.RLock()
	defer s.booksMu.RUnlock()
	return len(s.books)
}

// Find returns the cached book with the given ID.
func (s *Service) Find(bookID int64) (domain.Book, error) {
	s.booksMu.RLock()
	defer s.booksMu.RUnlock()

	for _, b := range s.books {
		if b.ID == bookID {
			return b, nil
		}
	}
	return domain.Book{}, errors.NotFoundf("book %d not found", bookID)
}
