// Package calibre reads book records out of a Calibre library's
// metadata.db. The database is opened read-only and never written;
// Calibre remains the owner of the catalog.
package calibre

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
	"github.com/shelfsyncapp/shelfsync-agent/internal/errors"
)

// MetadataFile is the catalog database name inside a Calibre library.
const MetadataFile = "metadata.db"

// Load reads all books from the Calibre library at libraryPath.
// Returns errors.ErrNotFound if the directory has no metadata.db.
func Load(ctx context.Context, libraryPath string) ([]domain.Book, error) {
	dbPath := filepath.Join(libraryPath, MetadataFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, errors.NotFoundf("no %s in %s", MetadataFile, libraryPath)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer db.Close()

	// A single writer (Calibre itself) may hold the database; reads
	// only need one connection.
	db.SetMaxOpenConns(1)

	books, err := queryBooks(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	return books, nil
}

// queryBooks runs the catalog query. Authors, tags, and formats are
// aggregated with GROUP_CONCAT subselects so one row per book comes
// back; a book with broken author links simply gets an empty display
// string.
func queryBooks(ctx context.Context, db *sql.DB) ([]domain.Book, error) {
	const q = `
		SELECT
			b.id,
			b.title,
			b.path,
			(SELECT GROUP_CONCAT(a.name, ', ')
			 FROM books_authors_link bal
			 JOIN authors a ON bal.author = a.id
			 WHERE bal.book = b.id) AS authors,
			(SELECT s.name
			 FROM books_series_link bsl
			 JOIN series s ON bsl.series = s.id
			 WHERE bsl.book = b.id) AS series,
			b.series_index,
			(SELECT p.name
			 FROM books_publishers_link bpl
			 JOIN publishers p ON bpl.publisher = p.id
			 WHERE bpl.book = b.id) AS publisher,
			(SELECT GROUP_CONCAT(t.name, ',')
			 FROM books_tags_link btl
			 JOIN tags t ON btl.tag = t.id
			 WHERE btl.book = b.id) AS tags,
			(SELECT GROUP_CONCAT(d.format, ',')
			 FROM data d
			 WHERE d.book = b.id) AS formats
		FROM books b
		ORDER BY b.id`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]domain.Book, 0, 64)
	for rows.Next() {
		var (
			book        domain.Book
			authors     sql.NullString
			series      sql.NullString
			seriesIndex sql.NullFloat64
			publisher   sql.NullString
			tags        sql.NullString
			formats     sql.NullString
		)

		if err := rows.Scan(&book.ID, &book.Title, &book.Path, &authors,
			&series, &seriesIndex, &publisher, &tags, &formats); err != nil {
			return nil, err
		}

		book.Authors = authors.String
		book.Series = series.String
		book.SeriesIndex = seriesIndex.Float64
		book.Publisher = publisher.String
		book.Tags = splitList(tags.String)
		book.Formats = normalizeFormats(splitList(formats.String))

		books = append(books, book)
	}
	return books, rows.Err()
}

// splitList splits a GROUP_CONCAT result into its elements.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeFormats lowercases Calibre's uppercase format names and
// dedupes them, preserving a stable order.
func normalizeFormats(formats []string) []string {
	if len(formats) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(formats))
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(f)
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
