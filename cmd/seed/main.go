// Package main provides a tool that generates a small Calibre-shaped
// library for local testing: a metadata.db plus book directories with
// placeholder covers and EPUB files.
//
// Usage:
//
//	go run ./cmd/seed --out ~/ShelfSync/test-library --books 20
package main

import (
	"bytes"
	"database/sql"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var (
	outDir    = flag.String("out", "test-library", "Output library directory")
	bookCount = flag.Int("books", 20, "Number of books to generate")
)

var (
	authors = []string{
		"Iris Harlow", "Tomas Renn", "Ada Quill", "Marcus Vey",
		"Nina Calloway", "Oskar Lindt",
	}
	seriesNames = []string{"The Ember Cycle", "Saltwater Chronicles", ""}
	tagPool     = []string{"fiction", "sci-fi", "mystery", "history", "essays"}
)

func main() {
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	dbPath := filepath.Join(*outDir, "metadata.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := createSchema(db); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}

	for i := 1; i <= *bookCount; i++ {
		if err := insertBook(db, i); err != nil {
			log.Fatalf("Failed to insert book %d: %v", i, err)
		}
		if err := writeBookFiles(i); err != nil {
			log.Fatalf("Failed to write files for book %d: %v", i, err)
		}
	}

	fmt.Printf("Seeded %d books into %s\n", *bookCount, *outDir)
}

// createSchema creates the subset of Calibre's schema the agent reads.
func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			path TEXT NOT NULL,
			series_index REAL DEFAULT 1.0
		)`,
		`CREATE TABLE IF NOT EXISTS authors (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS books_authors_link (book INTEGER, author INTEGER)`,
		`CREATE TABLE IF NOT EXISTS series (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS books_series_link (book INTEGER, series INTEGER)`,
		`CREATE TABLE IF NOT EXISTS publishers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS books_publishers_link (book INTEGER, publisher INTEGER)`,
		`CREATE TABLE IF NOT EXISTS tags (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS books_tags_link (book INTEGER, tag INTEGER)`,
		`CREATE TABLE IF NOT EXISTS data (book INTEGER, format TEXT NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	seed := func(table string, names []string) error {
		for i, name := range names {
			if _, err := db.Exec(
				fmt.Sprintf("INSERT OR IGNORE INTO %s (id, name) VALUES (?, ?)", table),
				i+1, name); err != nil {
				return err
			}
		}
		return nil
	}

	if err := seed("authors", authors); err != nil {
		return err
	}
	if err := seed("tags", tagPool); err != nil {
		return err
	}
	if _, err := db.Exec("INSERT OR IGNORE INTO publishers (id, name) VALUES (1, 'Lanternfish Press')"); err != nil {
		return err
	}
	for i, name := range seriesNames {
		if name == "" {
			continue
		}
		if _, err := db.Exec("INSERT OR IGNORE INTO series (id, name) VALUES (?, ?)", i+1, name); err != nil {
			return err
		}
	}
	return nil
}

func insertBook(db *sql.DB, id int) error {
	title := fmt.Sprintf("Sample Book %02d", id)
	path := bookDirName(id)

	seriesIdx := float64(id%5) + 1
	if _, err := db.Exec(
		"INSERT INTO books (id, title, path, series_index) VALUES (?, ?, ?, ?)",
		id, title, path, seriesIdx); err != nil {
		return err
	}

	if _, err := db.Exec("INSERT INTO books_authors_link (book, author) VALUES (?, ?)",
		id, rand.Intn(len(authors))+1); err != nil {
		return err
	}
	if id%3 != 0 {
		if _, err := db.Exec("INSERT INTO books_series_link (book, series) VALUES (?, ?)",
			id, id%2+1); err != nil {
			return err
		}
	}
	if _, err := db.Exec("INSERT INTO books_publishers_link (book, publisher) VALUES (?, 1)",
		id); err != nil {
		return err
	}
	if _, err := db.Exec("INSERT INTO books_tags_link (book, tag) VALUES (?, ?)",
		id, rand.Intn(len(tagPool))+1); err != nil {
		return err
	}
	if _, err := db.Exec("INSERT INTO data (book, format) VALUES (?, 'EPUB')", id); err != nil {
		return err
	}
	if id%4 == 0 {
		if _, err := db.Exec("INSERT INTO data (book, format) VALUES (?, 'PDF')", id); err != nil {
			return err
		}
	}
	return nil
}

// writeBookFiles creates the book directory with a cover and a dummy
// EPUB.
func writeBookFiles(id int) error {
	dir := filepath.Join(*outDir, bookDirName(id))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	cover, err := renderCover(id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "cover.jpg"), cover, 0644); err != nil {
		return err
	}

	epub := fmt.Appendf(nil, "placeholder epub payload for book %d\n", id)
	if err := os.WriteFile(
		filepath.Join(dir, fmt.Sprintf("Sample Book %02d.epub", id)), epub, 0644); err != nil {
		return err
	}

	if id%4 == 0 {
		pdf := fmt.Appendf(nil, "%%PDF-1.4 placeholder for book %d\n", id)
		if err := os.WriteFile(
			filepath.Join(dir, fmt.Sprintf("Sample Book %02d.pdf", id)), pdf, 0644); err != nil {
			return err
		}
	}
	return nil
}

func bookDirName(id int) string {
	return fmt.Sprintf("Sample Book %02d (%d)", id, id)
}

// renderCover produces a solid-color JPEG large enough to exercise the
// thumbnailer's downscale path.
func renderCover(id int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 600, 900))
	c := color.RGBA{
		R: uint8(50 + id*37%200),
		G: uint8(80 + id*53%160),
		B: uint8(110 + id*29%140),
		A: 255,
	}
	for y := 0; y < 900; y++ {
		for x := 0; x < 600; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
