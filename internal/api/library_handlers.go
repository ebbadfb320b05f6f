package api

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
	"github.com/shelfsyncapp/shelfsync-agent/internal/http/response"
)

// formatFallback is the order in which download formats are tried when
// the requested one is absent. The requested format is always tried
// first.
var formatFallback = []string{"epub", "pdf", "mobi", "cbz"}

// contentTypes maps ebook formats to their media types.
var contentTypes = map[string]string{
	"epub": "application/epub+zip",
	"pdf":  "application/pdf",
	"mobi": "application/x-mobipocket-ebook",
	"cbz":  "application/vnd.comicbook+zip",
}

// handleManifest returns the full book list. 503 until a library has
// been configured.
func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	if s.library.Path() == "" {
		response.Unavailable(w, "no library configured")
		return
	}

	books := s.library.Books()
	for i := range books {
		books[i].CoverURL = fmt.Sprintf("/api/cover/%d", books[i].ID)
	}

	response.Success(w, books, s.logger)
}

// handleCover serves a book's cached thumbnail, producing it on first
// request. Supports ETag revalidation.
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	book, ok := s.bookFromRequest(w, r)
	if !ok {
		return
	}

	data, err := s.thumbs.Ensure(r.Context(), book, s.library.Path())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	etag := fmt.Sprintf(`"%x"`, sha256.Sum256(data))
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "max-age=86400")
	_, _ = w.Write(data)
}

// handleDownload streams a book file. The requested format is tried
// first, then the fallback order; the format segment may be anything
// ("best" is conventional for "whatever you have").
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if s.library.Path() == "" {
		response.Unavailable(w, "no library configured")
		return
	}

	book, ok := s.bookFromRequest(w, r)
	if !ok {
		return
	}

	requested := strings.ToLower(chi.URLParam(r, "format"))
	bookDir := filepath.Join(s.library.Path(), book.Path)

	path, ext, err := resolveBookFile(bookDir, requested)
	if err != nil {
		s.logger.Info("no downloadable file",
			"book_id", book.ID,
			"requested", requested)
		response.NotFound(w, "no downloadable format available")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(ext))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename=%q`, filepath.Base(path)))
	http.ServeContent(w, r, filepath.Base(path), stat.ModTime(), f)
}

// bookFromRequest resolves the {id} URL parameter against the library
// cache, writing the error response itself on failure.
func (s *Server) bookFromRequest(w http.ResponseWriter, r *http.Request) (domain.Book, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid book id")
		return domain.Book{}, false
	}

	book, err := s.library.Find(id)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return domain.Book{}, false
	}
	return book, true
}

// resolveBookFile finds the file to serve for a format request. Each
// candidate format gets a case-insensitive extension scan of the book
// directory, so EPUB files named by older Calibre versions still match.
func resolveBookFile(bookDir, requested string) (path, ext string, err error) {
	candidates := make([]string, 0, len(formatFallback)+1)
	if requested != "" {
		candidates = append(candidates, requested)
	}
	for _, f := range formatFallback {
		if f != requested {
			candidates = append(candidates, f)
		}
	}

	entries, err := os.ReadDir(bookDir)
	if err != nil {
		return "", "", err
	}

	for _, candidate := range candidates {
		suffix := "." + candidate
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if strings.EqualFold(filepath.Ext(entry.Name()), suffix) {
				return filepath.Join(bookDir, entry.Name()), candidate, nil
			}
		}
	}
	return "", "", fmt.Errorf("no candidate format in %s", bookDir)
}

// contentTypeFor returns the media type for an ebook format.
func contentTypeFor(ext string) string {
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
