package api

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfsyncapp/shelfsync-agent/internal/auth"
	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
	"github.com/shelfsyncapp/shelfsync-agent/internal/events"
	"github.com/shelfsyncapp/shelfsync-agent/internal/library"
	"github.com/shelfsyncapp/shelfsync-agent/internal/media/covers"
	"github.com/shelfsyncapp/shelfsync-agent/internal/media/images"
	"github.com/shelfsyncapp/shelfsync-agent/internal/progress"
)

type testEnv struct {
	server  *Server
	auth    *auth.Service
	library *library.Service
	storage *images.Storage
	libDir  string
	token   string
}

// newTestEnv wires a server against a real temp library directory.
// The library starts unloaded; call loadLibrary to populate it.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := slog.Default()

	authService, err := auth.NewService(log)
	require.NoError(t, err)

	libraryService := library.NewService(nil, nil, log)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	progressStore := progress.NewStore(db, log)

	storage, err := images.NewStorage(t.TempDir())
	require.NoError(t, err)
	thumbs := covers.NewThumbnailer(storage, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	thumbs.Start(ctx)

	bus := events.NewBus(log)
	sseHandler := events.NewHandler(bus, log)

	server := NewServer(authService, libraryService, progressStore, thumbs, sseHandler, 8080, "testhost", log)

	token, err := authService.CheckPIN(authService.PIN())
	require.NoError(t, err)

	return &testEnv{
		server:  server,
		auth:    authService,
		library: libraryService,
		storage: storage,
		libDir:  t.TempDir(),
		token:   token,
	}
}

// loadLibrary installs a snapshot and creates the book directories on
// disk. Books get an EPUB file and, when withCover is set, a real JPEG
// cover.
func (e *testEnv) loadLibrary(t *testing.T, books []domain.Book, withCover bool) {
	t.Helper()

	for _, b := range books {
		dir := filepath.Join(e.libDir, b.Path)
		require.NoError(t, os.MkdirAll(dir, 0755))
		for _, f := range b.Formats {
			name := b.Title + "." + strings.ToUpper(f)
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("content of "+b.Title), 0644))
		}
		if withCover {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.jpg"), testJPEG(t), 0644))
		}
	}

	loader := func(context.Context, string) ([]domain.Book, error) { return books, nil }
	e.library = library.NewService(loader, nil, slog.Default())
	_, err := e.library.Load(context.Background(), e.libDir)
	require.NoError(t, err)
	e.server.library = e.library
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 600, 900))
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func (e *testEnv) request(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestCheckPIN(t *testing.T) {
	t.Run("correct pin returns a working token", func(t *testing.T) {
		env := newTestEnv(t)

		body, err := json.Marshal(map[string]string{"pin": env.auth.PIN()})
		require.NoError(t, err)

		rec := env.request(http.MethodPost, "/api/check-pin", "", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, env.auth.ValidateToken(resp.Token))
	})

	t.Run("wrong pin is rejected", func(t *testing.T) {
		env := newTestEnv(t)

		wrong := "0000"
		if env.auth.PIN() == wrong {
			wrong = "0001"
		}
		body, err := json.Marshal(map[string]string{"pin": wrong})
		require.NoError(t, err)

		rec := env.request(http.MethodPost, "/api/check-pin", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.request(http.MethodPost, "/api/check-pin", "", []byte("{not json"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	// Missing header, malformed header, and unknown token all yield the
	// identical response.
	cases := map[string]*httptest.ResponseRecorder{
		"missing": env.request(http.MethodGet, "/api/manifest", "", nil),
		"unknown": env.request(http.MethodGet, "/api/manifest", "not-issued", nil),
	}
	malformed := httptest.NewRequest(http.MethodGet, "/api/manifest", nil)
	malformed.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, malformed)
	cases["malformed"] = rec

	for name, got := range cases {
		assert.Equal(t, http.StatusUnauthorized, got.Code, name)
		assert.Equal(t, "invalid token", got.Body.String(), name)
	}
}

func TestManifest(t *testing.T) {
	t.Run("unconfigured library is unavailable", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.request(http.MethodGet, "/api/manifest", env.token, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("returns books with cover urls", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadLibrary(t, []domain.Book{
			{ID: 1, Title: "First", Path: "a/First (1)", Formats: []string{"epub"}},
			{ID: 2, Title: "Second", Path: "a/Second (2)", Formats: []string{"epub"}},
		}, false)

		rec := env.request(http.MethodGet, "/api/manifest", env.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var books []domain.Book
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
		require.Len(t, books, 2)
		assert.Equal(t, "/api/cover/1", books[0].CoverURL)
		assert.Equal(t, "/api/cover/2", books[1].CoverURL)
	})
}

func TestDownload(t *testing.T) {
	book := domain.Book{ID: 1, Title: "Dune", Path: "h/Dune (1)", Formats: []string{"epub"}}

	t.Run("serves the requested format", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadLibrary(t, []domain.Book{book}, false)

		rec := env.request(http.MethodGet, "/api/download/1/epub", env.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/epub+zip", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "Dune.EPUB")
		assert.Equal(t, "content of Dune", rec.Body.String())
	})

	t.Run("falls back when the requested format is absent", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadLibrary(t, []domain.Book{book}, false)

		rec := env.request(http.MethodGet, "/api/download/1/mobi", env.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/epub+zip", rec.Header().Get("Content-Type"))
	})

	t.Run("best picks the first available format", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadLibrary(t, []domain.Book{book}, false)

		rec := env.request(http.MethodGet, "/api/download/1/best", env.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/epub+zip", rec.Header().Get("Content-Type"))
	})

	t.Run("no files at all is not found", func(t *testing.T) {
		env := newTestEnv(t)
		bare := domain.Book{ID: 3, Title: "Empty", Path: "h/Empty (3)"}
		env.loadLibrary(t, []domain.Book{bare}, false)

		rec := env.request(http.MethodGet, "/api/download/3/epub", env.token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown book is not found", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadLibrary(t, []domain.Book{book}, false)

		rec := env.request(http.MethodGet, "/api/download/99/epub", env.token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unconfigured library is unavailable", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.request(http.MethodGet, "/api/download/1/epub", env.token, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestCover(t *testing.T) {
	book := domain.Book{ID: 1, Title: "Dune", Path: "h/Dune (1)", Formats: []string{"epub"}}

	t.Run("produces and serves a thumbnail", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadLibrary(t, []domain.Book{book}, true)

		rec := env.request(http.MethodGet, "/api/cover/1", env.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
		assert.NotEmpty(t, rec.Header().Get("ETag"))

		// The thumbnail is a real JPEG inside the bounding box.
		img, err := jpeg.Decode(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		assert.LessOrEqual(t, img.Bounds().Dx(), covers.ThumbWidth)
		assert.LessOrEqual(t, img.Bounds().Dy(), covers.ThumbHeight)

		assert.True(t, env.storage.Exists(1))
	})

	t.Run("revalidates with etag", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadLibrary(t, []domain.Book{book}, true)

		first := env.request(http.MethodGet, "/api/cover/1", env.token, nil)
		require.Equal(t, http.StatusOK, first.Code)

		req := httptest.NewRequest(http.MethodGet, "/api/cover/1", nil)
		req.Header.Set("Authorization", "Bearer "+env.token)
		req.Header.Set("If-None-Match", first.Header().Get("ETag"))
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotModified, rec.Code)
	})

	t.Run("missing source cover is not found and not cached", func(t *testing.T) {
		env := newTestEnv(t)
		env.loadLibrary(t, []domain.Book{book}, false)

		rec := env.request(http.MethodGet, "/api/cover/1", env.token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.False(t, env.storage.Exists(1))
	})
}

func TestProgress(t *testing.T) {
	post := func(t *testing.T, env *testEnv, bookID int64, status string) domain.ProgressRecord {
		t.Helper()

		body, err := json.Marshal(map[string]any{"book_id": bookID, "status": status})
		require.NoError(t, err)
		rec := env.request(http.MethodPost, "/api/progress", env.token, body)
		require.Equal(t, http.StatusOK, rec.Code)

		var stored domain.ProgressRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
		return stored
	}

	t.Run("upserts are timestamped at receipt", func(t *testing.T) {
		env := newTestEnv(t)

		first := post(t, env, 1, domain.StatusReading)
		assert.Equal(t, int64(1), first.BookID)
		assert.Equal(t, domain.StatusReading, first.Status)
		assert.Positive(t, first.LastUpdated)

		// A later post for the same book supersedes the stored record.
		second := post(t, env, 1, domain.StatusFinished)
		assert.Equal(t, domain.StatusFinished, second.Status)
		assert.GreaterOrEqual(t, second.LastUpdated, first.LastUpdated)

		post(t, env, 2, domain.StatusUnread)

		rec := env.request(http.MethodGet, "/api/progress", env.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var all []domain.ProgressRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
		require.Len(t, all, 2)

		byID := map[int64]domain.ProgressRecord{}
		for _, r := range all {
			byID[r.BookID] = r
		}
		assert.Equal(t, domain.StatusFinished, byID[1].Status)
		assert.Equal(t, domain.StatusUnread, byID[2].Status)
	})

	t.Run("empty store returns an empty array", func(t *testing.T) {
		env := newTestEnv(t)

		rec := env.request(http.MethodGet, "/api/progress", env.token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		env := newTestEnv(t)

		body, err := json.Marshal(map[string]any{"book_id": 1, "status": "paused"})
		require.NoError(t, err)

		rec := env.request(http.MethodPost, "/api/progress", env.token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a missing book id", func(t *testing.T) {
		env := newTestEnv(t)

		body, err := json.Marshal(map[string]any{"status": domain.StatusReading})
		require.NoError(t, err)

		rec := env.request(http.MethodPost, "/api/progress", env.token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestConnectionInfo(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodGet, "/api/connection-info", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info domain.ConnectionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 8080, info.Port)
	assert.Equal(t, "testhost", info.Hostname)
	assert.NotEmpty(t, info.IP)
	// The pairing PIN must never cross this endpoint.
	assert.Empty(t, info.PIN)
	assert.NotContains(t, rec.Body.String(), `"pin"`)
}
