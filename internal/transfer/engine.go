// Package transfer downloads books from peer agents through a bounded
// single-worker queue, publishing progress for every state transition.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
	"github.com/shelfsyncapp/shelfsync-agent/internal/errors"
	"github.com/shelfsyncapp/shelfsync-agent/internal/events"
)

const (
	// queueCapacity bounds the number of pending downloads.
	queueCapacity = 100

	downloadTimeout = 10 * time.Minute
)

// extensions maps response media types back to file extensions when
// the peer sends no usable filename.
var extensions = map[string]string{
	"application/epub+zip":           ".epub",
	"application/pdf":                ".pdf",
	"application/x-mobipocket-ebook": ".mobi",
	"application/vnd.comicbook+zip":  ".cbz",
}

// Engine runs book downloads one at a time off a bounded queue.
type Engine struct {
	httpClient *http.Client
	publisher  events.Publisher
	logger     *slog.Logger

	tasks chan domain.TransferTask

	mu      sync.Mutex
	pending []domain.Book
}

// NewEngine creates a transfer engine. Start must be called before
// enqueued tasks are processed.
func NewEngine(publisher events.Publisher, logger *slog.Logger) *Engine {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Engine{
		httpClient: &http.Client{Timeout: downloadTimeout},
		publisher:  publisher,
		logger:     logger,
		tasks:      make(chan domain.TransferTask, queueCapacity),
	}
}

// Enqueue adds a download task. Returns errors.ErrUnavailable when the
// queue is full. The book becomes visible in Queue before the worker
// can possibly pick it up.
func (e *Engine) Enqueue(task domain.TransferTask) error {
	e.mu.Lock()
	e.pending = append(e.pending, task.Book)
	e.mu.Unlock()

	select {
	case e.tasks <- task:
		return nil
	default:
		e.dequeueLast(task.Book.ID)
		return errors.Unavailable("transfer queue full")
	}
}

// Queue returns a snapshot of books waiting or downloading.
func (e *Engine) Queue() []domain.Book {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Book, len(e.pending))
	copy(out, e.pending)
	return out
}

// QueueLen returns the number of pending books.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Start runs the single download worker until ctx is cancelled. A
// failed transfer is reported and the worker moves on.
func (e *Engine) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-e.tasks:
			if err := e.download(ctx, task); err != nil {
				e.logger.Error("transfer failed",
					"book_id", task.Book.ID,
					"title", task.Book.Title,
					"error", err)
				e.publishProgress(task.Book, 0, domain.TransferError, err.Error())
			}
			e.dequeue(task.Book.ID)
		}
	}
}

// download fetches one book from the peer and writes it under the
// destination root. A partial file is removed on failure.
func (e *Engine) download(ctx context.Context, task domain.TransferTask) error {
	e.publishProgress(task.Book, 0, domain.TransferDownloading, "")

	url := fmt.Sprintf("http://%s:%d/api/download/%d/best",
		task.HostIP, task.HostPort, task.Book.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+task.Token)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(task.DestinationRoot, 0755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	destPath := filepath.Join(task.DestinationRoot, destFilename(task.Book, resp))
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	pw := &progressWriter{
		engine: e,
		book:   task.Book,
		total:  resp.ContentLength,
	}
	_, err = io.Copy(f, io.TeeReader(resp.Body, pw))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("write file: %w", err)
	}

	e.publishProgress(task.Book, 1.0, domain.TransferCompleted, "")
	e.logger.Info("transfer complete",
		"book_id", task.Book.ID,
		"title", task.Book.Title,
		"path", destPath)
	return nil
}

// dequeue drops a book from the visible queue. The worker processes
// tasks in order, so the first match is the entry whose task just ran.
func (e *Engine) dequeue(bookID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, b := range e.pending {
		if b.ID == bookID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// dequeueLast drops the most recently appended entry for a book. Used
// to roll back a rejected enqueue without evicting an earlier queued
// copy of the same book.
func (e *Engine) dequeueLast(bookID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.pending) - 1; i >= 0; i-- {
		if e.pending[i].ID == bookID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// publishProgress emits one progress event. The active transfer always
// sits at position zero; only the total conveys queue depth.
func (e *Engine) publishProgress(book domain.Book, progress float64, status, errMsg string) {
	e.publisher.Publish(events.EventSyncProgress, domain.TransferProgress{
		BookID:        book.ID,
		Title:         book.Title,
		Progress:      progress,
		Status:        status,
		Error:         errMsg,
		QueuePosition: 0,
		QueueTotal:    e.QueueLen(),
	})
}

// destFilename picks the output filename: the peer's Content-Disposition
// when present, otherwise the title plus an extension inferred from the
// content type.
func destFilename(book domain.Book, resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(params["filename"]); name != "" && name != "." {
				return name
			}
		}
	}

	ext := ".bin"
	ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if e, ok := extensions[ct]; ok {
		ext = e
	}
	return sanitize(book.Title) + ext
}

// sanitize strips path separators and other characters unwelcome in
// filenames.
func sanitize(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	out := strings.TrimSpace(replacer.Replace(name))
	if out == "" {
		return "untitled"
	}
	return out
}

// progressWriter publishes one download progress event per chunk as
// bytes flow through it. Progress stays at 0 when the remote sent no
// content length.
type progressWriter struct {
	engine  *Engine
	book    domain.Book
	total   int64
	written int64
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))

	progress := 0.0
	if w.total > 0 {
		progress = float64(w.written) / float64(w.total)
	}
	w.engine.publishProgress(w.book, progress, domain.TransferDownloading, "")
	return len(p), nil
}
