// Package covers turns the full-size cover images inside a Calibre
// library into cached thumbnails suitable for client list views.
package covers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/shelfsyncapp/shelfsync-agent/internal/domain"
	"github.com/shelfsyncapp/shelfsync-agent/internal/errors"
	"github.com/shelfsyncapp/shelfsync-agent/internal/media/images"
)

const (
	// ThumbWidth and ThumbHeight bound the thumbnail box. Source
	// images are scaled to fit inside it, never upscaled.
	ThumbWidth  = 300
	ThumbHeight = 450

	// jpegQuality for encoded thumbnails.
	jpegQuality = 85

	// defaultWorkers bounds concurrent decodes. Resizing is the only
	// CPU-heavy thing this process does.
	defaultWorkers = 2
)

// sourceNames are the cover filenames Calibre writes into a book
// directory, in preference order.
var sourceNames = []string{"cover.jpg", "cover.png"}

type job struct {
	book  domain.Book
	root  string
	reply chan result
}

type result struct {
	data []byte
	err  error
}

// Thumbnailer resizes covers on a small worker pool and caches the
// results on disk. Requests for an already-cached cover never touch
// the pool.
type Thumbnailer struct {
	storage *images.Storage
	logger  *slog.Logger
	jobs    chan job
	workers int
}

// NewThumbnailer creates a thumbnailer backed by the given storage.
func NewThumbnailer(storage *images.Storage, logger *slog.Logger) *Thumbnailer {
	return &Thumbnailer{
		storage: storage,
		logger:  logger,
		jobs:    make(chan job, 32),
		workers: defaultWorkers,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (t *Thumbnailer) Start(ctx context.Context) {
	for i := 0; i < t.workers; i++ {
		go t.worker(ctx)
	}
}

func (t *Thumbnailer) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-t.jobs:
			data, err := t.process(j.book, j.root)
			select {
			case j.reply <- result{data: data, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Ensure returns the thumbnail bytes for a book, producing and caching
// them on first request. Returns errors.ErrNotFound when the book
// directory holds no cover image.
func (t *Thumbnailer) Ensure(ctx context.Context, book domain.Book, libraryRoot string) ([]byte, error) {
	if data, err := t.storage.Get(book.ID); err == nil {
		return data, nil
	}

	j := job{book: book, root: libraryRoot, reply: make(chan result, 1)}
	select {
	case t.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.reply:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// process resizes a book's cover and stores the thumbnail. A second
// request racing the first finds the cache populated and returns early.
func (t *Thumbnailer) process(book domain.Book, libraryRoot string) ([]byte, error) {
	if data, err := t.storage.Get(book.ID); err == nil {
		return data, nil
	}

	srcPath, err := findSource(filepath.Join(libraryRoot, book.Path))
	if err != nil {
		return nil, err
	}

	data, err := resizeFile(srcPath)
	if err != nil {
		return nil, fmt.Errorf("resize cover for book %d: %w", book.ID, err)
	}

	if err := t.storage.Save(book.ID, data); err != nil {
		return nil, err
	}

	t.logger.Debug("cached cover thumbnail",
		"book_id", book.ID,
		"source", srcPath,
		"bytes", len(data))
	return data, nil
}

// findSource locates the cover image inside a book directory.
func findSource(bookDir string) (string, error) {
	for _, name := range sourceNames {
		p := filepath.Join(bookDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.NotFoundf("no cover image in %s", bookDir)
}

// resizeFile decodes an image file and re-encodes it as a JPEG scaled
// to fit the thumbnail box.
func resizeFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	dst := scaleToFit(src, ThumbWidth, ThumbHeight)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleToFit scales src to fit within maxW x maxH preserving aspect
// ratio. Images already inside the box pass through unscaled.
func scaleToFit(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return src
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	dw := max(int(float64(w)*scale), 1)
	dh := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
