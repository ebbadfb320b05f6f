package providers

import (
	"context"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/samber/do/v2"

	"github.com/shelfsyncapp/shelfsync-agent/internal/config"
	"github.com/shelfsyncapp/shelfsync-agent/internal/logger"
	"github.com/shelfsyncapp/shelfsync-agent/internal/media/covers"
	"github.com/shelfsyncapp/shelfsync-agent/internal/media/images"
	"github.com/shelfsyncapp/shelfsync-agent/internal/progress"
)

// DatabaseHandle wraps the Badger database with shutdown capability.
type DatabaseHandle struct {
	*badger.DB
}

// Shutdown implements do.Shutdownable.
func (h *DatabaseHandle) Shutdown() error {
	return h.Close()
}

// ProvideDatabase provides the agent's local key-value database.
func ProvideDatabase(i do.Injector) (*DatabaseHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Data.BasePath, "db")
	opts := badger.DefaultOptions(dbPath).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)
	return &DatabaseHandle{DB: db}, nil
}

// ProvideProgressStore provides the reading progress ledger.
func ProvideProgressStore(i do.Injector) (*progress.Store, error) {
	db := do.MustInvoke[*DatabaseHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return progress.NewStore(db.DB, log.Logger), nil
}

// ProvideImageStorage provides the thumbnail cache directory.
func ProvideImageStorage(i do.Injector) (*images.Storage, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return images.NewStorage(cfg.Data.BasePath)
}

// ThumbnailerHandle wraps the thumbnailer with its worker context.
type ThumbnailerHandle struct {
	*covers.Thumbnailer
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ThumbnailerHandle) Shutdown() error {
	h.cancel()
	return nil
}

// ProvideThumbnailer provides the cover resize worker pool.
func ProvideThumbnailer(i do.Injector) (*ThumbnailerHandle, error) {
	storage := do.MustInvoke[*images.Storage](i)
	log := do.MustInvoke[*logger.Logger](i)

	thumbs := covers.NewThumbnailer(storage, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	thumbs.Start(ctx)

	return &ThumbnailerHandle{Thumbnailer: thumbs, cancel: cancel}, nil
}
