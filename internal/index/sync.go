package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/autolink/internal/checksum"
	"github.com/starford/autolink/internal/linker"
	"github.com/starford/autolink/internal/models"
	"github.com/starford/autolink/internal/storage"
)

// Resolver runs the linker over a corpus.
type Resolver interface {
	Resolve(ctx context.Context, corpus []models.Document, o linker.Options) (*models.Result, error)
}

// SyncOptions control a Sync.
type SyncOptions struct {
	Linker linker.Options
	// Force resolves the vault even when nothing changed since the last run.
	Force bool
}

// Sync loads the vault, resolves it and stores the result as a new run.
// When no note changed since the latest run and the linker options are the
// same, the latest run is returned and changed is false.
func Sync(ctx context.Context, db *DB, store storage.Provider, r Resolver, opts SyncOptions, logger *slog.Logger) (run Run, changed bool, err error) {
	db.syncMu.Lock()
	defer db.syncMu.Unlock()

	started := time.Now()

	docs, metas, err := storage.LoadCorpus(store)
	if err != nil {
		return Run{}, false, fmt.Errorf("index: sync: %w", err)
	}
	sums := make(map[string]string, len(metas))
	for _, m := range metas {
		sums[m.Path] = m.Checksum
	}
	vault := checksum.Vault(sums)

	if !opts.Force {
		latest, err := db.LatestRun()
		if err != nil {
			return Run{}, false, err
		}
		if latest != nil && latest.VaultChecksum == vault &&
			latest.CaseInsensitive == opts.Linker.CaseInsensitive &&
			latest.LinkToSelf == opts.Linker.LinkToSelf {
			logger.Debug("sync: vault unchanged", slog.String("run", latest.ID))
			return *latest, false, nil
		}
	}

	res, err := r.Resolve(ctx, docs, opts.Linker)
	if err != nil {
		return Run{}, false, fmt.Errorf("index: sync: %w", err)
	}

	run = Run{
		ID:              uuid.NewString(),
		StartedAt:       started,
		FinishedAt:      time.Now(),
		Notes:           len(docs),
		References:      len(res.References),
		Failures:        len(res.FailedPaths),
		CaseInsensitive: opts.Linker.CaseInsensitive,
		LinkToSelf:      opts.Linker.LinkToSelf,
		VaultChecksum:   vault,
	}
	if err := db.ReplaceRun(run, sums, res); err != nil {
		return Run{}, false, err
	}

	logger.Info("sync: run stored",
		slog.String("run", run.ID),
		slog.Int("notes", run.Notes),
		slog.Int("references", run.References),
		slog.Int("failures", run.Failures),
		slog.Duration("took", run.FinishedAt.Sub(run.StartedAt)))
	return run, true, nil
}
