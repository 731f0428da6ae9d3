// Package linkservice ties the vault, the linker and the index together for
// the API, MCP and CLI front ends.
package linkservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/lo"

	"github.com/starford/autolink/internal/apperr"
	"github.com/starford/autolink/internal/checksum"
	"github.com/starford/autolink/internal/index"
	"github.com/starford/autolink/internal/linker"
	"github.com/starford/autolink/internal/models"
	"github.com/starford/autolink/internal/rewrite"
	"github.com/starford/autolink/internal/storage"
)

// SyncListener is told about every Sync that stored a new run or failed.
type SyncListener func(run index.Run, err error)

// ApplyResult describes the links inserted into one note.
type ApplyResult struct {
	Path     string `json:"path"`
	Applied  int    `json:"applied"`
	Skipped  int    `json:"skipped"`
	Checksum string `json:"checksum"`
	DryRun   bool   `json:"dry_run"`
	Content  string `json:"content,omitempty"`
}

// BacklinksResult lists the references pointing at a note.
type BacklinksResult struct {
	Target     string             `json:"target"`
	Title      string             `json:"title"`
	Aliases    []string           `json:"aliases"`
	References []models.Reference `json:"references"`
}

// Service coordinates storage, linker and index operations.
type Service struct {
	store    storage.Provider
	db       *index.DB
	linker   *linker.Linker
	opts     linker.Options
	logger   *slog.Logger
	listener SyncListener
}

// NewService creates a new link service. opts are the vault-wide linker
// settings used by Sync.
func NewService(store storage.Provider, db *index.DB, lk *linker.Linker, opts linker.Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, linker: lk, opts: opts, logger: logger}
}

// OnSync registers l to be called after Syncs started through the service.
func (s *Service) OnSync(l SyncListener) { s.listener = l }

// Options returns the vault-wide linker settings.
func (s *Service) Options() linker.Options { return s.opts }

// Sync resolves the vault and stores the run. Unchanged vaults are skipped
// unless force is set.
func (s *Service) Sync(ctx context.Context, force bool) (index.Run, bool, error) {
	run, changed, err := index.Sync(ctx, s.db, s.store, s.linker, index.SyncOptions{Linker: s.opts, Force: force}, s.logger)
	if s.listener != nil && (err != nil || changed) {
		s.listener(run, err)
	}
	return run, changed, err
}

// LatestRun returns the most recent run, or apperr.ErrNotFound before the
// first Sync.
func (s *Service) LatestRun(_ context.Context) (*index.Run, error) {
	run, err := s.db.LatestRun()
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperr.ErrNotFound
	}
	return run, nil
}

// Runs returns the stored run history, newest first.
func (s *Service) Runs(_ context.Context, limit int) ([]index.Run, error) {
	return s.db.Runs(limit)
}

// References lists stored references, optionally filtered by source and
// target path.
func (s *Service) References(_ context.Context, source, target string) ([]models.Reference, error) {
	return s.db.References(source, target)
}

// Backlinks returns every reference pointing at target.
func (s *Service) Backlinks(_ context.Context, target string) (*BacklinksResult, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("%w: target is required", apperr.ErrInvalidInput)
	}
	note, err := s.db.Note(target)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, apperr.ErrNotFound
	}
	refs, err := s.db.Backlinks(target)
	if err != nil {
		return nil, err
	}
	return &BacklinksResult{
		Target:     target,
		Title:      note.Title,
		Aliases:    nonNilSlice(note.Aliases),
		References: refs,
	}, nil
}

// Failures lists the notes the latest run could not parse.
func (s *Service) Failures(_ context.Context) ([]index.Failure, error) {
	return s.db.Failures()
}

// ResolveDocuments runs the linker over an ad-hoc corpus without touching
// the vault or the index.
func (s *Service) ResolveDocuments(ctx context.Context, docs []models.Document, o linker.Options) (*models.Result, error) {
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Path) == "" {
			return nil, fmt.Errorf("%w: document path is required", apperr.ErrInvalidInput)
		}
		if _, dup := seen[d.Path]; dup {
			return nil, fmt.Errorf("%w: duplicate document path %s", apperr.ErrInvalidInput, d.Path)
		}
		seen[d.Path] = struct{}{}
	}
	return s.linker.Resolve(ctx, docs, o)
}

// ResolveDraft finds the references content would have if it were saved at
// path in the vault. The vault itself is not modified. A draft that cannot
// be parsed yields an apperr.ErrInvalidInput error.
func (s *Service) ResolveDraft(ctx context.Context, path string, content []byte) ([]models.Reference, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: path is required", apperr.ErrInvalidInput)
	}
	docs, _, err := storage.LoadCorpus(s.store)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range docs {
		if docs[i].Path == path {
			docs[i].Content = content
			found = true
		}
	}
	if !found {
		docs = append(docs, models.Document{Path: path, Content: content})
	}

	res, err := s.linker.Resolve(ctx, docs, s.opts)
	if err != nil {
		return nil, err
	}
	for _, f := range res.Failures {
		if f.Path == path {
			return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, f.Cause)
		}
	}
	return lo.Filter(res.References, func(r models.Reference, _ int) bool {
		return r.Source == path
	}), nil
}

// Apply inserts wiki links for the stored references of one note. The note
// must not have changed since the latest run, otherwise apperr.ErrConflict
// is returned. After writing, the vault is synced again so stored offsets
// match the new content.
func (s *Service) Apply(ctx context.Context, path string, dryRun bool) (*ApplyResult, error) {
	return s.apply(ctx, path, dryRun, nil)
}

// ApplySelected is Apply restricted to the references of path that start at
// the given byte offsets. Every offset must name a stored reference of the
// note, otherwise apperr.ErrInvalidInput is returned and nothing is written.
func (s *Service) ApplySelected(ctx context.Context, path string, dryRun bool, starts []int) (*ApplyResult, error) {
	if len(starts) == 0 {
		return nil, fmt.Errorf("%w: no references selected", apperr.ErrInvalidInput)
	}
	return s.apply(ctx, path, dryRun, starts)
}

func (s *Service) apply(ctx context.Context, path string, dryRun bool, starts []int) (*ApplyResult, error) {
	sums, err := s.db.AllChecksums()
	if err != nil {
		return nil, err
	}
	if _, ok := sums[path]; !ok {
		return nil, apperr.ErrNotFound
	}
	refs, err := s.db.References(path, "")
	if err != nil {
		return nil, err
	}
	if starts != nil {
		if refs, err = selectRefs(refs, starts); err != nil {
			return nil, err
		}
	}
	ed, err := s.prepare(path, refs, sums[path], dryRun)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return ed.res, nil
	}
	if err := s.commit(ed); err != nil {
		return nil, err
	}
	if ed.res.Applied > 0 {
		s.resync(ctx)
	}
	return ed.res, nil
}

// selectRefs keeps the references starting at one of starts, in stored order.
func selectRefs(refs []models.Reference, starts []int) ([]models.Reference, error) {
	byStart := lo.KeyBy(refs, func(r models.Reference) int { return r.Start })
	unknown := lo.Filter(starts, func(st int, _ int) bool {
		_, ok := byStart[st]
		return !ok
	})
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: no reference starts at %v", apperr.ErrInvalidInput, unknown)
	}
	wanted := lo.Uniq(starts)
	return lo.Filter(refs, func(r models.Reference, _ int) bool {
		return lo.Contains(wanted, r.Start)
	}), nil
}

// ApplyAll applies links to every note with stored references, in the order
// the references were found. Every note is checked against the latest run
// before any is written, so a conflict leaves the vault untouched. If a
// write fails part way, the results of the notes already written are
// returned with the error and the vault is synced again.
func (s *Service) ApplyAll(ctx context.Context, dryRun bool) ([]*ApplyResult, error) {
	sums, err := s.db.AllChecksums()
	if err != nil {
		return nil, err
	}
	refs, err := s.db.References("", "")
	if err != nil {
		return nil, err
	}
	sources := lo.Uniq(lo.Map(refs, func(r models.Reference, _ int) string { return r.Source }))
	bySource := lo.GroupBy(refs, func(r models.Reference) string { return r.Source })

	edits := make([]*edit, 0, len(sources))
	for _, path := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ed, err := s.prepare(path, bySource[path], sums[path], dryRun)
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", path, err)
		}
		edits = append(edits, ed)
	}

	out := make([]*ApplyResult, 0, len(edits))
	if dryRun {
		for _, ed := range edits {
			out = append(out, ed.res)
		}
		return out, nil
	}

	written := 0
	var werr error
	for _, ed := range edits {
		if err := s.commit(ed); err != nil {
			werr = fmt.Errorf("apply %s: %w", ed.res.Path, err)
			break
		}
		written += ed.res.Applied
		out = append(out, ed.res)
	}
	if written > 0 {
		s.resync(ctx)
	}
	return out, werr
}

// edit is a rewritten note not yet written to the vault.
type edit struct {
	res     *ApplyResult
	content []byte
}

// prepare rewrites one note in memory. indexed is the checksum stored by the
// run the references come from.
func (s *Service) prepare(path string, refs []models.Reference, indexed string, dryRun bool) (*edit, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if indexed != checksum.Sum(data) {
		return nil, fmt.Errorf("%w: %s changed since the last sync", apperr.ErrConflict, path)
	}

	ed := &edit{res: &ApplyResult{Path: path, DryRun: dryRun, Checksum: indexed}}
	if len(refs) == 0 {
		return ed, nil
	}
	out, outcome, err := rewrite.Apply(data, refs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrConflict, err)
	}
	ed.res.Applied, ed.res.Skipped = outcome.Applied, outcome.Skipped
	ed.res.Checksum = checksum.Sum(out)
	ed.content = out
	if dryRun {
		ed.res.Content = string(out)
	}
	return ed, nil
}

func (s *Service) commit(ed *edit) error {
	if ed.content == nil {
		return nil
	}
	if err := s.store.Write(ed.res.Path, ed.content); err != nil {
		return err
	}
	s.logger.Info("apply: links inserted",
		slog.String("path", ed.res.Path),
		slog.Int("applied", ed.res.Applied),
		slog.Int("skipped", ed.res.Skipped))
	return nil
}

// Watch re-syncs the vault rooted at vaultRoot whenever it changes, until ctx
// is cancelled. The OnSync listener sees every run the watcher stores.
func (s *Service) Watch(ctx context.Context, vaultRoot string) error {
	return index.Watch(ctx, s.db, s.store, vaultRoot, s.linker, index.SyncOptions{Linker: s.opts}, s.logger,
		func(run index.Run, err error) {
			if s.listener != nil {
				s.listener(run, err)
			}
		})
}

func (s *Service) resync(ctx context.Context) {
	if _, _, err := s.Sync(ctx, false); err != nil {
		s.logger.Warn("apply: resync failed", slog.String("error", err.Error()))
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
