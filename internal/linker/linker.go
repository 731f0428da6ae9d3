// Package linker finds mentions of note titles and aliases inside other
// notes. A run parses the corpus, compiles every identity into one pattern
// and scans each note's linkable spans against it.
package linker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/autolink/internal/models"
)

// NoteParser turns raw content into a note. An error marks the note as
// failed; the rest of the corpus is still resolved.
type NoteParser interface {
	Parse(path string, content []byte) (*models.Note, error)
}

// Options are the per-call settings supplied by the host.
type Options struct {
	CaseInsensitive bool
	LinkToSelf      bool
}

// Linker resolves references across a corpus. It holds no state between
// calls and may be used concurrently.
type Linker struct {
	parser       NoteParser
	logger       *slog.Logger
	workers      int
	matchTimeout time.Duration
}

// Option configures a Linker.
type Option func(*Linker)

// WithLogger sets the logger used for per-note and per-span diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(lk *Linker) {
		if l != nil {
			lk.logger = l
		}
	}
}

// WithWorkers bounds how many notes are parsed or scanned at once.
func WithWorkers(n int) Option {
	return func(lk *Linker) {
		if n > 0 {
			lk.workers = n
		}
	}
}

// WithMatchTimeout bounds the time spent matching a single span.
func WithMatchTimeout(d time.Duration) Option {
	return func(lk *Linker) {
		lk.matchTimeout = d
	}
}

// New creates a Linker that parses notes with p.
func New(p NoteParser, opts ...Option) *Linker {
	lk := &Linker{
		parser:  p,
		logger:  slog.Default(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(lk)
	}
	return lk
}

// Resolve runs the whole pipeline over corpus. The output depends only on
// the corpus and o. If ctx is cancelled no partial result is returned.
func (l *Linker) Resolve(ctx context.Context, corpus []models.Document, o Options) (*models.Result, error) {
	start := time.Now()

	outcomes := make([]models.ParseOutcome, len(corpus))
	err := l.forEach(ctx, len(corpus), func(i int) {
		outcomes[i] = l.parse(corpus[i])
	})
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(corpus))
	for i, out := range outcomes {
		if out.Failure != nil {
			l.logger.Warn("linker: note skipped",
				slog.String("path", out.Failure.Path),
				slog.String("error", out.Failure.Cause.Error()))
			continue
		}
		sources = append(sources, Source{Note: out.Note, Content: string(corpus[i].Content)})
	}

	sets := make([]IdentitySet, len(sources))
	err = l.forEach(ctx, len(sources), func(i int) {
		sets[i] = NewIdentitySet(sources[i].Note)
	})
	if err != nil {
		return nil, err
	}

	cp, err := Compile(sets, o.CaseInsensitive, l.matchTimeout)
	if err != nil {
		return nil, fmt.Errorf("linker: %w", err)
	}

	perNote := make([][]models.Reference, len(sources))
	err = l.forEach(ctx, len(sources), func(i int) {
		perNote[i] = ScanNote(cp, sources[i], l.logger)
	})
	if err != nil {
		return nil, err
	}

	var refs []models.Reference
	for _, r := range perNote {
		refs = append(refs, r...)
	}
	res := Aggregate(refs, outcomes, o.LinkToSelf)

	l.logger.Debug("linker: resolved",
		slog.Int("notes", len(corpus)),
		slog.Int("groups", cp.Groups()),
		slog.Int("references", len(res.References)),
		slog.Int("failed", len(res.FailedPaths)),
		slog.Duration("took", time.Since(start)))

	return res, nil
}

// parse never lets a single note take the batch down, panics included.
func (l *Linker) parse(doc models.Document) (out models.ParseOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = models.ParseOutcome{Failure: &models.ParseFailure{
				Path:  doc.Path,
				Cause: fmt.Errorf("%w: panic: %v", ErrNoteParse, r),
			}}
		}
	}()

	note, err := l.parser.Parse(doc.Path, doc.Content)
	if err != nil {
		return models.ParseOutcome{Failure: &models.ParseFailure{
			Path:  doc.Path,
			Cause: fmt.Errorf("%w: %w", ErrNoteParse, err),
		}}
	}
	if note == nil {
		return models.ParseOutcome{Failure: &models.ParseFailure{
			Path:  doc.Path,
			Cause: fmt.Errorf("%w: parser returned no note", ErrNoteParse),
		}}
	}
	return models.ParseOutcome{Note: note}
}

// forEach calls fn for 0..n-1 on at most l.workers goroutines and waits for
// all of them. Each fn writes only to its own index.
func (l *Linker) forEach(ctx context.Context, n int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
