package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/autolink/internal/models"
)

// Run summarises one persisted resolution run.
type Run struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Notes           int       `json:"notes"`
	References      int       `json:"references"`
	Failures        int       `json:"failures"`
	CaseInsensitive bool      `json:"case_insensitive"`
	LinkToSelf      bool      `json:"link_to_self"`
	VaultChecksum   string    `json:"vault_checksum"`
}

// Failure is a note the latest run could not parse.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// RunHistory is how many runs ReplaceRun keeps; older ones are deleted in
// the same transaction.
const RunHistory = 50

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// ReplaceRun stores run and its result, replacing the notes and references
// of the previous run within a single transaction. checksums maps note paths
// to their content checksum.
func (db *DB) ReplaceRun(run Run, checksums map[string]string, res *models.Result) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO runs (id, started_at, finished_at, notes, references_count, failures,
			case_insensitive, link_to_self, vault_checksum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Notes, run.References, run.Failures,
		run.CaseInsensitive, run.LinkToSelf, run.VaultChecksum)
	if err != nil {
		return fmt.Errorf("index: insert run: %w", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
		)
	`, RunHistory); err != nil {
		return fmt.Errorf("index: prune runs: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM notes`); err != nil {
		return fmt.Errorf("index: clear notes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM refs`); err != nil {
		return fmt.Errorf("index: clear refs: %w", err)
	}

	noteStmt, err := tx.Prepare(`
		INSERT INTO notes (path, run_id, title, aliases, checksum, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare note insert: %w", err)
	}
	defer noteStmt.Close()

	for _, n := range res.Notes {
		aliases, _ := json.Marshal(n.Aliases)
		if n.Aliases == nil {
			aliases = []byte("[]")
		}
		if _, err := noteStmt.Exec(n.Path, run.ID, n.Title, string(aliases), checksums[n.Path], statusOK, ""); err != nil {
			return fmt.Errorf("index: insert note %s: %w", n.Path, err)
		}
	}
	for _, f := range res.Failures {
		if _, err := noteStmt.Exec(f.Path, run.ID, "", "[]", checksums[f.Path], statusFailed, f.Cause.Error()); err != nil {
			return fmt.Errorf("index: insert failure %s: %w", f.Path, err)
		}
	}

	refStmt, err := tx.Prepare(`
		INSERT INTO refs (seq, run_id, source, target, matched_text, start_offset, end_offset)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare ref insert: %w", err)
	}
	defer refStmt.Close()

	for i, r := range res.References {
		if _, err := refStmt.Exec(i, run.ID, r.Source, r.Target, r.MatchedText, r.Start, r.End); err != nil {
			return fmt.Errorf("index: insert ref: %w", err)
		}
	}

	return tx.Commit()
}

// References returns the references of the latest run in result order.
// Empty source or target means no filter on that side.
func (db *DB) References(source, target string) ([]models.Reference, error) {
	var (
		where []string
		args  []any
	)
	if source != "" {
		where = append(where, "source = ?")
		args = append(args, source)
	}
	if target != "" {
		where = append(where, "target = ?")
		args = append(args, target)
	}
	q := `SELECT source, target, matched_text, start_offset, end_offset FROM refs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq"

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: references: %w", err)
	}
	defer rows.Close()

	out := []models.Reference{}
	for rows.Next() {
		var r models.Reference
		if err := rows.Scan(&r.Source, &r.Target, &r.MatchedText, &r.Start, &r.End); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Backlinks returns every reference pointing at target.
func (db *DB) Backlinks(target string) ([]models.Reference, error) {
	if target == "" {
		return nil, fmt.Errorf("index: backlinks: empty target")
	}
	return db.References("", target)
}

// Failures returns the notes the latest run could not parse, by path.
func (db *DB) Failures() ([]Failure, error) {
	rows, err := db.conn.Query(`SELECT path, error FROM notes WHERE status = ? ORDER BY path`, statusFailed)
	if err != nil {
		return nil, fmt.Errorf("index: failures: %w", err)
	}
	defer rows.Close()

	out := []Failure{}
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Path, &f.Error); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Note returns the stored title and aliases of a parsed note, or nil if the
// latest run has no such note.
func (db *DB) Note(path string) (*models.Note, error) {
	var (
		n       models.Note
		aliases string
	)
	err := db.conn.QueryRow(`SELECT path, title, aliases FROM notes WHERE path = ? AND status = ?`,
		path, statusOK).Scan(&n.Path, &n.Title, &aliases)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: note: %w", err)
	}
	if err := json.Unmarshal([]byte(aliases), &n.Aliases); err != nil {
		return nil, fmt.Errorf("index: note %s aliases: %w", path, err)
	}
	return &n, nil
}

// LatestRun returns the most recent run, or nil when nothing was stored yet.
func (db *DB) LatestRun() (*Run, error) {
	var r Run
	err := db.conn.QueryRow(`
		SELECT id, started_at, finished_at, notes, references_count, failures,
			case_insensitive, link_to_self, vault_checksum
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1
	`).Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Notes, &r.References, &r.Failures,
		&r.CaseInsensitive, &r.LinkToSelf, &r.VaultChecksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: latest run: %w", err)
	}
	return &r, nil
}

// Runs returns up to limit stored runs, newest first. Only the latest
// RunHistory runs are kept.
func (db *DB) Runs(limit int) ([]Run, error) {
	if limit <= 0 || limit > RunHistory {
		limit = RunHistory
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, notes, references_count, failures,
			case_insensitive, link_to_self, vault_checksum
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: runs: %w", err)
	}
	defer rows.Close()

	out := make([]Run, 0)
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Notes, &r.References, &r.Failures,
			&r.CaseInsensitive, &r.LinkToSelf, &r.VaultChecksum); err != nil {
			return nil, fmt.Errorf("index: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllChecksums returns path to checksum for every note of the latest run.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
