// Package testutil provides shared test helpers for setting up vaults,
// databases and services.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/autolink/internal/index"
	"github.com/starford/autolink/internal/linker"
	"github.com/starford/autolink/internal/linkservice"
	"github.com/starford/autolink/internal/parser"
	"github.com/starford/autolink/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "autolink-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory holding files (path to
// content) and a storage.Provider over it.
func TestVault(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	for rel, content := range files {
		WriteNote(t, vaultDir, rel, content)
	}
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteNote writes a file below the vault directory, creating parents.
func WriteNote(t *testing.T, vaultDir, rel, content string) {
	t.Helper()
	p := filepath.Join(vaultDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestService builds a link service over a fresh vault and database.
func TestService(t *testing.T, files map[string]string, opts linker.Options) (*linkservice.Service, string) {
	t.Helper()
	vaultDir, store := TestVault(t, files)
	lk := linker.New(parser.New(), linker.WithLogger(Logger()))
	return linkservice.NewService(store, TestDB(t), lk, opts, Logger()), vaultDir
}
