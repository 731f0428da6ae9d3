package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func backlinkCount(db *DB, target string) int {
	bl, _ := db.Backlinks(target)
	return len(bl)
}

func TestWatcher_NewNoteResolved(t *testing.T) {
	vaultDir, store, db := syncTestEnv(t)
	writeNote(t, vaultDir, "target.md", "# Target\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var runs []Run

	go Watch(ctx, db, store, vaultDir, testResolver(), SyncOptions{}, discardLogger(), func(run Run, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		runs = append(runs, run)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	writeNote(t, vaultDir, "source.md", "# Source\n\nPoints at Target.\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return backlinkCount(db, "target.md") == 1
	}, "new note not resolved by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(runs) > 0 && runs[len(runs)-1].References == 1
	}, "expected a run callback")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	vaultDir, store, db := syncTestEnv(t)
	writeNote(t, vaultDir, "target.md", "# Deep Target\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, vaultDir, testResolver(), SyncOptions{}, discardLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(vaultDir, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)

	writeNote(t, vaultDir, "subdir/deep.md", "# Sub\n\nSee Deep Target.\n")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		refs, _ := db.References("subdir/deep.md", "target.md")
		return len(refs) == 1
	}, "note in new subdir not resolved by watcher")
}

func TestWatcher_DeleteDropsReferences(t *testing.T) {
	vaultDir, store, db := syncTestEnv(t)
	writeNote(t, vaultDir, "target.md", "# Target\n")
	writeNote(t, vaultDir, "del.md", "# Delete Me\n\nMentions Target.\n")
	if _, _, err := Sync(context.Background(), db, store, testResolver(), SyncOptions{}, discardLogger()); err != nil {
		t.Fatal(err)
	}
	if backlinkCount(db, "target.md") != 1 {
		t.Fatal("precondition: reference should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, vaultDir, testResolver(), SyncOptions{}, discardLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(vaultDir, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return backlinkCount(db, "target.md") == 0
	}, "deleted note still referenced in index")
}

func TestWatcher_RenameRetargets(t *testing.T) {
	vaultDir, store, db := syncTestEnv(t)
	writeNote(t, vaultDir, "old.md", "# Renamed Note\n")
	writeNote(t, vaultDir, "src.md", "# Src\n\nAbout Renamed Note.\n")
	if _, _, err := Sync(context.Background(), db, store, testResolver(), SyncOptions{}, discardLogger()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, vaultDir, testResolver(), SyncOptions{}, discardLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(vaultDir, "old.md"), filepath.Join(vaultDir, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return backlinkCount(db, "old.md") == 0 && backlinkCount(db, "renamed.md") == 1
	}, "rename not reflected: references should point at the new path")
}
