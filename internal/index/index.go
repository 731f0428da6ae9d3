package index

import "github.com/starford/autolink/internal/models"

// LinkIndex defines the read and write operations on persisted runs.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type LinkIndex interface {
	ReplaceRun(run Run, checksums map[string]string, res *models.Result) error
	References(source, target string) ([]models.Reference, error)
	Backlinks(target string) ([]models.Reference, error)
	Failures() ([]Failure, error)
	Note(path string) (*models.Note, error)
	LatestRun() (*Run, error)
	Runs(limit int) ([]Run, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies LinkIndex at compile time.
var _ LinkIndex = (*DB)(nil)
