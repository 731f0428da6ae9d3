// Package storage reads and writes the notes of a vault.
package storage

import "github.com/starford/autolink/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md file under dir, sorted by path.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the note at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically replaces the note at path (relative to vault root).
	Write(path string, content []byte) error
}
