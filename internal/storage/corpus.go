package storage

import (
	"fmt"

	"github.com/starford/autolink/internal/models"
)

// LoadCorpus reads every note of the vault in path order. The order is what
// the linker uses to break ties between notes sharing an alias.
func LoadCorpus(p Provider) ([]models.Document, []models.NoteMetadata, error) {
	metas, err := p.List("")
	if err != nil {
		return nil, nil, err
	}
	docs := make([]models.Document, 0, len(metas))
	for _, m := range metas {
		data, err := p.Read(m.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: load corpus: %w", err)
		}
		docs = append(docs, models.Document{Path: m.Path, Content: data})
	}
	return docs, metas, nil
}
