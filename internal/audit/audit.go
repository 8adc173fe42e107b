package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mrlokans/storynest/internal/entities"
)

// Archiver keeps a JSON copy of every book removed by the trash purge so a
// purge can be undone by hand.
type Archiver struct {
	Dir string
}

func NewArchiver(dir string) *Archiver {
	return &Archiver{Dir: dir}
}

type archive struct {
	PurgedAt time.Time       `json:"purged_at"`
	Books    []entities.Book `json:"books"`
}

// Save writes books to a new file named by a random UUID and returns the
// file name. Nothing is written for an empty slice.
func (a *Archiver) Save(books []entities.Book, purgedAt time.Time) (string, error) {
	if len(books) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	data, err := json.MarshalIndent(archive{PurgedAt: purgedAt.UTC(), Books: books}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive: %w", err)
	}

	filename := fmt.Sprintf("purge-%s.json", uuid.New().String())
	if err := os.WriteFile(filepath.Join(a.Dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	return filename, nil
}
