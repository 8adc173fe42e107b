package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/storynest/internal/entities"
)

// DefaultTrashRetention applies when a purge task carries no retention.
const DefaultTrashRetention = 30 * 24 * time.Hour

// TrashPurger permanently deletes trashed books.
type TrashPurger interface {
	PurgeTrashedBefore(ctx context.Context, cutoff time.Time) ([]entities.Book, error)
}

// PurgeArchiver keeps a copy of purged books.
type PurgeArchiver interface {
	Save(books []entities.Book, purgedAt time.Time) (string, error)
}

// PurgeAuditor records the outcome of a purge.
type PurgeAuditor interface {
	LogPurge(purged []entities.Book, retention time.Duration, err error)
}

// PurgeTrashTask permanently deletes every book that has been in the trash
// longer than Retention, measured from RequestedAt so a retried task deletes
// the same set.
type PurgeTrashTask struct {
	Retention   time.Duration `json:"retention"`
	RequestedAt time.Time     `json:"requested_at"`
}

// Config returns the queue configuration for trash purge tasks.
func (t PurgeTrashTask) Config() backlite.QueueConfig {
	cfg := maintenanceQueue("purge_trash", 3, 5*time.Minute, 5*time.Minute)
	// Purge records are kept for a week.
	cfg.Retention.Duration = 7 * 24 * time.Hour
	return cfg
}

// Cutoff is the deletion time before which trashed books are purged.
func (t PurgeTrashTask) Cutoff() time.Time {
	retention := t.Retention
	if retention <= 0 {
		retention = DefaultTrashRetention
	}
	requested := t.RequestedAt
	if requested.IsZero() {
		requested = time.Now()
	}
	return requested.Add(-retention)
}

// PurgeTrashProcessor creates a processor function for PurgeTrashTask.
// archiver and auditor may be nil.
func PurgeTrashProcessor(purger TrashPurger, archiver PurgeArchiver, auditor PurgeAuditor) backlite.QueueProcessor[PurgeTrashTask] {
	return func(ctx context.Context, task PurgeTrashTask) error {
		if purger == nil {
			return fmt.Errorf("trash purger not configured")
		}

		cutoff := task.Cutoff()
		purged, err := purger.PurgeTrashedBefore(ctx, cutoff)
		if auditor != nil {
			auditor.LogPurge(purged, task.Retention, err)
		}
		if err != nil {
			return fmt.Errorf("purge trash: %w", err)
		}

		if archiver != nil && len(purged) > 0 {
			file, err := archiver.Save(purged, time.Now())
			if err != nil {
				// The rows are gone already; retrying would not bring them back.
				log.Printf("[TASK] Failed to archive %d purged books: %v", len(purged), err)
			} else {
				log.Printf("[TASK] Archived purged books to %s", file)
			}
		}

		log.Printf("[TASK] Purged %d books trashed before %s", len(purged), cutoff.Format(time.RFC3339))
		return nil
	}
}

// NewPurgeTrashQueue creates a backlite queue for trash purge tasks.
func NewPurgeTrashQueue(purger TrashPurger, archiver PurgeArchiver, auditor PurgeAuditor) backlite.Queue {
	return backlite.NewQueue(PurgeTrashProcessor(purger, archiver, auditor))
}
