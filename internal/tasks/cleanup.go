package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

const (
	defaultCoverGrace         = 24 * time.Hour // also used for avatars
	defaultAuditRetentionDays = 30
)

var errNotConfigured = errors.New("task dependency not configured")

// maintenanceQueue is the queue config shared by the maintenance tasks:
// finished tasks are kept for a day, and payloads only when they failed.
func maintenanceQueue(name string, attempts int, backoff, timeout time.Duration) backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        name,
		MaxAttempts: attempts,
		Backoff:     backoff,
		Timeout:     timeout,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CoverReferences lists the cover URLs books still point to.
type CoverReferences interface {
	ReferencedCovers(ctx context.Context) ([]string, error)
}

// AvatarReferences lists the avatar URLs accounts still point to.
type AvatarReferences interface {
	ReferencedAvatars(ctx context.Context) ([]string, error)
}

// FileRemover deletes stored files outside the referenced set.
type FileRemover interface {
	RemoveUnreferenced(referenced []string, grace time.Duration) (int, error)
}

// CleanupCoversTask removes uploaded and cached cover files no book refers
// to. Grace keeps recent uploads a client has not attached to a book yet.
type CleanupCoversTask struct {
	Grace time.Duration `json:"grace"`
}

func (t CleanupCoversTask) Config() backlite.QueueConfig {
	return maintenanceQueue("cleanup_covers", 2, 10*time.Minute, 5*time.Minute)
}

func CleanupCoversProcessor(refs CoverReferences, removers ...FileRemover) backlite.QueueProcessor[CleanupCoversTask] {
	return func(ctx context.Context, task CleanupCoversTask) error {
		if refs == nil || len(removers) == 0 {
			return fmt.Errorf("cleanup covers: %w", errNotConfigured)
		}
		referenced, err := refs.ReferencedCovers(ctx)
		if err != nil {
			return fmt.Errorf("list referenced covers: %w", err)
		}
		return sweep("covers", referenced, task.Grace, removers)
	}
}

func NewCleanupCoversQueue(refs CoverReferences, removers ...FileRemover) backlite.Queue {
	return backlite.NewQueue(CleanupCoversProcessor(refs, removers...))
}

// CleanupAvatarsTask removes uploaded avatars no account uses any more.
type CleanupAvatarsTask struct {
	Grace time.Duration `json:"grace"`
}

func (t CleanupAvatarsTask) Config() backlite.QueueConfig {
	return maintenanceQueue("cleanup_avatars", 2, 10*time.Minute, 5*time.Minute)
}

func CleanupAvatarsProcessor(refs AvatarReferences, remover FileRemover) backlite.QueueProcessor[CleanupAvatarsTask] {
	return func(ctx context.Context, task CleanupAvatarsTask) error {
		if refs == nil || remover == nil {
			return fmt.Errorf("cleanup avatars: %w", errNotConfigured)
		}
		referenced, err := refs.ReferencedAvatars(ctx)
		if err != nil {
			return fmt.Errorf("list referenced avatars: %w", err)
		}
		return sweep("avatars", referenced, task.Grace, []FileRemover{remover})
	}
}

func NewCleanupAvatarsQueue(refs AvatarReferences, remover FileRemover) backlite.Queue {
	return backlite.NewQueue(CleanupAvatarsProcessor(refs, remover))
}

func sweep(kind string, referenced []string, grace time.Duration, removers []FileRemover) error {
	if grace <= 0 {
		grace = defaultCoverGrace
	}
	removed := 0
	for _, r := range removers {
		n, err := r.RemoveUnreferenced(referenced, grace)
		removed += n
		if err != nil {
			return fmt.Errorf("remove %s: %w", kind, err)
		}
	}
	log.Printf("[TASK] Removed %d unreferenced %s (%d still in use)", removed, kind, len(referenced))
	return nil
}

// AuditEventCleaner deletes audit events past their retention.
type AuditEventCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// CleanupAuditEventsTask drops audit events older than RetentionDays
// (30 when unset).
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return maintenanceQueue("cleanup_audit_events", 3, 5*time.Minute, 2*time.Minute)
}

func (t CleanupAuditEventsTask) retention() (days int, d time.Duration) {
	days = t.RetentionDays
	if days <= 0 {
		days = defaultAuditRetentionDays
	}
	return days, time.Duration(days) * 24 * time.Hour
}

func CleanupAuditEventsProcessor(cleaner AuditEventCleaner) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return fmt.Errorf("cleanup audit events: %w", errNotConfigured)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		days, retention := task.retention()
		deleted, err := cleaner.DeleteOldEvents(retention)
		if err != nil {
			return fmt.Errorf("cleanup audit events: %w", err)
		}

		log.Printf("[TASK] Removed %d audit events older than %d days", deleted, days)
		return nil
	}
}

func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner))
}
