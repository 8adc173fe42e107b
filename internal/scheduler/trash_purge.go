// Package scheduler runs periodic maintenance on a cron schedule. Jobs only
// enqueue tasks; the work itself happens on the task queue.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"

	"github.com/mrlokans/storynest/internal/tasks"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a five-field cron expression.
func ValidateSchedule(schedule string) error {
	_, err := parser.Parse(schedule)
	return err
}

// Enqueuer adds tasks to the background queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, tasks ...backlite.Task) ([]string, error)
}

// TrashPurgeConfig controls the nightly maintenance run.
type TrashPurgeConfig struct {
	Enabled            bool
	Schedule           string
	Retention          time.Duration
	CoverGrace         time.Duration
	AuditRetentionDays int
}

// TrashPurgeScheduler enqueues the trash purge, followed by cover, avatar and
// audit cleanup, on every tick of its schedule.
type TrashPurgeScheduler struct {
	queue  Enqueuer
	config TrashPurgeConfig
	now    func() time.Time

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewTrashPurgeScheduler creates a scheduler; Start arms it.
func NewTrashPurgeScheduler(queue Enqueuer, cfg TrashPurgeConfig) *TrashPurgeScheduler {
	return &TrashPurgeScheduler{
		queue:  queue,
		config: cfg,
		now:    time.Now,
		cron:   cron.New(cron.WithParser(parser)),
	}
}

// Start schedules the job unless purging is disabled. The scheduler stops
// when ctx ends.
func (s *TrashPurgeScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.config.Enabled {
		log.Printf("Trash purge scheduler: disabled")
		return nil
	}
	if err := ValidateSchedule(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.config.Schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunNow(context.Background()); err != nil {
			log.Printf("Trash purge scheduler: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule purge job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Trash purge scheduler: started with schedule '%s', retention %s. Next run: %v",
		s.config.Schedule, s.config.Retention, s.cron.Entry(entryID).Next)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()
	return nil
}

// Stop waits for a running job and stops the scheduler.
func (s *TrashPurgeScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entryID)
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	s.isRunning = false
	log.Printf("Trash purge scheduler: stopped")
}

// RunNow enqueues one maintenance run immediately.
func (s *TrashPurgeScheduler) RunNow(ctx context.Context) ([]string, error) {
	ids, err := s.queue.Enqueue(ctx,
		tasks.PurgeTrashTask{Retention: s.config.Retention, RequestedAt: s.now().UTC()},
		tasks.CleanupCoversTask{Grace: s.config.CoverGrace},
		tasks.CleanupAvatarsTask{Grace: s.config.CoverGrace},
		tasks.CleanupAuditEventsTask{RetentionDays: s.config.AuditRetentionDays},
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue maintenance: %w", err)
	}
	log.Printf("Trash purge scheduler: enqueued %d tasks", len(ids))
	return ids, nil
}

// IsRunning returns whether the scheduler is active.
func (s *TrashPurgeScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns when the job fires next, or nil when not running.
func (s *TrashPurgeScheduler) NextRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	next := s.cron.Entry(s.entryID).Next
	return &next
}
