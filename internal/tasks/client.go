package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/storynest/internal/config"
)

// Config sizes the queue runner. Retries, timeouts and retention are set per
// queue by each task's Config method.
type Config struct {
	Workers         int
	ReleaseAfter    time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:         2,
		ReleaseAfter:    15 * time.Minute,
		CleanupInterval: time.Hour,
	}
}

// ConfigFrom applies application settings over the defaults.
func ConfigFrom(cfg config.Tasks) Config {
	out := DefaultConfig()
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if cfg.ReleaseAfter > 0 {
		out.ReleaseAfter = cfg.ReleaseAfter
	}
	if cfg.CleanupInterval > 0 {
		out.CleanupInterval = cfg.CleanupInterval
	}
	return out
}

// Client runs the maintenance queues (trash purge, cover and audit cleanup)
// on a SQLite file of their own, so a long purge never holds locks on the
// books database.
type Client struct {
	queue   *backlite.Client
	db      *sql.DB
	workers int
	running atomic.Bool
}

// QueueDBPath returns the queue database that belongs to the books database
// at mainDBPath: "data/storynest.db" becomes "data/storynest-tasks.db".
func QueueDBPath(mainDBPath string) string {
	ext := filepath.Ext(mainDBPath)
	return strings.TrimSuffix(mainDBPath, ext) + "-tasks" + ext
}

// NewClient opens (creating if needed) the queue database next to
// mainDBPath and installs the backlite schema.
func NewClient(mainDBPath string, cfg Config) (*Client, error) {
	path := QueueDBPath(mainDBPath)
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open task queue database %s: %w", path, err)
	}
	// Workers each hold a connection while a task runs; the rest serve
	// enqueues and backlite's own bookkeeping.
	db.SetMaxOpenConns(cfg.Workers + 5)
	db.SetMaxIdleConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	queue, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          queueLogger{},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create task queue: %w", err)
	}
	if err := queue.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("install task queue schema: %w", err)
	}

	return &Client{queue: queue, db: db, workers: cfg.Workers}, nil
}

// Register adds queues. Call it before Start.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.queue.Register(q)
	}
}

// Start begins dispatching tasks to the workers. Calling it again is a no-op.
func (c *Client) Start(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	log.Printf("[TASK] Queue started with %d workers", c.workers)
	c.queue.Start(ctx)
}

// Stop waits for running tasks until ctx ends and reports whether they all
// finished. A client that never started stops immediately.
func (c *Client) Stop(ctx context.Context) bool {
	if !c.running.CompareAndSwap(true, false) {
		return true
	}

	finished := c.queue.Stop(ctx)
	if finished {
		log.Println("[TASK] Queue stopped")
	} else {
		log.Println("[TASK] Queue stopped before every running task finished")
	}
	return finished
}

// Close releases the queue database. Call it after Stop.
func (c *Client) Close() error {
	return c.db.Close()
}

// Enqueue stores tasks for immediate processing and returns their ids.
func (c *Client) Enqueue(ctx context.Context, tasks ...backlite.Task) ([]string, error) {
	ids, err := c.queue.Add(tasks...).Ctx(ctx).Save()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", taskNames(tasks), err)
	}
	return ids, nil
}

func taskNames(tasks []backlite.Task) string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Config().Name
	}
	return strings.Join(names, ", ")
}

// queueLogger routes backlite's messages into the application log.
type queueLogger struct{}

func (queueLogger) Info(message string, params ...any) {
	log.Printf("[TASK] %s %v", message, params)
}

func (queueLogger) Error(message string, params ...any) {
	log.Printf("[TASK ERROR] %s %v", message, params)
}
