package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/storynest/internal/config"
)

func TestQueueDBPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data/storynest.db", "data/storynest-tasks.db"},
		{"/var/lib/storynest/books.sqlite3", "/var/lib/storynest/books-tasks.sqlite3"},
		{"books", "books-tasks"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, QueueDBPath(tt.in))
		})
	}
}

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "storynest.db")
	cfg := DefaultConfig()
	cfg.Workers = 1

	client, err := NewClient(dbPath, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, dbPath
}

func TestNewClient_CreatesQueueDatabase(t *testing.T) {
	_, dbPath := newTestClient(t)

	_, err := os.Stat(QueueDBPath(dbPath))
	assert.NoError(t, err)
	_, err = os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err), "the books database is left alone")
}

func TestClient_StartStop(t *testing.T) {
	client, _ := newTestClient(t)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	assert.True(t, client.Stop(stopCtx), "stopping an idle client is immediate")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Start(ctx)
	require.Eventually(t, client.running.Load, time.Second, 5*time.Millisecond)
	client.Start(ctx)
	time.Sleep(50 * time.Millisecond)

	assert.True(t, client.Stop(stopCtx))
	assert.True(t, client.Stop(stopCtx))
}

// pingTask records its payload when run.
type pingTask struct {
	Book string `json:"book"`
}

func (t pingTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "ping",
		MaxAttempts: 1,
		Backoff:     time.Second,
		Timeout:     5 * time.Second,
	}
}

func TestClient_Enqueue(t *testing.T) {
	client, _ := newTestClient(t)

	ran := make(chan string, 2)
	client.Register(backlite.NewQueue(func(ctx context.Context, task pingTask) error {
		ran <- task.Book
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Start(ctx)

	ids, err := client.Enqueue(ctx, pingTask{Book: "emma"}, pingTask{Book: "dune"})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	var got []string
	for len(got) < 2 {
		select {
		case book := <-ran:
			got = append(got, book)
		case <-time.After(5 * time.Second):
			t.Fatalf("ran %d of 2 tasks", len(got))
		}
	}
	assert.ElementsMatch(t, []string{"emma", "dune"}, got)
}

func TestTaskNames(t *testing.T) {
	assert.Equal(t, "ping, purge_trash", taskNames([]backlite.Task{pingTask{}, PurgeTrashTask{}}))
}

func TestConfigFrom(t *testing.T) {
	tests := []struct {
		name string
		in   config.Tasks
		want Config
	}{
		{"defaults", config.Tasks{}, DefaultConfig()},
		{
			"overrides",
			config.Tasks{Workers: 4, ReleaseAfter: time.Minute},
			Config{Workers: 4, ReleaseAfter: time.Minute, CleanupInterval: time.Hour},
		},
		{
			"negative values keep defaults",
			config.Tasks{Workers: -1, CleanupInterval: -time.Second},
			DefaultConfig(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigFrom(tt.in))
		})
	}
}
