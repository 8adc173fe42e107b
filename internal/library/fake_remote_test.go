package library

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrlokans/storynest/internal/wire"
)

// fakeRemote is an in-memory RemoteStore. Rows keep their owner in user_id.
type fakeRemote struct {
	mu     sync.Mutex
	rows   map[string]wire.Record
	order  []string
	nextID int
	now    time.Time

	queryErr  error
	insertErr error
	updateErr error
	deleteErr error

	// onUpdate runs before Update returns, outside the fake's lock.
	onUpdate func()
	// onDelete runs once when DeleteTrashed is entered, outside the fake's lock.
	onDelete func()

	updates []wire.Record
	deletes [][]string
	gets    []string
	subs    []*fakeSubscription
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows: make(map[string]wire.Record),
		now:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// seed stores a row for owner. Missing columns get unread defaults.
func (f *fakeRemote) seed(owner string, r wire.Record) wire.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	row := wire.Record{
		wire.FieldAuthor:     "Unknown",
		wire.FieldStatus:     "unread",
		wire.FieldRating:     0,
		wire.FieldIsFavorite: false,
		wire.FieldDeletedAt:  nil,
	}
	for k, v := range r {
		row[k] = v
	}
	row[wire.FieldUserID] = owner
	if _, ok := row[wire.FieldCreatedAt]; !ok {
		f.now = f.now.Add(time.Minute)
		row[wire.FieldCreatedAt] = wire.FormatTime(f.now)
	}
	id := row.ID()
	f.rows[id] = row
	f.order = append(f.order, id)
	return row.Clone()
}

func (f *fakeRemote) row(id string) wire.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id].Clone()
}

func (f *fakeRemote) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeRemote) Query(_ context.Context, q Query) ([]wire.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []wire.Record
	for i := len(f.order) - 1; i >= 0; i-- {
		row, ok := f.rows[f.order[i]]
		if !ok || row[wire.FieldUserID] != q.Owner {
			continue
		}
		trashed := row[wire.FieldDeletedAt] != nil && row[wire.FieldDeletedAt] != ""
		if trashed == q.Trashed {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (f *fakeRemote) Get(_ context.Context, owner, id string) (wire.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	row, ok := f.rows[id]
	if !ok || row[wire.FieldUserID] != owner {
		return nil, fmt.Errorf("get %s: %w", id, ErrRemoteNotFound)
	}
	return row.Clone(), nil
}

func (f *fakeRemote) Insert(_ context.Context, owner string, r wire.Record) (wire.Record, error) {
	f.mu.Lock()
	if f.insertErr != nil {
		f.mu.Unlock()
		return nil, f.insertErr
	}
	f.nextID++
	row := r.Clone()
	row[wire.FieldID] = fmt.Sprintf("new-%d", f.nextID)
	f.mu.Unlock()
	return f.seed(owner, row), nil
}

func (f *fakeRemote) Update(_ context.Context, owner, id string, patch wire.Record) error {
	f.mu.Lock()
	f.updates = append(f.updates, patch.Clone())
	hook, err := f.onUpdate, f.updateErr
	if err == nil {
		row, ok := f.rows[id]
		if !ok || row[wire.FieldUserID] != owner {
			err = fmt.Errorf("update %s: %w", id, ErrRemoteNotFound)
		} else {
			for k, v := range patch {
				row[k] = v
			}
		}
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeRemote) Delete(_ context.Context, _ string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ids)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, id := range ids {
		delete(f.rows, id)
	}
	return nil
}

func (f *fakeRemote) DeleteTrashed(_ context.Context, _ string, ids ...string) ([]string, error) {
	f.mu.Lock()
	if f.onDelete != nil {
		hook := f.onDelete
		f.onDelete = nil
		f.mu.Unlock()
		hook()
		f.mu.Lock()
	}
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ids)
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	var removed []string
	for _, id := range ids {
		row, ok := f.rows[id]
		if !ok || row[wire.FieldDeletedAt] == nil || row[wire.FieldDeletedAt] == "" {
			continue
		}
		delete(f.rows, id)
		removed = append(removed, id)
	}
	return removed, nil
}

func (f *fakeRemote) Subscribe(_ context.Context, owner string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSubscription{owner: owner, events: make(chan wire.ChangeEvent, 16)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeRemote) subscription(i int) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

type fakeSubscription struct {
	owner  string
	events chan wire.ChangeEvent

	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (s *fakeSubscription) Events() <-chan wire.ChangeEvent { return s.events }

func (s *fakeSubscription) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
	return nil
}

func (s *fakeSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// loadedSynchronizer returns a synchronizer loaded for owner "u1".
func loadedSynchronizer(t testingT, remote *fakeRemote) *Synchronizer {
	s := NewSynchronizer(remote, Options{
		OperationTimeout: time.Second,
		Now:              func() time.Time { return testNow },
	})
	if err := s.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

type testingT interface {
	Fatalf(format string, args ...any)
}

// requirePartitioned fails when an id sits in both partitions or twice in one.
func requirePartitioned(t testingT, s *Synchronizer) {
	seen := map[string]bool{}
	for _, b := range s.Active() {
		if seen[b.ID] {
			t.Fatalf("id %s appears twice", b.ID)
		}
		seen[b.ID] = true
	}
	for _, b := range s.Trash() {
		if seen[b.ID] {
			t.Fatalf("id %s appears twice", b.ID)
		}
		seen[b.ID] = true
	}
}

func ids(books []Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.ID)
	}
	return out
}

func trashIDs(books []DeletedBook) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.ID)
	}
	return out
}
