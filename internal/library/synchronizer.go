// Package library keeps an in-memory mirror of one user's book collection in
// step with the books API.
//
// A Synchronizer holds two partitions, the active set and the trash, and keeps
// them consistent across three inputs: the initial bulk load, mutations made
// through it, and change events pushed by the server. Every id lives in at most
// one partition at a time. All access goes through a single RWMutex, so views
// may be read from any goroutine while events are being applied.
//
// # Usage
//
//	sess := library.NewSession(client, library.Options{OperationTimeout: 15 * time.Second})
//	if err := sess.Start(ctx, provider.Current()); err != nil {
//		return err
//	}
//	defer sess.Teardown()
//
//	books := sess.Synchronizer().FilteredBySearch("dune")
package library

import (
	"context"
	"log"
	"reflect"
	"sync"
	"time"

	"github.com/mrlokans/storynest/internal/wire"
)

// Options tune a Synchronizer.
type Options struct {
	// OperationTimeout bounds every remote call. Zero leaves calls unbounded.
	OperationTimeout time.Duration
	// Now is the clock used for derived timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Synchronizer mirrors the books of one owner.
type Synchronizer struct {
	remote  RemoteStore
	timeout time.Duration
	now     func() time.Time

	mu         sync.RWMutex
	owner      string
	active     []Book
	trash      []DeletedBook
	ready      bool
	generation uint64
	lifetime   context.Context
	stop       context.CancelFunc
}

// NewSynchronizer creates a synchronizer with no owner bound.
func NewSynchronizer(remote RemoteStore, opts Options) *Synchronizer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	lifetime, stop := context.WithCancel(context.Background())
	return &Synchronizer{
		remote:   remote,
		timeout:  opts.OperationTimeout,
		now:      opts.Now,
		lifetime: lifetime,
		stop:     stop,
	}
}

// Owner returns the bound owner id, or "" when nobody is signed in.
func (s *Synchronizer) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Ready reports whether a load has completed for the bound owner.
func (s *Synchronizer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Reset discards both partitions and binds the synchronizer to owner.
// Remote calls still in flight for the previous owner are cancelled and
// their results dropped.
func (s *Synchronizer) Reset(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop()
	s.lifetime, s.stop = context.WithCancel(context.Background())
	s.owner = owner
	s.active = nil
	s.trash = nil
	s.ready = false
	s.generation++
}

// ticket identifies the owner binding an operation started under.
type ticket struct {
	owner      string
	generation uint64
}

// begin captures the current binding and derives a context for one remote
// call. The context ends on timeout, on caller cancellation or on Reset.
func (s *Synchronizer) begin(ctx context.Context) (context.Context, context.CancelFunc, ticket, error) {
	s.mu.RLock()
	t := ticket{owner: s.owner, generation: s.generation}
	lifetime := s.lifetime
	s.mu.RUnlock()

	if t.owner == "" {
		return nil, nil, t, ErrNoIdentity
	}
	callCtx, cancel := s.withTimeout(ctx)
	stopAfter := context.AfterFunc(lifetime, cancel)
	return callCtx, func() {
		stopAfter()
		cancel()
	}, t, nil
}

func (s *Synchronizer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// validLocked reports whether t still matches the binding. Callers hold mu.
func (s *Synchronizer) validLocked(t ticket) bool {
	return s.generation == t.generation
}

// Load fetches both partitions for owner and replaces the local sets. Loading
// for a different owner than the bound one is an identity change and resets
// first. On failure the sets are left exactly as they were.
func (s *Synchronizer) Load(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrNoIdentity
	}
	if s.Owner() != owner {
		s.Reset(owner)
	}

	callCtx, done, t, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	activeRecs, err := s.remote.Query(callCtx, Query{Owner: owner})
	if err != nil {
		return &LoadError{Owner: owner, Err: err}
	}
	trashRecs, err := s.remote.Query(callCtx, Query{Owner: owner, Trashed: true})
	if err != nil {
		return &LoadError{Owner: owner, Err: err}
	}

	active, trash := partition(activeRecs, trashRecs)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(t) {
		return &LoadError{Owner: owner, Err: ErrStaleIdentity}
	}
	s.active = active
	s.trash = trash
	s.ready = true
	log.Printf("[SYNC] Loaded %d active and %d trashed books for %s", len(active), len(trash), owner)
	return nil
}

// partition maps both query results into the two sets. Malformed rows are
// skipped. A row seen in both results keeps its trash copy, which was
// fetched last.
func partition(activeRecs, trashRecs []wire.Record) ([]Book, []DeletedBook) {
	trashIDs := make(map[string]bool, len(trashRecs))
	trash := make([]DeletedBook, 0, len(trashRecs))
	var misplaced []Book

	for _, rec := range trashRecs {
		book, err := FromWire(rec)
		if err != nil {
			log.Printf("[SYNC] Skipping malformed trashed record: %v", err)
			continue
		}
		_, deletedAt, err := deletionFromWire(rec)
		if err != nil {
			log.Printf("[SYNC] Skipping malformed trashed record %s: %v", book.ID, err)
			continue
		}
		if deletedAt == nil {
			misplaced = append(misplaced, book)
			continue
		}
		trashIDs[book.ID] = true
		trash = append(trash, DeletedBook{Book: book, DeletedAt: *deletedAt})
	}

	seen := make(map[string]bool, len(activeRecs))
	active := make([]Book, 0, len(activeRecs)+len(misplaced))
	for _, rec := range activeRecs {
		book, err := FromWire(rec)
		if err != nil {
			log.Printf("[SYNC] Skipping malformed record: %v", err)
			continue
		}
		if trashIDs[book.ID] || seen[book.ID] {
			continue
		}
		seen[book.ID] = true
		active = append(active, book)
	}
	for _, book := range misplaced {
		if !seen[book.ID] {
			active = append(active, book)
		}
	}
	return active, trash
}

// Add validates the draft, applies defaults and inserts it remotely. The
// stored book is prepended to the active set only after the server accepts it.
func (s *Synchronizer) Add(ctx context.Context, d Draft) (Book, error) {
	if err := d.Validate(); err != nil {
		return Book{}, err
	}
	d.applyDefaults()

	callCtx, done, t, err := s.begin(ctx)
	if err != nil {
		return Book{}, err
	}
	defer done()

	rec, err := s.remote.Insert(callCtx, t.owner, draftToWire(d, s.now()))
	if err != nil {
		return Book{}, &MutationError{Op: "add", Err: err}
	}
	book, err := FromWire(rec)
	if err != nil {
		return Book{}, &MutationError{Op: "add", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(t) {
		return Book{}, ErrStaleIdentity
	}
	s.placeLocked(book, nil)
	return book, nil
}

// Update applies p locally straight away and then sends it to the server.
// If the server rejects it, each patched field that still holds the
// optimistic value is put back to what it was before.
func (s *Synchronizer) Update(ctx context.Context, id string, p Patch) error {
	if p.Empty() {
		return nil
	}
	if err := p.Validate(); err != nil {
		return err
	}
	callCtx, done, t, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	s.mu.Lock()
	now := s.now()
	current, _, local := s.lookupLocked(id)
	resolved := p.WithTransition(current, now)
	optimistic := resolved.ApplyTo(current)
	if local {
		s.replaceLocked(optimistic)
	}
	s.mu.Unlock()

	if err := s.remote.Update(callCtx, t.owner, id, ToWirePatch(resolved)); err != nil {
		if local {
			s.rollback(t, resolved, current, optimistic)
		}
		return &MutationError{Op: "update", ID: id, Err: err}
	}
	return nil
}

// rollback restores the fields of p that nobody has touched since the
// optimistic write.
func (s *Synchronizer) rollback(t ticket, p Patch, before, optimistic Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(t) {
		return
	}
	current, _, ok := s.lookupLocked(before.ID)
	if !ok {
		return
	}

	was, expected, now := ToWire(before), ToWire(optimistic), ToWire(current)
	restore := wire.Record{}
	for field := range ToWirePatch(p) {
		if reflect.DeepEqual(now[field], expected[field]) {
			restore[field] = was[field]
		}
	}
	if len(restore) == 0 {
		return
	}
	reverted, err := mergeWire(current, restore)
	if err != nil {
		log.Printf("[SYNC] Rollback of %s failed: %v", before.ID, err)
		return
	}
	s.replaceLocked(reverted)
	log.Printf("[SYNC] Rolled back %d field(s) of %s after rejected update", len(restore), before.ID)
}

// SoftDelete stamps the book as deleted remotely and then moves it to the trash.
func (s *Synchronizer) SoftDelete(ctx context.Context, id string) error {
	callCtx, done, t, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	deletedAt := s.now()
	patch := wire.Record{wire.FieldDeletedAt: wire.FormatTime(deletedAt)}
	if err := s.remote.Update(callCtx, t.owner, id, patch); err != nil {
		return &MutationError{Op: "delete", ID: id, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(t) {
		return ErrStaleIdentity
	}
	i := s.indexActiveLocked(id)
	if i < 0 {
		if s.indexTrashLocked(id) < 0 {
			log.Printf("[SYNC] Soft-deleted %s which was not in the active set", id)
		}
		return nil
	}
	book := s.active[i]
	s.active = append(s.active[:i:i], s.active[i+1:]...)
	s.trash = append([]DeletedBook{{Book: book, DeletedAt: deletedAt}}, s.trash...)
	return nil
}

// Restore clears the deletion stamp remotely and moves the book back to the
// front of the active set.
func (s *Synchronizer) Restore(ctx context.Context, id string) error {
	callCtx, done, t, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := s.remote.Update(callCtx, t.owner, id, wire.Record{wire.FieldDeletedAt: nil}); err != nil {
		return &MutationError{Op: "restore", ID: id, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(t) {
		return ErrStaleIdentity
	}
	j := s.indexTrashLocked(id)
	if j < 0 {
		if s.indexActiveLocked(id) < 0 {
			log.Printf("[SYNC] Restored %s which was not in the trash", id)
		}
		return nil
	}
	book := s.trash[j].Book
	s.trash = append(s.trash[:j:j], s.trash[j+1:]...)
	s.active = append([]Book{book}, s.active...)
	return nil
}

// PermanentlyDelete removes the book on the server and then from the trash.
func (s *Synchronizer) PermanentlyDelete(ctx context.Context, id string) error {
	callCtx, done, t, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := s.remote.Delete(callCtx, t.owner, id); err != nil {
		return &MutationError{Op: "purge", ID: id, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.validLocked(t) {
		s.removeLocked(id)
	}
	return nil
}

// ClearTrash permanently deletes every trashed book in a single remote call.
// An empty trash makes no call at all. The server only deletes books that
// are still trashed when the call lands, so a book restored meanwhile
// survives and stays wherever the restore put it.
func (s *Synchronizer) ClearTrash(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.trash))
	for _, b := range s.trash {
		ids = append(ids, b.ID)
	}
	s.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}

	callCtx, done, t, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	removed, err := s.remote.DeleteTrashed(callCtx, t.owner, ids...)
	if err != nil {
		return &MutationError{Op: "empty trash", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.validLocked(t) {
		for _, id := range removed {
			s.removeLocked(id)
		}
	}
	return nil
}

// ToggleFavorite flips the favorite flag of an active book.
func (s *Synchronizer) ToggleFavorite(ctx context.Context, id string) error {
	s.mu.RLock()
	i := s.indexActiveLocked(id)
	var favorite bool
	if i >= 0 {
		favorite = s.active[i].IsFavorite
	}
	s.mu.RUnlock()

	if i < 0 {
		log.Printf("[SYNC] Toggle favorite: %s is not in the active set", id)
		return ErrNotFoundLocally
	}
	return s.Update(ctx, id, Patch{IsFavorite: Ptr(!favorite)})
}

func (s *Synchronizer) indexActiveLocked(id string) int {
	for i := range s.active {
		if s.active[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) indexTrashLocked(id string) int {
	for i := range s.trash {
		if s.trash[i].ID == id {
			return i
		}
	}
	return -1
}

// lookupLocked finds id in either partition. deletedAt is nil for active books.
func (s *Synchronizer) lookupLocked(id string) (Book, *time.Time, bool) {
	if i := s.indexActiveLocked(id); i >= 0 {
		return s.active[i], nil, true
	}
	if j := s.indexTrashLocked(id); j >= 0 {
		deletedAt := s.trash[j].DeletedAt
		return s.trash[j].Book, &deletedAt, true
	}
	return Book{ID: id}, nil, false
}

// replaceLocked overwrites the stored copy of b in whichever partition holds it.
func (s *Synchronizer) replaceLocked(b Book) {
	if i := s.indexActiveLocked(b.ID); i >= 0 {
		s.active[i] = b
		return
	}
	if j := s.indexTrashLocked(b.ID); j >= 0 {
		s.trash[j].Book = b
	}
}

// placeLocked stores b in the partition its deletion stamp selects. An entry
// already in that partition is replaced in place; otherwise b is removed from
// the other partition and prepended.
func (s *Synchronizer) placeLocked(b Book, deletedAt *time.Time) {
	if deletedAt == nil {
		if i := s.indexActiveLocked(b.ID); i >= 0 {
			s.active[i] = b
			return
		}
		if j := s.indexTrashLocked(b.ID); j >= 0 {
			s.trash = append(s.trash[:j:j], s.trash[j+1:]...)
		}
		s.active = append([]Book{b}, s.active...)
		return
	}

	entry := DeletedBook{Book: b, DeletedAt: *deletedAt}
	if j := s.indexTrashLocked(b.ID); j >= 0 {
		s.trash[j] = entry
		return
	}
	if i := s.indexActiveLocked(b.ID); i >= 0 {
		s.active = append(s.active[:i:i], s.active[i+1:]...)
	}
	s.trash = append([]DeletedBook{entry}, s.trash...)
}

// removeLocked drops id from both partitions.
func (s *Synchronizer) removeLocked(id string) {
	if i := s.indexActiveLocked(id); i >= 0 {
		s.active = append(s.active[:i:i], s.active[i+1:]...)
	}
	if j := s.indexTrashLocked(id); j >= 0 {
		s.trash = append(s.trash[:j:j], s.trash[j+1:]...)
	}
}
