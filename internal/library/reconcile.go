package library

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/storynest/internal/wire"
)

// Apply reconciles one server change event into the local sets. Events for
// other owners are ignored. Applying the same event twice leaves the sets as
// a single application would.
func (s *Synchronizer) Apply(ctx context.Context, ev wire.ChangeEvent) error {
	s.mu.RLock()
	t := ticket{owner: s.owner, generation: s.generation}
	s.mu.RUnlock()

	if t.owner == "" || (ev.Owner != "" && ev.Owner != t.owner) {
		return nil
	}
	id := ev.RecordID()
	if id == "" {
		return ErrEventWithoutID
	}

	switch ev.Type {
	case wire.EventDelete:
		s.mu.Lock()
		if s.validLocked(t) {
			s.removeLocked(id)
		}
		s.mu.Unlock()
		return nil

	case wire.EventInsert:
		book, err := FromWire(ev.New)
		if err != nil {
			return err
		}
		_, deletedAt, err := deletionFromWire(ev.New)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.validLocked(t) {
			s.placeLocked(book, deletedAt)
		}
		s.mu.Unlock()
		return nil

	case wire.EventUpdate:
		return s.applyUpdate(ctx, t, id, ev.New)
	}
	return fmt.Errorf("unknown change type %q", ev.Type)
}

// applyUpdate merges the changed fields onto the known copy of id. An update
// for an id that is in neither set fetches the full record first.
func (s *Synchronizer) applyUpdate(ctx context.Context, t ticket, id string, changed wire.Record) error {
	s.mu.Lock()
	if !s.validLocked(t) {
		s.mu.Unlock()
		return nil
	}
	if book, deletedAt, ok := s.lookupLocked(id); ok {
		err := s.mergeLocked(book, deletedAt, changed)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	callCtx, done, fetchTicket, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()
	if fetchTicket != t {
		return nil
	}

	rec, err := s.remote.Get(callCtx, t.owner, id)
	if errors.Is(err, ErrRemoteNotFound) {
		log.Printf("[SYNC] Dropping update for %s: no longer exists remotely", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", id, err)
	}
	base, err := FromWire(rec)
	if err != nil {
		return err
	}
	_, baseDeleted, err := deletionFromWire(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(t) {
		return nil
	}
	// Another event may have placed the book while the fetch was running.
	if book, deletedAt, ok := s.lookupLocked(id); ok {
		base, baseDeleted = book, deletedAt
	}
	return s.mergeLocked(base, baseDeleted, changed)
}

// mergeLocked applies changed onto book and stores the result in the
// partition its deletion stamp now selects.
func (s *Synchronizer) mergeLocked(book Book, deletedAt *time.Time, changed wire.Record) error {
	merged, err := mergeWire(book, changed)
	if err != nil {
		return err
	}
	merged.ID = book.ID

	present, changedDeletedAt, err := deletionFromWire(changed)
	if err != nil {
		return err
	}
	if present {
		deletedAt = changedDeletedAt
	}
	s.placeLocked(merged, deletedAt)
	return nil
}

// Run applies events in arrival order until ctx ends or the channel closes.
// Events that cannot be applied are logged and discarded.
func (s *Synchronizer) Run(ctx context.Context, events <-chan wire.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.Apply(ctx, ev); err != nil {
				log.Printf("[SYNC] Discarded %s event for %s: %v", ev.Type, ev.RecordID(), err)
			}
		}
	}
}
