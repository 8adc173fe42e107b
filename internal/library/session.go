package library

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mrlokans/storynest/internal/identity"
)

// Session ties a Synchronizer to the signed-in identity. Starting it for a
// user subscribes to that user's change feed, loads both partitions and keeps
// a goroutine reconciling notifications until the identity changes again.
type Session struct {
	remote RemoteStore
	sync   *Synchronizer

	mu     sync.Mutex
	sub    Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(remote RemoteStore, opts Options) *Session {
	return &Session{
		remote: remote,
		sync:   NewSynchronizer(remote, opts),
	}
}

func (s *Session) Synchronizer() *Synchronizer {
	return s.sync
}

// Ready reports whether the current user's collection has been loaded.
func (s *Session) Ready() bool {
	return s.sync.Ready()
}

// Start tears down any previous binding and binds the session to id. A nil
// id leaves the session empty. The subscription opens before the load so no
// change made in between is missed; reconciliation makes the overlap harmless.
func (s *Session) Start(ctx context.Context, id *identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	if id == nil {
		return nil
	}
	s.sync.Reset(id.ID)

	runCtx, cancel := context.WithCancel(context.Background())
	sub, err := s.remote.Subscribe(runCtx, id.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to changes: %w", err)
	}
	if err := s.sync.Load(ctx, id.ID); err != nil {
		cancel()
		_ = sub.Close()
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.sync.Run(runCtx, sub.Events())
	}()
	s.sub, s.cancel, s.done = sub, cancel, done
	return nil
}

// Teardown stops reconciliation, closes the feed and empties both sets.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

func (s *Session) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.sub != nil {
		if err := s.sub.Close(); err != nil {
			log.Printf("[SYNC] Closing change feed: %v", err)
		}
	}
	if s.done != nil {
		<-s.done
	}
	s.sub, s.cancel, s.done = nil, nil, nil
	s.sync.Reset("")
}

// Bind starts the session for the provider's current identity and restarts
// it on every identity change. The returned function stops following the
// provider and tears the session down.
func (s *Session) Bind(ctx context.Context, p *identity.Provider) func() {
	unsubscribe := p.Subscribe(func(id *identity.Identity) {
		if err := s.Start(ctx, id); err != nil {
			log.Printf("[SYNC] Starting session: %v", err)
		}
	})
	if err := s.Start(ctx, p.Current()); err != nil {
		log.Printf("[SYNC] Starting session: %v", err)
	}
	return func() {
		unsubscribe()
		s.Teardown()
	}
}
