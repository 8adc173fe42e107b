// Package identity tracks the currently signed-in user on the client side and
// notifies interested components when it changes.
//
// # Usage
//
//	provider := identity.NewProvider()
//	unsubscribe := provider.Subscribe(func(id *identity.Identity) {
//		// id is nil after sign-out
//	})
//	provider.SignIn(identity.Identity{ID: "7", Email: "ana@example.com"})
package identity

import (
	"strings"
	"sync"
)

// DefaultDisplayName is used when nothing better can be derived.
const DefaultDisplayName = "User"

// Identity is an authenticated user as seen by the client.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Metadata holds the optional profile fields a user may have set.
type Metadata struct {
	Name      string
	FullName  string
	UserName  string
	AvatarURL string
}

// DisplayName picks the first non-blank of name, full name, user name and the
// local part of the email address, falling back to DefaultDisplayName.
func DisplayName(email string, md Metadata) string {
	for _, candidate := range []string{md.Name, md.FullName, md.UserName} {
		if s := strings.TrimSpace(candidate); s != "" {
			return s
		}
	}
	if local, _, ok := strings.Cut(email, "@"); ok && strings.TrimSpace(local) != "" {
		return strings.TrimSpace(local)
	}
	return DefaultDisplayName
}

// Provider holds the current identity. Subscribers are called synchronously,
// outside the provider lock, whenever the signed-in user id changes.
type Provider struct {
	mu      sync.RWMutex
	current *Identity
	subs    map[int]func(*Identity)
	nextSub int
}

// NewProvider creates a provider with no signed-in user.
func NewProvider() *Provider {
	return &Provider{subs: make(map[int]func(*Identity))}
}

// Current returns a copy of the signed-in identity, or nil.
func (p *Provider) Current() *Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	id := *p.current
	return &id
}

// SignIn replaces the current identity. Profile-only changes for the same
// user id update the stored identity without notifying subscribers.
func (p *Provider) SignIn(id Identity) {
	p.set(&id)
}

// SignOut clears the current identity.
func (p *Provider) SignOut() {
	p.set(nil)
}

// Subscribe registers fn and returns a function that removes it.
func (p *Provider) Subscribe(fn func(*Identity)) func() {
	p.mu.Lock()
	key := p.nextSub
	p.nextSub++
	p.subs[key] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, key)
		p.mu.Unlock()
	}
}

func (p *Provider) set(id *Identity) {
	p.mu.Lock()
	changed := idOf(p.current) != idOf(id)
	p.current = id
	var subs []func(*Identity)
	if changed {
		subs = make([]func(*Identity), 0, len(p.subs))
		for _, fn := range p.subs {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range subs {
		var arg *Identity
		if id != nil {
			cp := *id
			arg = &cp
		}
		fn(arg)
	}
}

func idOf(id *Identity) string {
	if id == nil {
		return ""
	}
	return id.ID
}
