package ua

import "sync"

// registry maps engine-assigned handles to live wrapper objects, one map
// per entity kind, plus a secondary (user, host) index for buddies so
// inbound messages can be routed when the engine supplies a URI but no
// handle.
//
// Registration is last-write-wins. Deregistration only removes an entry
// when the mapped object is identity-equal to the one being removed, so a
// stale deregistration can never evict a newer registration that reused
// the handle. A single mutex serializes all access: the maps are small,
// every operation is O(1), and registration races with lookups triggered
// by in-flight engine notifications.
//
// The URI index is best-effort: it is written at registration time and is
// not refreshed if the buddy's URI changes afterwards.
type registry struct {
	mu           sync.Mutex
	calls        map[int]*Call
	accounts     map[int]*Account
	buddies      map[int]*Buddy
	buddiesByURI map[uriKey]*Buddy
}

func newRegistry() *registry {
	return &registry{
		calls:        make(map[int]*Call),
		accounts:     make(map[int]*Account),
		buddies:      make(map[int]*Buddy),
		buddiesByURI: make(map[uriKey]*Buddy),
	}
}

func (r *registry) associateCall(id int, c *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id] = c
}

func (r *registry) lookupCall(id int) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	return c, ok
}

func (r *registry) disassociateCall(c *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls[c.id] == c {
		delete(r.calls, c.id)
	}
}

func (r *registry) associateAccount(id int, a *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[id] = a
}

func (r *registry) lookupAccount(id int) (*Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	return a, ok
}

func (r *registry) disassociateAccount(a *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.accounts[a.id] == a {
		delete(r.accounts, a.id)
	}
}

func (r *registry) associateBuddy(id int, b *Buddy, uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buddies[id] = b
	if key, ok := buddyURIKey(uri); ok {
		r.buddiesByURI[key] = b
	}
}

func (r *registry) lookupBuddy(id int) (*Buddy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buddies[id]
	return b, ok
}

// lookupBuddyByURI resolves a buddy from a URI when no handle is known.
// Matching is on user and host only.
func (r *registry) lookupBuddyByURI(uri string) (*Buddy, bool) {
	key, ok := buddyURIKey(uri)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buddiesByURI[key]
	return b, ok
}

func (r *registry) disassociateBuddy(b *Buddy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buddies[b.id] == b {
		delete(r.buddies, b.id)
	}
	if key, ok := buddyURIKey(b.uri); ok {
		if r.buddiesByURI[key] == b {
			delete(r.buddiesByURI, key)
		}
	}
}

func (r *registry) counts() (calls, accounts, buddies int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls), len(r.accounts), len(r.buddies)
}
