package ua

import "testing"

func TestRegistryLatestWins(t *testing.T) {
	r := newRegistry()
	first := &Call{id: 7}
	second := &Call{id: 7}

	r.associateCall(7, first)
	r.associateCall(7, second)

	got, ok := r.lookupCall(7)
	if !ok || got != second {
		t.Fatalf("lookup after re-register: got %p, want %p", got, second)
	}

	// A stale deregistration must not evict the newer registration.
	r.disassociateCall(first)
	got, ok = r.lookupCall(7)
	if !ok || got != second {
		t.Fatalf("lookup after stale deregister: got %p, want %p", got, second)
	}

	r.disassociateCall(second)
	if _, ok := r.lookupCall(7); ok {
		t.Fatal("call still registered after owner deregistered")
	}
}

func TestRegistryAccountIdentityGuard(t *testing.T) {
	r := newRegistry()
	old := &Account{id: 2}
	cur := &Account{id: 2}

	r.associateAccount(2, old)
	r.associateAccount(2, cur)
	r.disassociateAccount(old)

	if got, ok := r.lookupAccount(2); !ok || got != cur {
		t.Fatalf("stale account deregister evicted current registration")
	}
}

func TestRegistryBuddyURIIndex(t *testing.T) {
	r := newRegistry()
	b := &Buddy{id: 3, uri: "sip:bob@example.com"}
	r.associateBuddy(3, b, b.uri)

	for _, uri := range []string{
		"sip:bob@example.com",
		"sip:bob@example.com:5060",
		"sip:bob@example.com;transport=tcp",
		"\"Bob\" <sip:bob@example.com:5060>",
	} {
		got, ok := r.lookupBuddyByURI(uri)
		if !ok || got != b {
			t.Errorf("lookupBuddyByURI(%q) did not find buddy", uri)
		}
	}

	if _, ok := r.lookupBuddyByURI("sip:alice@example.com"); ok {
		t.Error("lookup matched a different user")
	}
	if _, ok := r.lookupBuddyByURI("not a uri at all"); ok {
		t.Error("lookup matched an unparseable uri")
	}

	r.disassociateBuddy(b)
	if _, ok := r.lookupBuddy(3); ok {
		t.Error("buddy still registered after delete")
	}
	if _, ok := r.lookupBuddyByURI("sip:bob@example.com"); ok {
		t.Error("uri index entry survived delete")
	}
}

func TestBuddyURIKeyMalformed(t *testing.T) {
	if _, ok := buddyURIKey(""); ok {
		t.Error("empty string parsed as uri")
	}
	if _, ok := buddyURIKey("   "); ok {
		t.Error("blank string parsed as uri")
	}
}
