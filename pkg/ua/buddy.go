package ua

import (
	"fmt"
	"sync"

	"softphone/pkg/engine"
	"softphone/pkg/metrics"
)

// Buddy wraps one engine buddy handle. Buddies are owned by the account
// that added them; inbound messages matching the buddy's URI are routed
// here before falling back to the account.
type Buddy struct {
	ua      *UA
	id      int
	uri     string
	account *Account

	hmu sync.RWMutex
	h   BuddyHandler
}

func newBuddy(u *UA, id int, uri string, account *Account) *Buddy {
	b := &Buddy{ua: u, id: id, uri: uri, account: account, h: NoopBuddyHandler{}}
	u.reg.associateBuddy(id, b, uri)
	metrics.SetHandleCounts(u.reg.counts())
	return b
}

// ID returns the engine handle.
func (b *Buddy) ID() int { return b.id }

// URI returns the buddy's SIP URI as given at Add time.
func (b *Buddy) URI() string { return b.uri }

// Account returns the account that owns this buddy.
func (b *Buddy) Account() *Account { return b.account }

func (b *Buddy) String() string { return fmt.Sprintf("buddy %d", b.id) }

// SetHandler installs h as the buddy's handler, replacing the previous
// one. A nil h restores the no-op default.
func (b *Buddy) SetHandler(h BuddyHandler) {
	if h == nil {
		h = NoopBuddyHandler{}
	}
	b.hmu.Lock()
	b.h = h
	b.hmu.Unlock()
}

func (b *Buddy) handler() BuddyHandler {
	b.hmu.RLock()
	defer b.hmu.RUnlock()
	return b.h
}

// Delete removes the buddy from the engine and deregisters the wrapper,
// including its URI index entry.
func (b *Buddy) Delete() error {
	err := b.ua.errCheck("delete", b, b.ua.eng.BuddyDelete(b.id))
	b.ua.reg.disassociateBuddy(b)
	metrics.SetHandleCounts(b.ua.reg.counts())
	return err
}

// Info retrieves a snapshot of the buddy's presence state.
func (b *Buddy) Info() (*engine.BuddyInfo, error) {
	code, info := b.ua.eng.BuddyInfo(b.id)
	if err := b.ua.errCheck("buddy_info", b, code); err != nil {
		return nil, err
	}
	return info, nil
}

// Subscribe starts the presence subscription for this buddy.
func (b *Buddy) Subscribe() error {
	return b.ua.errCheck("subscribe", b, b.ua.eng.BuddySubscribe(b.id, true))
}

// Unsubscribe stops the presence subscription.
func (b *Buddy) Unsubscribe() error {
	return b.ua.errCheck("unsubscribe", b, b.ua.eng.BuddySubscribe(b.id, false))
}

// SendPager sends an instant message to the buddy through its owning
// account. The imID is echoed back in the matching OnPagerStatus
// notification.
func (b *Buddy) SendPager(mimeType, body string, imID int, hdrs []engine.Header) error {
	return b.ua.errCheck("send_pager", b,
		b.ua.eng.SendMessage(b.account.id, b.uri, mimeType, body, imID, hdrs))
}

// SendTypingIndication tells the buddy that we started or stopped
// typing.
func (b *Buddy) SendTypingIndication(isTyping bool, hdrs []engine.Header) error {
	return b.ua.errCheck("send_typing", b,
		b.ua.eng.SendTyping(b.account.id, b.uri, isTyping, hdrs))
}
