package ua

import (
	"fmt"
	"sync"

	"softphone/pkg/engine"
	"softphone/pkg/metrics"
)

// Account wraps one engine account handle. Construction registers the
// wrapper; Delete removes both the engine account and the registration.
type Account struct {
	ua *UA
	id int

	hmu sync.RWMutex
	h   AccountHandler
}

func newAccount(u *UA, id int) *Account {
	a := &Account{ua: u, id: id, h: NoopAccountHandler{}}
	u.reg.associateAccount(id, a)
	metrics.SetHandleCounts(u.reg.counts())
	return a
}

// ID returns the engine handle.
func (a *Account) ID() int { return a.id }

func (a *Account) String() string { return fmt.Sprintf("account %d", a.id) }

// SetHandler installs h as the account's handler, replacing the previous
// one. A nil h restores the default, which declines incoming calls.
func (a *Account) SetHandler(h AccountHandler) {
	if h == nil {
		h = NoopAccountHandler{}
	}
	a.hmu.Lock()
	a.h = h
	a.hmu.Unlock()
}

func (a *Account) handler() AccountHandler {
	a.hmu.RLock()
	defer a.hmu.RUnlock()
	return a.h
}

// Delete unregisters the account from the registrar, removes it from the
// engine and deregisters the wrapper.
func (a *Account) Delete() error {
	err := a.ua.errCheck("delete", a, a.ua.eng.AccountDelete(a.id))
	a.ua.reg.disassociateAccount(a)
	metrics.SetHandleCounts(a.ua.reg.counts())
	return err
}

// IsValid reports whether the engine still knows this account.
func (a *Account) IsValid() bool {
	return a.ua.eng.AccountIsValid(a.id)
}

// Info retrieves a snapshot of the account state.
func (a *Account) Info() (*engine.AccountInfo, error) {
	code, info := a.ua.eng.AccountInfo(a.id)
	if err := a.ua.errCheck("account_info", a, code); err != nil {
		return nil, err
	}
	return info, nil
}

// SetDefault makes this the account used when an operation does not name
// one.
func (a *Account) SetDefault() error {
	return a.ua.errCheck("set_default", a, a.ua.eng.AccountSetDefault(a.id))
}

// IsDefault reports whether this is the default account.
func (a *Account) IsDefault() bool {
	return a.ua.eng.AccountDefault() == a.id
}

// SetRegistration starts registration (renew true) or unregisters
// (renew false). Progress arrives via OnRegState.
func (a *Account) SetRegistration(renew bool) error {
	return a.ua.errCheck("set_registration", a, a.ua.eng.AccountSetRegistration(a.id, renew))
}

// SetTransport locks the account onto a specific transport.
func (a *Account) SetTransport(tp *Transport) error {
	return a.ua.errCheck("set_transport", a, a.ua.eng.AccountSetTransport(a.id, tp.id))
}

// SetBasicStatus publishes simple online or offline presence.
func (a *Account) SetBasicStatus(online bool) error {
	return a.SetPresenceStatus(online, engine.ActivityUnknown, "")
}

// SetPresenceStatus publishes presence with an activity and a free-form
// status text.
func (a *Account) SetPresenceStatus(online bool, activity engine.PresenceActivity, statusText string) error {
	return a.ua.errCheck("set_presence_status", a,
		a.ua.eng.AccountSetOnlineStatus(a.id, online, activity, statusText))
}

// MakeCall starts an outbound call to dstURI and returns its wrapper.
func (a *Account) MakeCall(dstURI string, hdrs []engine.Header) (*Call, error) {
	code, callID := a.ua.eng.CallMake(a.id, dstURI, hdrs)
	if err := a.ua.errCheck("make_call", a, code); err != nil {
		return nil, err
	}
	return newCall(a.ua, callID), nil
}

// AddBuddy adds a presence buddy owned by this account and returns its
// wrapper.
func (a *Account) AddBuddy(uri string, subscribe bool) (*Buddy, error) {
	cfg := &engine.BuddyConfig{URI: uri, Subscribe: subscribe}
	code, buddyID := a.ua.eng.BuddyAdd(cfg)
	if err := a.ua.errCheck("add_buddy", a, code); err != nil {
		return nil, err
	}
	return newBuddy(a.ua, buddyID, uri, a), nil
}

// SendPager sends an instant message through this account. The imID is
// echoed back in the matching OnPagerStatus notification.
func (a *Account) SendPager(toURI, mimeType, body string, imID int, hdrs []engine.Header) error {
	return a.ua.errCheck("send_pager", a,
		a.ua.eng.SendMessage(a.id, toURI, mimeType, body, imID, hdrs))
}

// SendTypingIndication tells toURI that we started or stopped typing.
func (a *Account) SendTypingIndication(toURI string, isTyping bool, hdrs []engine.Header) error {
	return a.ua.errCheck("send_typing", a,
		a.ua.eng.SendTyping(a.id, toURI, isTyping, hdrs))
}
