// Package enginetest provides a scriptable in-memory engine.Engine for
// wrapper and dispatcher tests. Operations are recorded, status codes
// can be forced per operation, and Fire* helpers invoke the installed
// callbacks the way a live engine would from HandleEvents.
package enginetest

import (
	"fmt"
	"sync"
	"time"

	"softphone/pkg/engine"
)

// Op is one recorded engine operation.
type Op struct {
	Name string
	Args []any
}

// Fake implements engine.Engine in memory.
type Fake struct {
	mu sync.Mutex

	cb    *engine.Callbacks
	codes map[string]engine.Code
	ops   []Op

	nextCallID int
	nextAccID  int
	nextBudID  int
	nextTpID   int
	defaultAcc int

	activeCalls map[int]bool
	validAccs   map[int]bool
	validBuds   map[int]bool

	events chan func()
}

// New returns a fake with every operation succeeding.
func New() *Fake {
	return &Fake{
		codes:       make(map[string]engine.Code),
		activeCalls: make(map[int]bool),
		validAccs:   make(map[int]bool),
		validBuds:   make(map[int]bool),
		defaultAcc:  engine.NoAccount,
		events:      make(chan func(), 64),
	}
}

// SetCode forces the status code returned by the named operation, e.g.
// "CallHangup".
func (f *Fake) SetCode(op string, code engine.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[op] = code
}

// Ops returns a copy of the recorded operations.
func (f *Fake) Ops() []Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Op, len(f.ops))
	copy(out, f.ops)
	return out
}

// OpNames returns the recorded operation names in order.
func (f *Fake) OpNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.ops))
	for i, op := range f.ops {
		out[i] = op.Name
	}
	return out
}

// FindOp returns the first recorded operation with the given name.
func (f *Fake) FindOp(name string) (Op, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range f.ops {
		if op.Name == name {
			return op, true
		}
	}
	return Op{}, false
}

// SetCallActive overrides whether CallIsActive reports the call alive.
func (f *Fake) SetCallActive(id int, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeCalls[id] = active
}

// Callbacks returns the callback set installed at Init.
func (f *Fake) Callbacks() *engine.Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

// Enqueue queues fn for delivery by the next HandleEvents call.
func (f *Fake) Enqueue(fn func()) {
	f.events <- fn
}

func (f *Fake) record(name string, args ...any) engine.Code {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, Op{Name: name, Args: args})
	if code, ok := f.codes[name]; ok {
		return code
	}
	return engine.OK
}

// Fire helpers invoke the installed callbacks synchronously, standing in
// for a live engine's event delivery.

func (f *Fake) FireCallState(callID int) {
	if cb := f.Callbacks(); cb != nil && cb.OnCallState != nil {
		cb.OnCallState(callID)
	}
}

func (f *Fake) FireIncomingCall(accountID, callID int) {
	f.mu.Lock()
	f.activeCalls[callID] = true
	f.mu.Unlock()
	if cb := f.Callbacks(); cb != nil && cb.OnIncomingCall != nil {
		cb.OnIncomingCall(accountID, callID)
	}
}

func (f *Fake) FireDTMFDigit(callID int, digits string) {
	if cb := f.Callbacks(); cb != nil && cb.OnDTMFDigit != nil {
		cb.OnDTMFDigit(callID, digits)
	}
}

func (f *Fake) FireTransferRequest(callID int, dst string, code int) int {
	if cb := f.Callbacks(); cb != nil && cb.OnTransferRequest != nil {
		return cb.OnTransferRequest(callID, dst, code)
	}
	return code
}

func (f *Fake) FireTransferStatus(callID, code int, reason string, final, cont bool) bool {
	if cb := f.Callbacks(); cb != nil && cb.OnTransferStatus != nil {
		return cb.OnTransferStatus(callID, code, reason, final, cont)
	}
	return cont
}

func (f *Fake) FireReplaceRequest(callID, code int, reason string) (int, string) {
	if cb := f.Callbacks(); cb != nil && cb.OnReplaceRequest != nil {
		return cb.OnReplaceRequest(callID, code, reason)
	}
	return code, reason
}

func (f *Fake) FireRegState(accountID int) {
	if cb := f.Callbacks(); cb != nil && cb.OnRegState != nil {
		cb.OnRegState(accountID)
	}
}

func (f *Fake) FireBuddyState(buddyID int) {
	if cb := f.Callbacks(); cb != nil && cb.OnBuddyState != nil {
		cb.OnBuddyState(buddyID)
	}
}

func (f *Fake) FirePager(callID int, fromURI, toURI, contact, mimeType, body string, accountID int) {
	if cb := f.Callbacks(); cb != nil && cb.OnPager != nil {
		cb.OnPager(callID, fromURI, toURI, contact, mimeType, body, accountID)
	}
}

func (f *Fake) FirePagerStatus(callID int, toURI, body string, imID, code int, reason string, accountID int) {
	if cb := f.Callbacks(); cb != nil && cb.OnPagerStatus != nil {
		cb.OnPagerStatus(callID, toURI, body, imID, code, reason, accountID)
	}
}

func (f *Fake) FireTyping(callID int, fromURI, toURI, contact string, isTyping bool, accountID int) {
	if cb := f.Callbacks(); cb != nil && cb.OnTyping != nil {
		cb.OnTyping(callID, fromURI, toURI, contact, isTyping, accountID)
	}
}

// engine.Engine implementation.

func (f *Fake) Create() engine.Code { return f.record("Create") }

func (f *Fake) Init(cfg *engine.EndpointConfig, logCfg *engine.LogConfig, mediaCfg *engine.MediaConfig, cb *engine.Callbacks) engine.Code {
	code := f.record("Init")
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	return code
}

func (f *Fake) Start() engine.Code   { return f.record("Start") }
func (f *Fake) Destroy() engine.Code { return f.record("Destroy") }

// HandleEvents drains queued events without waiting out the full
// timeout, so shutdown tests run fast.
func (f *Fake) HandleEvents(timeout time.Duration) engine.Code {
	for {
		select {
		case fn := <-f.events:
			fn()
		default:
			return engine.OK
		}
	}
}

func (f *Fake) Strerror(code engine.Code) string {
	return fmt.Sprintf("fake error %d", code)
}

func (f *Fake) VerifyURI(uri string) engine.Code {
	return f.record("VerifyURI", uri)
}

func (f *Fake) TransportCreate(typ engine.TransportType, cfg *engine.TransportConfig) (engine.Code, int) {
	code := f.record("TransportCreate", typ)
	f.mu.Lock()
	id := f.nextTpID
	f.nextTpID++
	f.mu.Unlock()
	return code, id
}

func (f *Fake) TransportInfo(id int) (engine.Code, *engine.TransportInfo) {
	return f.record("TransportInfo", id), &engine.TransportInfo{Port: 5060}
}

func (f *Fake) TransportSetEnabled(id int, enabled bool) engine.Code {
	return f.record("TransportSetEnabled", id, enabled)
}

func (f *Fake) TransportClose(id int, force bool) engine.Code {
	return f.record("TransportClose", id, force)
}

func (f *Fake) AccountAdd(cfg *engine.AccountConfig, setDefault bool) (engine.Code, int) {
	code := f.record("AccountAdd", cfg, setDefault)
	f.mu.Lock()
	id := f.nextAccID
	f.nextAccID++
	f.validAccs[id] = true
	if setDefault || f.defaultAcc == engine.NoAccount {
		f.defaultAcc = id
	}
	f.mu.Unlock()
	return code, id
}

func (f *Fake) AccountAddLocal(transportID int, setDefault bool) (engine.Code, int) {
	code := f.record("AccountAddLocal", transportID, setDefault)
	f.mu.Lock()
	id := f.nextAccID
	f.nextAccID++
	f.validAccs[id] = true
	if setDefault || f.defaultAcc == engine.NoAccount {
		f.defaultAcc = id
	}
	f.mu.Unlock()
	return code, id
}

func (f *Fake) AccountDelete(id int) engine.Code {
	code := f.record("AccountDelete", id)
	f.mu.Lock()
	delete(f.validAccs, id)
	f.mu.Unlock()
	return code
}

func (f *Fake) AccountSetDefault(id int) engine.Code {
	code := f.record("AccountSetDefault", id)
	f.mu.Lock()
	f.defaultAcc = id
	f.mu.Unlock()
	return code
}

func (f *Fake) AccountDefault() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defaultAcc
}

func (f *Fake) AccountIsValid(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validAccs[id]
}

func (f *Fake) AccountInfo(id int) (engine.Code, *engine.AccountInfo) {
	return f.record("AccountInfo", id), &engine.AccountInfo{}
}

func (f *Fake) AccountSetOnlineStatus(id int, online bool, activity engine.PresenceActivity, statusText string) engine.Code {
	return f.record("AccountSetOnlineStatus", id, online, statusText)
}

func (f *Fake) AccountSetRegistration(id int, renew bool) engine.Code {
	return f.record("AccountSetRegistration", id, renew)
}

func (f *Fake) AccountSetTransport(id int, transportID int) engine.Code {
	return f.record("AccountSetTransport", id, transportID)
}

func (f *Fake) CallMake(accountID int, dstURI string, hdrs []engine.Header) (engine.Code, int) {
	code := f.record("CallMake", accountID, dstURI)
	f.mu.Lock()
	id := f.nextCallID
	f.nextCallID++
	f.activeCalls[id] = true
	f.mu.Unlock()
	return code, id
}

func (f *Fake) CallAnswer(id int, status int, reason string, hdrs []engine.Header) engine.Code {
	return f.record("CallAnswer", id, status, reason)
}

func (f *Fake) CallHangup(id int, status int, reason string, hdrs []engine.Header) engine.Code {
	code := f.record("CallHangup", id, status, reason)
	f.mu.Lock()
	f.activeCalls[id] = false
	f.mu.Unlock()
	return code
}

func (f *Fake) CallSetHold(id int, hdrs []engine.Header) engine.Code {
	return f.record("CallSetHold", id)
}

func (f *Fake) CallReinvite(id int, unhold bool, hdrs []engine.Header) engine.Code {
	return f.record("CallReinvite", id, unhold)
}

func (f *Fake) CallUpdate(id int, hdrs []engine.Header) engine.Code {
	return f.record("CallUpdate", id)
}

func (f *Fake) CallTransfer(id int, dstURI string, hdrs []engine.Header) engine.Code {
	return f.record("CallTransfer", id, dstURI)
}

func (f *Fake) CallTransferReplaces(id int, destCallID int, hdrs []engine.Header) engine.Code {
	return f.record("CallTransferReplaces", id, destCallID)
}

func (f *Fake) CallDialDTMF(id int, digits string) engine.Code {
	return f.record("CallDialDTMF", id, digits)
}

func (f *Fake) CallSendRequest(id int, method string, hdrs []engine.Header, contentType, body string) engine.Code {
	return f.record("CallSendRequest", id, method, contentType, body)
}

func (f *Fake) CallSendMessage(id int, mimeType, body string, imID int, hdrs []engine.Header) engine.Code {
	return f.record("CallSendMessage", id, mimeType, body, imID)
}

func (f *Fake) CallSendTyping(id int, isTyping bool, hdrs []engine.Header) engine.Code {
	return f.record("CallSendTyping", id, isTyping)
}

func (f *Fake) CallIsActive(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeCalls[id]
}

func (f *Fake) CallInfo(id int) (engine.Code, *engine.CallInfo) {
	return f.record("CallInfo", id), &engine.CallInfo{}
}

func (f *Fake) HangupAll() {
	f.record("HangupAll")
	f.mu.Lock()
	for id := range f.activeCalls {
		f.activeCalls[id] = false
	}
	f.mu.Unlock()
}

func (f *Fake) BuddyAdd(cfg *engine.BuddyConfig) (engine.Code, int) {
	code := f.record("BuddyAdd", cfg.URI, cfg.Subscribe)
	f.mu.Lock()
	id := f.nextBudID
	f.nextBudID++
	f.validBuds[id] = true
	f.mu.Unlock()
	return code, id
}

func (f *Fake) BuddyDelete(id int) engine.Code {
	code := f.record("BuddyDelete", id)
	f.mu.Lock()
	delete(f.validBuds, id)
	f.mu.Unlock()
	return code
}

func (f *Fake) BuddyInfo(id int) (engine.Code, *engine.BuddyInfo) {
	return f.record("BuddyInfo", id), &engine.BuddyInfo{}
}

func (f *Fake) BuddySubscribe(id int, subscribe bool) engine.Code {
	return f.record("BuddySubscribe", id, subscribe)
}

func (f *Fake) SendMessage(accountID int, toURI, mimeType, body string, imID int, hdrs []engine.Header) engine.Code {
	return f.record("SendMessage", accountID, toURI, mimeType, body, imID)
}

func (f *Fake) SendTyping(accountID int, toURI string, isTyping bool, hdrs []engine.Header) engine.Code {
	return f.record("SendTyping", accountID, toURI, isTyping)
}
