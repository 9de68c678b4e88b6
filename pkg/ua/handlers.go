package ua

// Handler interfaces, one per entity kind. Each wrapper object holds a
// single current handler; installing a new one replaces the previous one.
// Handlers run on the engine's event-processing context and must return
// quickly; hand slow work off to another goroutine.
//
// Embed the matching Noop type to implement only the notifications you
// care about.

// CallHandler receives notifications for one call.
type CallHandler interface {
	// OnState is invoked when the call signaling state changes.
	OnState(call *Call)
	// OnMediaState is invoked when the call media state changes.
	OnMediaState(call *Call)
	// OnDTMFDigit is invoked for incoming DTMF digits.
	OnDTMFDigit(call *Call, digits string)
	// OnTransferRequest is invoked when the remote party transfers the
	// call. Return 202 to accept or a 300-699 status to reject; code is
	// the engine-suggested answer.
	OnTransferRequest(call *Call, dst string, code int) int
	// OnTransferStatus reports progress of an earlier transfer. Return
	// false to stop further notifications; cont is the engine-suggested
	// answer.
	OnTransferStatus(call *Call, code int, reason string, final, cont bool) bool
	// OnReplaceRequest is invoked for an INVITE with Replaces targeting
	// this call. Return the status and reason to answer with; values
	// >= 500 reject the request.
	OnReplaceRequest(call *Call, code int, reason string) (int, string)
	// OnReplaced is invoked when this call is about to be replaced by
	// newCall.
	OnReplaced(call, newCall *Call)
	// OnPager is invoked for an instant message received within this
	// call's dialog.
	OnPager(call *Call, mimeType, body string)
	// OnPagerStatus reports delivery status of a previously sent
	// instant message.
	OnPagerStatus(call *Call, body string, imID, code int, reason string)
	// OnTyping is invoked for a typing indication within this call.
	OnTyping(call *Call, isTyping bool)
}

// AccountHandler receives notifications for one account.
type AccountHandler interface {
	// OnRegState is invoked when the registration status changes.
	OnRegState(acc *Account)
	// OnIncomingCall is invoked for a new inbound call on this account.
	// The default behavior (NoopAccountHandler) declines the call.
	OnIncomingCall(acc *Account, call *Call)
	// OnPager is invoked for an instant message that matched this
	// account but no buddy and no call.
	OnPager(acc *Account, fromURI, contact, mimeType, body string)
	// OnPagerStatus reports delivery status of an instant message sent
	// through this account.
	OnPagerStatus(acc *Account, toURI, body string, imID, code int, reason string)
	// OnTyping is invoked for a typing indication that matched this
	// account but no buddy and no call.
	OnTyping(acc *Account, fromURI, contact string, isTyping bool)
}

// BuddyHandler receives notifications for one buddy.
type BuddyHandler interface {
	// OnState is invoked when the buddy's presence state changes.
	OnState(b *Buddy)
	// OnPager is invoked for an instant message from this buddy.
	OnPager(b *Buddy, mimeType, body string)
	// OnPagerStatus reports delivery status of an instant message sent
	// to this buddy.
	OnPagerStatus(b *Buddy, body string, imID, code int, reason string)
	// OnTyping is invoked when the buddy starts or stops typing.
	OnTyping(b *Buddy, isTyping bool)
}

// NoopCallHandler is a CallHandler that ignores every notification and
// answers requests with the engine-suggested values.
type NoopCallHandler struct{}

func (NoopCallHandler) OnState(*Call)                 {}
func (NoopCallHandler) OnMediaState(*Call)            {}
func (NoopCallHandler) OnDTMFDigit(*Call, string)     {}
func (NoopCallHandler) OnReplaced(*Call, *Call)       {}
func (NoopCallHandler) OnPager(*Call, string, string) {}
func (NoopCallHandler) OnTyping(*Call, bool)          {}

func (NoopCallHandler) OnPagerStatus(*Call, string, int, int, string) {}

func (NoopCallHandler) OnTransferRequest(_ *Call, _ string, code int) int {
	return code
}

func (NoopCallHandler) OnTransferStatus(_ *Call, _ int, _ string, _, cont bool) bool {
	return cont
}

func (NoopCallHandler) OnReplaceRequest(_ *Call, code int, reason string) (int, string) {
	return code, reason
}

// NoopAccountHandler is an AccountHandler that ignores every notification
// except incoming calls, which it declines.
type NoopAccountHandler struct{}

func (NoopAccountHandler) OnRegState(*Account)                              {}
func (NoopAccountHandler) OnPager(*Account, string, string, string, string) {}
func (NoopAccountHandler) OnTyping(*Account, string, string, bool)          {}

func (NoopAccountHandler) OnPagerStatus(*Account, string, string, int, int, string) {}

func (NoopAccountHandler) OnIncomingCall(_ *Account, call *Call) {
	_ = call.Hangup(statusDecline, "", nil)
}

// NoopBuddyHandler is a BuddyHandler that ignores every notification.
type NoopBuddyHandler struct{}

func (NoopBuddyHandler) OnState(*Buddy)                 {}
func (NoopBuddyHandler) OnPager(*Buddy, string, string) {}
func (NoopBuddyHandler) OnTyping(*Buddy, bool)          {}

func (NoopBuddyHandler) OnPagerStatus(*Buddy, string, int, int, string) {}
