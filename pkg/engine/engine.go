// Package engine defines the boundary to the native SIP/media engine.
//
// The engine is an opaque collaborator with a C-style contract: every
// request returns a status Code plus out-values, configuration comes from
// default-factory functions, and notifications arrive through a fixed set
// of callback slots installed once at Init time. Handles for calls,
// accounts and buddies are small integers assigned by the engine, with -1
// reserved to mean "no context applies".
package engine

import "time"

// Code is an engine status code. Zero means success.
type Code int

const (
	OK Code = 0

	// CodeInvalidID is reported for operations on a handle the engine
	// does not know.
	CodeInvalidID Code = 70001
	// CodeInvalidArg is reported for malformed arguments, including
	// URIs that fail verification.
	CodeInvalidArg Code = 70004
	// CodeNotSupported is reported by engine builds that lack the
	// requested capability (e.g. media operations on a signaling-only
	// build).
	CodeNotSupported Code = 70009
	// CodeBusy is reported when the engine cannot take the request in
	// its current state.
	CodeBusy Code = 70013
	// CodeTransport is reported for transport-level send failures.
	CodeTransport Code = 70018
)

// Sentinel handle values. The engine uses these to signal that no call,
// account or buddy context applies to a notification.
const (
	NoCall    = -1
	NoAccount = -1
	NoBuddy   = -1
)

// Callbacks holds one function per engine notification slot. The wrapper
// installs exactly one function in every slot before Start; nil slots are
// never invoked. All callbacks run on the engine's event-processing
// context and must not block.
type Callbacks struct {
	OnCallState       func(callID int)
	OnIncomingCall    func(accountID, callID int)
	OnCallMediaState  func(callID int)
	OnDTMFDigit       func(callID int, digits string)
	OnTransferRequest func(callID int, dst string, code int) int
	OnTransferStatus  func(callID int, code int, reason string, final, cont bool) bool
	OnReplaceRequest  func(callID int, code int, reason string) (int, string)
	OnCallReplaced    func(oldCallID, newCallID int)
	OnRegState        func(accountID int)
	OnBuddyState      func(buddyID int)

	// Messaging notifications carry both a call handle and an account
	// handle; either may be a sentinel.
	OnPager       func(callID int, fromURI, toURI, contact, mimeType, body string, accountID int)
	OnPagerStatus func(callID int, toURI, body string, imID int, code int, reason string, accountID int)
	OnTyping      func(callID int, fromURI, toURI, contact string, isTyping bool, accountID int)
}

// Engine is the native engine request surface. Implementations translate
// these operations onto whatever stack actually does the protocol work;
// the wrapper layer treats them uniformly as "status code plus outputs".
type Engine interface {
	// Lifecycle.
	Create() Code
	Init(cfg *EndpointConfig, logCfg *LogConfig, mediaCfg *MediaConfig, cb *Callbacks) Code
	Start() Code
	Destroy() Code

	// HandleEvents processes pending engine events, waiting at most
	// timeout for new ones. Notifications fire synchronously from
	// inside this call (or from the engine's own worker contexts,
	// depending on the build).
	HandleEvents(timeout time.Duration) Code

	// Strerror resolves a status code to a human-readable message.
	Strerror(code Code) string
	// VerifyURI checks that the string is a well-formed SIP URI.
	VerifyURI(uri string) Code

	// Transports.
	TransportCreate(typ TransportType, cfg *TransportConfig) (Code, int)
	TransportInfo(id int) (Code, *TransportInfo)
	TransportSetEnabled(id int, enabled bool) Code
	TransportClose(id int, force bool) Code

	// Accounts.
	AccountAdd(cfg *AccountConfig, setDefault bool) (Code, int)
	AccountAddLocal(transportID int, setDefault bool) (Code, int)
	AccountDelete(id int) Code
	AccountSetDefault(id int) Code
	AccountDefault() int
	AccountIsValid(id int) bool
	AccountInfo(id int) (Code, *AccountInfo)
	AccountSetOnlineStatus(id int, online bool, activity PresenceActivity, statusText string) Code
	AccountSetRegistration(id int, renew bool) Code
	AccountSetTransport(id int, transportID int) Code

	// Calls.
	CallMake(accountID int, dstURI string, hdrs []Header) (Code, int)
	CallAnswer(id int, status int, reason string, hdrs []Header) Code
	CallHangup(id int, status int, reason string, hdrs []Header) Code
	CallSetHold(id int, hdrs []Header) Code
	CallReinvite(id int, unhold bool, hdrs []Header) Code
	CallUpdate(id int, hdrs []Header) Code
	CallTransfer(id int, dstURI string, hdrs []Header) Code
	CallTransferReplaces(id int, destCallID int, hdrs []Header) Code
	CallDialDTMF(id int, digits string) Code
	CallSendRequest(id int, method string, hdrs []Header, contentType, body string) Code
	CallSendMessage(id int, mimeType, body string, imID int, hdrs []Header) Code
	CallSendTyping(id int, isTyping bool, hdrs []Header) Code
	CallIsActive(id int) bool
	CallInfo(id int) (Code, *CallInfo)
	HangupAll()

	// Buddies.
	BuddyAdd(cfg *BuddyConfig) (Code, int)
	BuddyDelete(id int) Code
	BuddyInfo(id int) (Code, *BuddyInfo)
	BuddySubscribe(id int, subscribe bool) Code

	// Instant messaging. A sentinel account handle means "use the
	// default account".
	SendMessage(accountID int, toURI, mimeType, body string, imID int, hdrs []Header) Code
	SendTyping(accountID int, toURI string, isTyping bool, hdrs []Header) Code
}

// Header is an extra SIP header to attach to an outgoing request.
type Header struct {
	Name  string
	Value string
}
