package ua

import (
	"fmt"
	"sync"

	"softphone/pkg/engine"
	"softphone/pkg/metrics"
)

// Call wraps one engine call handle. Wrappers are created by
// Account.MakeCall for outbound calls and by the dispatcher for inbound
// ones; construction registers the wrapper so subsequent events for the
// handle reach it. The wrapper deregisters itself when the dispatcher
// sees the call go inactive, or explicitly via Close.
type Call struct {
	ua *UA
	id int

	hmu sync.RWMutex
	h   CallHandler
}

func newCall(u *UA, id int) *Call {
	c := &Call{ua: u, id: id, h: NoopCallHandler{}}
	u.reg.associateCall(id, c)
	metrics.SetHandleCounts(u.reg.counts())
	return c
}

// ID returns the engine handle. Handles are reused by the engine after a
// call ends; do not store them across call lifetimes.
func (c *Call) ID() int { return c.id }

func (c *Call) String() string { return fmt.Sprintf("call %d", c.id) }

// SetHandler installs h as the call's handler, replacing the previous
// one. A nil h restores the no-op default.
func (c *Call) SetHandler(h CallHandler) {
	if h == nil {
		h = NoopCallHandler{}
	}
	c.hmu.Lock()
	c.h = h
	c.hmu.Unlock()
}

func (c *Call) handler() CallHandler {
	c.hmu.RLock()
	defer c.hmu.RUnlock()
	return c.h
}

// Close deregisters the wrapper without touching the engine call. Events
// for the handle are dropped afterwards. Use Hangup to actually end the
// call.
func (c *Call) Close() {
	c.ua.reg.disassociateCall(c)
	metrics.SetHandleCounts(c.ua.reg.counts())
}

// IsValid reports whether the engine still knows this call.
func (c *Call) IsValid() bool {
	return c.ua.eng.CallIsActive(c.id)
}

// Info retrieves a snapshot of the call state.
func (c *Call) Info() (*engine.CallInfo, error) {
	code, info := c.ua.eng.CallInfo(c.id)
	if err := c.ua.errCheck("call_info", c, code); err != nil {
		return nil, err
	}
	return info, nil
}

// Answer responds to an inbound call. status 180 rings, 200 connects,
// 300-699 rejects.
func (c *Call) Answer(status int, reason string, hdrs []engine.Header) error {
	return c.ua.errCheck("answer", c, c.ua.eng.CallAnswer(c.id, status, reason, hdrs))
}

// Hangup terminates the call, or rejects it when still inbound-pending.
// A zero status lets the engine pick one appropriate to the call state.
func (c *Call) Hangup(status int, reason string, hdrs []engine.Header) error {
	return c.ua.errCheck("hangup", c, c.ua.eng.CallHangup(c.id, status, reason, hdrs))
}

// Hold puts the call on hold.
func (c *Call) Hold(hdrs []engine.Header) error {
	return c.ua.errCheck("hold", c, c.ua.eng.CallSetHold(c.id, hdrs))
}

// Unhold releases a held call by sending a re-INVITE.
func (c *Call) Unhold(hdrs []engine.Header) error {
	return c.ua.errCheck("unhold", c, c.ua.eng.CallReinvite(c.id, true, hdrs))
}

// Reinvite sends a re-INVITE with the current session description.
func (c *Call) Reinvite(hdrs []engine.Header) error {
	return c.ua.errCheck("reinvite", c, c.ua.eng.CallReinvite(c.id, false, hdrs))
}

// Update sends an UPDATE request.
func (c *Call) Update(hdrs []engine.Header) error {
	return c.ua.errCheck("update", c, c.ua.eng.CallUpdate(c.id, hdrs))
}

// Transfer asks the remote party to call dstURI instead (blind
// transfer).
func (c *Call) Transfer(dstURI string, hdrs []engine.Header) error {
	return c.ua.errCheck("transfer", c, c.ua.eng.CallTransfer(c.id, dstURI, hdrs))
}

// TransferToCall asks the remote party to replace destCall's remote leg
// (attended transfer).
func (c *Call) TransferToCall(destCall *Call, hdrs []engine.Header) error {
	return c.ua.errCheck("transfer_to_call", c, c.ua.eng.CallTransferReplaces(c.id, destCall.id, hdrs))
}

// DialDTMF sends DTMF digits to the remote party.
func (c *Call) DialDTMF(digits string) error {
	return c.ua.errCheck("dial_dtmf", c, c.ua.eng.CallDialDTMF(c.id, digits))
}

// SendRequest sends an arbitrary in-dialog request, e.g. method "INFO".
func (c *Call) SendRequest(method string, hdrs []engine.Header, contentType, body string) error {
	return c.ua.errCheck("send_request", c, c.ua.eng.CallSendRequest(c.id, method, hdrs, contentType, body))
}

// SendPager sends an instant message within the call's dialog. The imID
// is echoed back in the matching OnPagerStatus notification.
func (c *Call) SendPager(mimeType, body string, imID int, hdrs []engine.Header) error {
	return c.ua.errCheck("send_pager", c, c.ua.eng.CallSendMessage(c.id, mimeType, body, imID, hdrs))
}

// SendTypingIndication tells the remote party we started or stopped
// typing.
func (c *Call) SendTypingIndication(isTyping bool, hdrs []engine.Header) error {
	return c.ua.errCheck("send_typing", c, c.ua.eng.CallSendTyping(c.id, isTyping, hdrs))
}
