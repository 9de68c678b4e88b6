package ua

import (
	"go.uber.org/zap"

	"softphone/pkg/engine"
	"softphone/pkg/metrics"
)

// SIP status codes used by the default dispatch policies.
const (
	statusAccepted           = 202
	statusServiceUnavailable = 503
	statusDecline            = 603
)

// recoverDispatch absorbs panics escaping application handlers so a
// misbehaving handler cannot take down the event pump. Slots returning a
// value assign their engine-suggested answer before invoking the handler,
// so that answer survives the recovery.
func (u *UA) recoverDispatch(slot string) {
	if r := recover(); r != nil {
		metrics.RecordDispatchPanic(slot)
		u.logger.Error("handler panic",
			zap.String("slot", slot),
			zap.Any("panic", r))
	}
}

func (u *UA) onCallState(callID int) {
	defer u.recoverDispatch("call_state")
	metrics.RecordDispatch("call_state")
	call, ok := u.reg.lookupCall(callID)
	if !ok {
		metrics.RecordDrop("call_state", "unknown_call")
		return
	}
	call.handler().OnState(call)
	// Once the engine reports the call dead its handle may be reused for
	// a new call, so the wrapper must leave the registry now.
	if !u.eng.CallIsActive(callID) {
		u.reg.disassociateCall(call)
		metrics.SetHandleCounts(u.reg.counts())
	}
}

func (u *UA) onIncomingCall(accountID, callID int) {
	defer u.recoverDispatch("incoming_call")
	metrics.RecordDispatch("incoming_call")
	acc, ok := u.reg.lookupAccount(accountID)
	if !ok {
		// Nobody to offer the call to. Refuse at the engine level; no
		// wrapper exists, so no handler runs.
		metrics.RecordDrop("incoming_call", "unknown_account")
		u.eng.CallHangup(callID, statusServiceUnavailable, "", nil)
		return
	}
	call := newCall(u, callID)
	acc.handler().OnIncomingCall(acc, call)
}

func (u *UA) onCallMediaState(callID int) {
	defer u.recoverDispatch("call_media_state")
	metrics.RecordDispatch("call_media_state")
	call, ok := u.reg.lookupCall(callID)
	if !ok {
		metrics.RecordDrop("call_media_state", "unknown_call")
		return
	}
	call.handler().OnMediaState(call)
}

func (u *UA) onDTMFDigit(callID int, digits string) {
	defer u.recoverDispatch("dtmf_digit")
	metrics.RecordDispatch("dtmf_digit")
	call, ok := u.reg.lookupCall(callID)
	if !ok {
		metrics.RecordDrop("dtmf_digit", "unknown_call")
		return
	}
	call.handler().OnDTMFDigit(call, digits)
}

func (u *UA) onTransferRequest(callID int, dst string, code int) (resp int) {
	resp = statusDecline
	defer u.recoverDispatch("transfer_request")
	metrics.RecordDispatch("transfer_request")
	call, ok := u.reg.lookupCall(callID)
	if !ok {
		metrics.RecordDrop("transfer_request", "unknown_call")
		return resp
	}
	resp = code
	resp = call.handler().OnTransferRequest(call, dst, code)
	return resp
}

func (u *UA) onTransferStatus(callID, code int, reason string, final, cont bool) (c bool) {
	c = cont
	defer u.recoverDispatch("transfer_status")
	metrics.RecordDispatch("transfer_status")
	call, ok := u.reg.lookupCall(callID)
	if !ok {
		metrics.RecordDrop("transfer_status", "unknown_call")
		return c
	}
	c = call.handler().OnTransferStatus(call, code, reason, final, cont)
	return c
}

func (u *UA) onReplaceRequest(callID, code int, reason string) (rcode int, rreason string) {
	rcode, rreason = code, reason
	defer u.recoverDispatch("replace_request")
	metrics.RecordDispatch("replace_request")
	call, ok := u.reg.lookupCall(callID)
	if !ok {
		metrics.RecordDrop("replace_request", "unknown_call")
		return rcode, rreason
	}
	rcode, rreason = call.handler().OnReplaceRequest(call, code, reason)
	return rcode, rreason
}

func (u *UA) onCallReplaced(oldCallID, newCallID int) {
	defer u.recoverDispatch("call_replaced")
	metrics.RecordDispatch("call_replaced")
	oldCall, ok := u.reg.lookupCall(oldCallID)
	if !ok {
		metrics.RecordDrop("call_replaced", "unknown_call")
		return
	}
	replacement, ok := u.reg.lookupCall(newCallID)
	if !ok {
		replacement = newCall(u, newCallID)
	}
	oldCall.handler().OnReplaced(oldCall, replacement)
}

func (u *UA) onRegState(accountID int) {
	defer u.recoverDispatch("reg_state")
	metrics.RecordDispatch("reg_state")
	acc, ok := u.reg.lookupAccount(accountID)
	if !ok {
		metrics.RecordDrop("reg_state", "unknown_account")
		return
	}
	acc.handler().OnRegState(acc)
}

func (u *UA) onBuddyState(buddyID int) {
	defer u.recoverDispatch("buddy_state")
	metrics.RecordDispatch("buddy_state")
	buddy, ok := u.reg.lookupBuddy(buddyID)
	if !ok {
		metrics.RecordDrop("buddy_state", "unknown_buddy")
		return
	}
	buddy.handler().OnState(buddy)
}

// onPager routes an instant message to, in order of preference, the call
// it arrived on, the buddy matching the sender URI, or the owning
// account.
func (u *UA) onPager(callID int, fromURI, toURI, contact, mimeType, body string, accountID int) {
	defer u.recoverDispatch("pager")
	metrics.RecordDispatch("pager")
	if callID != engine.NoCall {
		if call, ok := u.reg.lookupCall(callID); ok {
			call.handler().OnPager(call, mimeType, body)
			return
		}
	}
	if buddy, ok := u.reg.lookupBuddyByURI(fromURI); ok {
		buddy.handler().OnPager(buddy, mimeType, body)
		return
	}
	if acc, ok := u.reg.lookupAccount(accountID); ok {
		acc.handler().OnPager(acc, fromURI, contact, mimeType, body)
		return
	}
	metrics.RecordDrop("pager", "no_target")
}

// onPagerStatus routes a delivery report the same way onPager does,
// except the buddy lookup keys on the recipient URI.
func (u *UA) onPagerStatus(callID int, toURI, body string, imID int, code int, reason string, accountID int) {
	defer u.recoverDispatch("pager_status")
	metrics.RecordDispatch("pager_status")
	if callID != engine.NoCall {
		if call, ok := u.reg.lookupCall(callID); ok {
			call.handler().OnPagerStatus(call, body, imID, code, reason)
			return
		}
	}
	if buddy, ok := u.reg.lookupBuddyByURI(toURI); ok {
		buddy.handler().OnPagerStatus(buddy, body, imID, code, reason)
		return
	}
	if acc, ok := u.reg.lookupAccount(accountID); ok {
		acc.handler().OnPagerStatus(acc, toURI, body, imID, code, reason)
		return
	}
	metrics.RecordDrop("pager_status", "no_target")
}

func (u *UA) onTyping(callID int, fromURI, toURI, contact string, isTyping bool, accountID int) {
	defer u.recoverDispatch("typing")
	metrics.RecordDispatch("typing")
	if callID != engine.NoCall {
		if call, ok := u.reg.lookupCall(callID); ok {
			call.handler().OnTyping(call, isTyping)
			return
		}
	}
	if buddy, ok := u.reg.lookupBuddyByURI(fromURI); ok {
		buddy.handler().OnTyping(buddy, isTyping)
		return
	}
	if acc, ok := u.reg.lookupAccount(accountID); ok {
		acc.handler().OnTyping(acc, fromURI, contact, isTyping)
		return
	}
	metrics.RecordDrop("typing", "no_target")
}
