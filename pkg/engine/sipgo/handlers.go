package sipgoengine

import (
	"strings"
	"time"

	"github.com/emiago/sipgo/sip"
	"go.uber.org/zap"

	"softphone/pkg/engine"
)

// installHandlers wires the sipgo server callbacks. Each handler does
// the minimum protocol work on the transport goroutine and queues the
// application-visible notification for HandleEvents.
func (e *Engine) installHandlers() {
	e.srv.OnInvite(e.onInvite)
	e.srv.OnAck(e.onAck)
	e.srv.OnCancel(e.onCancel)
	e.srv.OnBye(e.onBye)
	e.srv.OnMessage(e.onMessage)
	e.srv.OnRequest(sip.REFER, e.onRefer)
	e.srv.OnRequest(sip.NOTIFY, e.onNotify)
	e.srv.OnRequest(sip.INFO, e.onInfo)
	e.srv.OnRequest(sip.OPTIONS, e.onOptions)
}

func (e *Engine) reply(tx sip.ServerTransaction, req *sip.Request, code int, reason string) {
	res := sip.NewResponseFromRequest(req, code, reason, nil)
	if err := tx.Respond(res); err != nil {
		e.elog(1, "failed to send response",
			zap.String("method", req.Method.String()), zap.Error(err))
	}
}

// callForDialog matches an in-dialog request against a known call by
// Call-ID.
func (e *Engine) callForDialog(req *sip.Request) (*call, bool) {
	cid := req.CallID()
	if cid == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.calls {
		if c.sipCallID == cid.Value() {
			return c, true
		}
	}
	return nil, false
}

func (e *Engine) onInvite(req *sip.Request, tx sip.ServerTransaction) {
	if replaces := req.GetHeader("Replaces"); replaces != nil {
		e.onInviteReplaces(req, tx, replaces.Value())
		return
	}

	accID := e.accountForRequest(req)
	from := req.From()
	contact := req.Contact()

	e.mu.Lock()
	if e.st != stateStarted || len(e.calls) >= e.cfg.MaxCalls {
		e.mu.Unlock()
		e.reply(tx, req, sip.StatusBusyHere, "Busy Here")
		return
	}
	id := e.nextCallID
	e.nextCallID++
	c := &call{
		id:        id,
		accountID: accID,
		role:      engine.RoleCallee,
		state:     engine.CallIncoming,
		localURI:  req.Recipient,
		sipCallID: callIDValue(req),
		localTag:  newTag(),
		invReq:    req,
		invTx:     tx,
		startAt:   time.Now(),
	}
	if from != nil {
		c.remoteURI = from.Address
		if tag, ok := from.Params.Get("tag"); ok {
			c.remoteTag = tag
		}
	}
	c.remoteTarget = c.remoteURI
	if contact != nil {
		c.remoteTarget = contact.Address
		c.remoteContact = contact.Address.String()
	}
	e.calls[id] = c
	e.mu.Unlock()

	e.reply(tx, req, sip.StatusTrying, "Trying")
	e.post(func() {
		if e.cb.OnIncomingCall != nil {
			e.cb.OnIncomingCall(accID, id)
		}
	})

	// Watch the transaction so a remote CANCEL tears the call down even
	// if the application never answers.
	go func() {
		<-tx.Done()
		e.mu.Lock()
		c, ok := e.calls[id]
		pending := ok && c.invTx != nil
		if pending {
			c.invTx, c.invReq = nil, nil
		}
		e.mu.Unlock()
		if pending {
			e.finishCall(id, 487, "Request Terminated")
		}
	}()
}

// onInviteReplaces turns an INVITE with Replaces into a replace-request
// decision on the call owning the referenced dialog.
func (e *Engine) onInviteReplaces(req *sip.Request, tx sip.ServerTransaction, replaces string) {
	callID := replaces
	if i := strings.IndexByte(replaces, ';'); i >= 0 {
		callID = replaces[:i]
	}
	e.mu.Lock()
	var existing *call
	for _, c := range e.calls {
		if c.sipCallID == callID {
			existing = c
			break
		}
	}
	e.mu.Unlock()
	if existing == nil {
		e.reply(tx, req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist")
		return
	}

	oldID := existing.id
	e.post(func() {
		code, reason := 200, "OK"
		if e.cb.OnReplaceRequest != nil {
			code, reason = e.cb.OnReplaceRequest(oldID, code, reason)
		}
		if code >= 300 {
			e.reply(tx, req, code, reason)
			return
		}
		// Accept the new INVITE as a fresh incoming call, then drop the
		// replaced one.
		req.RemoveHeader("Replaces")
		e.onInvite(req, tx)
		var newID int
		e.mu.Lock()
		for _, c := range e.calls {
			if c.sipCallID == callIDValue(req) && c.id != oldID {
				newID = c.id
			}
		}
		e.mu.Unlock()
		if e.cb.OnCallReplaced != nil {
			e.cb.OnCallReplaced(oldID, newID)
		}
		e.CallHangup(oldID, 0, "", nil)
	})
}

func callIDValue(req *sip.Request) string {
	if cid := req.CallID(); cid != nil {
		return cid.Value()
	}
	return ""
}

func (e *Engine) onAck(req *sip.Request, _ sip.ServerTransaction) {
	c, ok := e.callForDialog(req)
	if !ok {
		return
	}
	e.mu.Lock()
	connecting := c.state == engine.CallConnecting
	e.mu.Unlock()
	if connecting {
		e.setCallState(c.id, engine.CallConfirmed, 0, "")
	}
}

func (e *Engine) onCancel(req *sip.Request, tx sip.ServerTransaction) {
	c, ok := e.callForDialog(req)
	if !ok {
		e.reply(tx, req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist")
		return
	}
	e.reply(tx, req, sip.StatusOK, "OK")
	e.mu.Lock()
	pendingReq, pendingTx := c.invReq, c.invTx
	c.invReq, c.invTx = nil, nil
	e.mu.Unlock()
	if pendingTx != nil {
		res := sip.NewResponseFromRequest(pendingReq, sip.StatusRequestTerminated, "Request Terminated", nil)
		if err := pendingTx.Respond(res); err != nil {
			e.elog(2, "failed to terminate canceled invite", zap.Error(err))
		}
	}
	e.finishCall(c.id, 487, "Request Terminated")
}

func (e *Engine) onBye(req *sip.Request, tx sip.ServerTransaction) {
	c, ok := e.callForDialog(req)
	if !ok {
		e.reply(tx, req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist")
		return
	}
	e.reply(tx, req, sip.StatusOK, "OK")
	e.finishCall(c.id, 200, "OK")
}

func (e *Engine) onMessage(req *sip.Request, tx sip.ServerTransaction) {
	e.reply(tx, req, sip.StatusOK, "OK")

	callID := engine.NoCall
	accID := e.accountForRequest(req)
	if c, ok := e.callForDialog(req); ok {
		callID = c.id
		accID = c.accountID
	}

	var fromURI, contact string
	if from := req.From(); from != nil {
		fromURI = from.Address.String()
	}
	if ct := req.Contact(); ct != nil {
		contact = ct.Address.String()
	}
	toURI := req.Recipient.String()
	mimeType := "text/plain"
	if ct := req.GetHeader("Content-Type"); ct != nil {
		mimeType = ct.Value()
	}
	body := string(req.Body())

	if mimeType == typingMimeType {
		isTyping := strings.Contains(body, "<state>active</state>")
		e.post(func() {
			if e.cb.OnTyping != nil {
				e.cb.OnTyping(callID, fromURI, toURI, contact, isTyping, accID)
			}
		})
		return
	}
	e.post(func() {
		if e.cb.OnPager != nil {
			e.cb.OnPager(callID, fromURI, toURI, contact, mimeType, body, accID)
		}
	})
}

func (e *Engine) onRefer(req *sip.Request, tx sip.ServerTransaction) {
	c, ok := e.callForDialog(req)
	if !ok {
		e.reply(tx, req, sip.StatusCallTransactionDoesNotExists, "Call/Transaction Does Not Exist")
		return
	}
	referTo := req.GetHeader("Refer-To")
	if referTo == nil {
		e.reply(tx, req, sip.StatusBadRequest, "Missing Refer-To")
		return
	}
	dst := referTo.Value()
	id := c.id
	e.post(func() {
		code := 202
		if e.cb.OnTransferRequest != nil {
			code = e.cb.OnTransferRequest(id, dst, code)
		}
		reason := "Accepted"
		if code >= 300 {
			reason = "Decline"
		}
		e.reply(tx, req, code, reason)
	})
}

func (e *Engine) onNotify(req *sip.Request, tx sip.ServerTransaction) {
	event := req.GetHeader("Event")
	if event == nil || !strings.HasPrefix(event.Value(), "presence") {
		// Transfer progress arrives as NOTIFY with a sipfrag body.
		if event != nil && strings.HasPrefix(event.Value(), "refer") {
			e.onTransferNotify(req, tx)
			return
		}
		e.reply(tx, req, sip.StatusOK, "OK")
		return
	}
	e.reply(tx, req, sip.StatusOK, "OK")

	var fromURI string
	if from := req.From(); from != nil {
		fromURI = from.Address.String()
	}
	body := string(req.Body())
	open := strings.Contains(body, "open")

	e.mu.Lock()
	var id = engine.NoBuddy
	for bid, b := range e.buddies {
		if b.uri.User == userOf(fromURI) && b.uri.Host == hostOf(fromURI) {
			b.online = open
			id = bid
			break
		}
	}
	e.mu.Unlock()
	if id == engine.NoBuddy {
		return
	}
	e.post(func() {
		if e.cb.OnBuddyState != nil {
			e.cb.OnBuddyState(id)
		}
	})
}

// onTransferNotify reports REFER progress back to the transferor.
func (e *Engine) onTransferNotify(req *sip.Request, tx sip.ServerTransaction) {
	e.reply(tx, req, sip.StatusOK, "OK")
	c, ok := e.callForDialog(req)
	if !ok {
		return
	}
	// sipfrag body, e.g. "SIP/2.0 200 OK"
	code, reason := 100, "Trying"
	fields := strings.SplitN(strings.TrimSpace(string(req.Body())), " ", 3)
	if len(fields) >= 2 {
		if n, err := parseStatus(fields[1]); err == nil {
			code = n
		}
		if len(fields) == 3 {
			reason = fields[2]
		}
	}
	final := code >= 200
	id := c.id
	e.post(func() {
		if e.cb.OnTransferStatus != nil {
			e.cb.OnTransferStatus(id, code, reason, final, !final)
		}
	})
}

func (e *Engine) onInfo(req *sip.Request, tx sip.ServerTransaction) {
	e.reply(tx, req, sip.StatusOK, "OK")
	c, ok := e.callForDialog(req)
	if !ok {
		return
	}
	ct := req.GetHeader("Content-Type")
	if ct == nil || ct.Value() != "application/dtmf-relay" {
		return
	}
	digit := ""
	for _, line := range strings.Split(string(req.Body()), "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Signal="); ok {
			digit = v
			break
		}
	}
	if digit == "" {
		return
	}
	id := c.id
	e.post(func() {
		if e.cb.OnDTMFDigit != nil {
			e.cb.OnDTMFDigit(id, digit)
		}
	})
}

func (e *Engine) onOptions(req *sip.Request, tx sip.ServerTransaction) {
	e.reply(tx, req, sip.StatusOK, "OK")
}
