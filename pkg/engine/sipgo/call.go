package sipgoengine

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"go.uber.org/zap"

	"softphone/pkg/engine"
)

type call struct {
	id        int
	accountID int
	role      engine.CallRole

	state      engine.CallState
	lastStatus int
	lastReason string

	localURI      sip.Uri
	remoteURI     sip.Uri
	remoteTarget  sip.Uri
	localContact  string
	remoteContact string
	sipCallID     string
	localTag      string
	remoteTag     string
	cseq          uint32

	// pending inbound INVITE transaction, nil once answered or for
	// outbound calls
	invReq *sip.Request
	invTx  sip.ServerTransaction

	// cancels an outbound INVITE still in progress
	cancelInvite context.CancelFunc

	startAt   time.Time
	connectAt time.Time
}

func (e *Engine) CallMake(accountID int, dstURI string, hdrs []engine.Header) (engine.Code, int) {
	e.mu.Lock()
	if accountID == engine.NoAccount {
		accountID = e.defaultAcc
	}
	acc, ok := e.accounts[accountID]
	if !ok {
		e.mu.Unlock()
		return engine.CodeInvalidID, -1
	}
	var dst sip.Uri
	if err := sip.ParseUri(dstURI, &dst); err != nil {
		e.mu.Unlock()
		return engine.CodeInvalidArg, -1
	}
	if e.st != stateStarted {
		e.mu.Unlock()
		return engine.CodeBusy, -1
	}
	if len(e.calls) >= e.cfg.MaxCalls {
		e.mu.Unlock()
		return engine.CodeBusy, -1
	}

	id := e.nextCallID
	e.nextCallID++
	c := &call{
		id:        id,
		accountID: accountID,
		role:      engine.RoleCaller,
		state:     engine.CallCalling,
		localURI:  acc.uri,
		remoteURI: dst,
		sipCallID: newTag(),
		localTag:  newTag(),
		cseq:      1,
		startAt:   time.Now(),
	}
	c.remoteTarget = dst
	e.calls[id] = c
	e.mu.Unlock()

	go e.invite(c, acc, hdrs)
	e.postCallState(id)
	return engine.OK, id
}

// invite drives the outbound INVITE transaction, translating responses
// into call state events.
func (e *Engine) invite(c *call, acc *account, hdrs []engine.Header) {
	req := sip.NewRequest(sip.INVITE, c.remoteTarget)
	from := &sip.FromHeader{Address: c.localURI, Params: sip.NewParams()}
	from.Params.Add("tag", c.localTag)
	req.AppendHeader(from)
	req.AppendHeader(&sip.ToHeader{Address: c.remoteURI})
	callID := sip.CallIDHeader(c.sipCallID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: c.cseq, MethodName: sip.INVITE})
	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)
	req.AppendHeader(&sip.ContactHeader{Address: c.localURI})
	for _, h := range hdrs {
		req.AppendHeader(sip.NewHeader(h.Name, h.Value))
	}

	ctx, cancel := context.WithCancel(e.runCtx)
	defer cancel()
	e.mu.Lock()
	c.cancelInvite = cancel
	e.mu.Unlock()

	tx, err := e.client.TransactionRequest(ctx, req, sipgo.ClientRequestAddVia)
	if err != nil {
		e.elog(1, "invite failed", zap.Error(err))
		e.finishCall(c.id, 503, "transport failure")
		return
	}
	defer tx.Terminate()

	for {
		select {
		case res, more := <-tx.Responses():
			if !more {
				return
			}
			switch {
			case res.StatusCode < 200:
				if res.StatusCode > 100 {
					e.setCallState(c.id, engine.CallEarly, res.StatusCode, res.Reason)
				}
			case res.StatusCode < 300:
				e.confirmOutbound(c, res)
			default:
				e.finishCall(c.id, res.StatusCode, res.Reason)
				return
			}
		case <-tx.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// confirmOutbound records the dialog state from a 2xx and ACKs it.
func (e *Engine) confirmOutbound(c *call, res *sip.Response) {
	e.mu.Lock()
	if to := res.To(); to != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			c.remoteTag = tag
		}
	}
	if contact := res.Contact(); contact != nil {
		c.remoteTarget = contact.Address
		c.remoteContact = contact.Address.String()
	}
	c.connectAt = time.Now()
	e.mu.Unlock()

	ack := e.dialogRequestLocked(c, sip.ACK, false)
	if err := e.client.WriteRequest(ack); err != nil {
		e.elog(1, "ack failed", zap.Error(err))
	}
	e.setCallState(c.id, engine.CallConfirmed, res.StatusCode, res.Reason)
}

// dialogRequestLocked builds an in-dialog request. bump increments the
// local CSeq; ACK reuses the INVITE's number.
func (e *Engine) dialogRequestLocked(c *call, method sip.RequestMethod, bump bool) *sip.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bump {
		c.cseq++
	}
	req := sip.NewRequest(method, c.remoteTarget)
	from := &sip.FromHeader{Address: c.localURI, Params: sip.NewParams()}
	from.Params.Add("tag", c.localTag)
	to := &sip.ToHeader{Address: c.remoteURI, Params: sip.NewParams()}
	if c.remoteTag != "" {
		to.Params.Add("tag", c.remoteTag)
	}
	req.AppendHeader(from)
	req.AppendHeader(to)
	callID := sip.CallIDHeader(c.sipCallID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: c.cseq, MethodName: method})
	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)
	return req
}

func (e *Engine) CallAnswer(id int, status int, reason string, hdrs []engine.Header) engine.Code {
	e.mu.Lock()
	c, ok := e.calls[id]
	if !ok {
		e.mu.Unlock()
		return engine.CodeInvalidID
	}
	if c.invTx == nil || c.invReq == nil {
		e.mu.Unlock()
		return engine.CodeBusy
	}
	if status < 100 || status > 699 {
		e.mu.Unlock()
		return engine.CodeInvalidArg
	}
	req, tx := c.invReq, c.invTx
	res := sip.NewResponseFromRequest(req, status, reason, nil)
	if to := res.To(); to != nil && c.localTag != "" {
		if _, ok := to.Params.Get("tag"); !ok {
			to.Params.Add("tag", c.localTag)
		}
	}
	for _, h := range hdrs {
		res.AppendHeader(sip.NewHeader(h.Name, h.Value))
	}
	if status >= 200 {
		res.AppendHeader(&sip.ContactHeader{Address: c.localURI})
		c.invTx, c.invReq = nil, nil
	}
	e.mu.Unlock()

	if err := tx.Respond(res); err != nil {
		e.elog(1, "answer failed", zap.Error(err))
		return engine.CodeTransport
	}
	switch {
	case status < 200:
		e.setCallState(id, engine.CallEarly, status, reason)
	case status < 300:
		e.mu.Lock()
		c.connectAt = time.Now()
		e.mu.Unlock()
		e.setCallState(id, engine.CallConnecting, status, reason)
	default:
		e.finishCall(id, status, reason)
	}
	return engine.OK
}

func (e *Engine) CallHangup(id int, status int, reason string, hdrs []engine.Header) engine.Code {
	e.mu.Lock()
	c, ok := e.calls[id]
	if !ok {
		e.mu.Unlock()
		return engine.CodeInvalidID
	}
	pendingReq, pendingTx := c.invReq, c.invTx
	c.invReq, c.invTx = nil, nil
	confirmed := c.state == engine.CallConfirmed || c.state == engine.CallConnecting
	cancelInvite := c.cancelInvite
	c.cancelInvite = nil
	e.mu.Unlock()

	if pendingTx != nil {
		// Unanswered inbound call: reject it on the INVITE transaction.
		if status < 300 {
			status = 603
		}
		if reason == "" {
			reason = "Decline"
		}
		res := sip.NewResponseFromRequest(pendingReq, status, reason, nil)
		for _, h := range hdrs {
			res.AppendHeader(sip.NewHeader(h.Name, h.Value))
		}
		if err := pendingTx.Respond(res); err != nil {
			e.elog(1, "reject failed", zap.Error(err))
		}
		e.finishCall(id, status, reason)
		return engine.OK
	}

	if !confirmed && cancelInvite != nil {
		cancelInvite()
	}
	if confirmed {
		bye := e.dialogRequestLocked(c, sip.BYE, true)
		for _, h := range hdrs {
			bye.AppendHeader(sip.NewHeader(h.Name, h.Value))
		}
		go func() {
			ctx, cancel := context.WithTimeout(e.runCtx, 10*time.Second)
			defer cancel()
			if _, err := e.client.Do(ctx, bye); err != nil {
				e.elog(2, "bye failed", zap.Error(err))
			}
		}()
	}
	e.finishCall(id, status, reason)
	return engine.OK
}

func (e *Engine) CallSetHold(id int, _ []engine.Header) engine.Code {
	if !e.CallIsActive(id) {
		return engine.CodeInvalidID
	}
	return engine.CodeNotSupported
}

func (e *Engine) CallReinvite(id int, _ bool, _ []engine.Header) engine.Code {
	if !e.CallIsActive(id) {
		return engine.CodeInvalidID
	}
	return engine.CodeNotSupported
}

func (e *Engine) CallUpdate(id int, hdrs []engine.Header) engine.Code {
	return e.sendInDialog(id, sip.UPDATE, hdrs, "", "")
}

func (e *Engine) CallTransfer(id int, dstURI string, hdrs []engine.Header) engine.Code {
	var dst sip.Uri
	if err := sip.ParseUri(dstURI, &dst); err != nil {
		return engine.CodeInvalidArg
	}
	extra := append([]engine.Header{{Name: "Refer-To", Value: dstURI}}, hdrs...)
	return e.sendInDialog(id, sip.REFER, extra, "", "")
}

func (e *Engine) CallTransferReplaces(id int, destCallID int, hdrs []engine.Header) engine.Code {
	e.mu.Lock()
	dest, ok := e.calls[destCallID]
	if !ok {
		e.mu.Unlock()
		return engine.CodeInvalidID
	}
	referTo := fmt.Sprintf("<%s?Replaces=%s%%3Bto-tag%%3D%s%%3Bfrom-tag%%3D%s>",
		dest.remoteTarget.String(), dest.sipCallID, dest.remoteTag, dest.localTag)
	e.mu.Unlock()

	extra := append([]engine.Header{{Name: "Refer-To", Value: referTo}}, hdrs...)
	return e.sendInDialog(id, sip.REFER, extra, "", "")
}

func (e *Engine) CallDialDTMF(id int, digits string) engine.Code {
	if digits == "" {
		return engine.CodeInvalidArg
	}
	for _, d := range digits {
		body := fmt.Sprintf("Signal=%c\r\nDuration=160\r\n", d)
		if code := e.sendInDialog(id, sip.INFO, nil, "application/dtmf-relay", body); code != engine.OK {
			return code
		}
	}
	return engine.OK
}

func (e *Engine) CallSendRequest(id int, method string, hdrs []engine.Header, contentType, body string) engine.Code {
	if method == "" {
		return engine.CodeInvalidArg
	}
	return e.sendInDialog(id, sip.RequestMethod(method), hdrs, contentType, body)
}

func (e *Engine) CallSendMessage(id int, mimeType, body string, imID int, hdrs []engine.Header) engine.Code {
	if mimeType == "" {
		mimeType = "text/plain"
	}
	e.mu.Lock()
	c, ok := e.calls[id]
	var toURI string
	if ok {
		toURI = c.remoteURI.String()
	}
	accID := engine.NoAccount
	if ok {
		accID = c.accountID
	}
	e.mu.Unlock()
	if !ok {
		return engine.CodeInvalidID
	}

	code := e.sendInDialogAsync(id, sip.MESSAGE, hdrs, mimeType, body, func(status int, reason string) {
		e.post(func() {
			if e.cb.OnPagerStatus != nil {
				e.cb.OnPagerStatus(id, toURI, body, imID, status, reason, accID)
			}
		})
	})
	return code
}

func (e *Engine) CallSendTyping(id int, isTyping bool, hdrs []engine.Header) engine.Code {
	return e.sendInDialog(id, sip.MESSAGE, hdrs, typingMimeType, typingBody(isTyping))
}

func (e *Engine) CallIsActive(id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.calls[id]
	return ok && c.state != engine.CallDisconnected
}

func (e *Engine) CallInfo(id int) (engine.Code, *engine.CallInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.calls[id]
	if !ok {
		return engine.CodeInvalidID, nil
	}
	info := &engine.CallInfo{
		Role:          c.role,
		AccountID:     c.accountID,
		LocalURI:      c.localURI.String(),
		LocalContact:  c.localContact,
		RemoteURI:     c.remoteURI.String(),
		RemoteContact: c.remoteContact,
		SIPCallID:     c.sipCallID,
		State:         c.state,
		StateText:     c.state.String(),
		LastStatus:    c.lastStatus,
		LastReason:    c.lastReason,
		MediaState:    engine.MediaNone,
		MediaDir:      engine.DirNone,
	}
	if !c.connectAt.IsZero() {
		info.ConnectTime = time.Since(c.connectAt)
	}
	if !c.startAt.IsZero() {
		info.TotalTime = time.Since(c.startAt)
	}
	return engine.OK, info
}

func (e *Engine) HangupAll() {
	e.mu.Lock()
	ids := make([]int, 0, len(e.calls))
	for id, c := range e.calls {
		if c.state != engine.CallDisconnected {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.CallHangup(id, 0, "", nil)
	}
}

// sendInDialog sends an in-dialog request and waits for its outcome.
func (e *Engine) sendInDialog(id int, method sip.RequestMethod, hdrs []engine.Header, contentType, body string) engine.Code {
	return e.sendInDialogAsync(id, method, hdrs, contentType, body, nil)
}

func (e *Engine) sendInDialogAsync(id int, method sip.RequestMethod, hdrs []engine.Header, contentType, body string, done func(status int, reason string)) engine.Code {
	e.mu.Lock()
	c, ok := e.calls[id]
	active := ok && c.state != engine.CallDisconnected
	e.mu.Unlock()
	if !ok {
		return engine.CodeInvalidID
	}
	if !active {
		return engine.CodeBusy
	}

	req := e.dialogRequestLocked(c, method, true)
	for _, h := range hdrs {
		req.AppendHeader(sip.NewHeader(h.Name, h.Value))
	}
	if body != "" {
		req.AppendHeader(sip.NewHeader("Content-Type", contentType))
		req.SetBody([]byte(body))
	}

	go func() {
		ctx, cancel := context.WithTimeout(e.runCtx, 30*time.Second)
		defer cancel()
		res, err := e.client.Do(ctx, req)
		if err != nil {
			e.elog(2, "in-dialog request failed",
				zap.String("method", string(method)), zap.Error(err))
			if done != nil {
				done(503, "transport failure")
			}
			return
		}
		if done != nil {
			done(res.StatusCode, res.Reason)
		}
	}()
	return engine.OK
}

func (e *Engine) setCallState(id int, st engine.CallState, status int, reason string) {
	e.mu.Lock()
	c, ok := e.calls[id]
	if !ok || c.state == engine.CallDisconnected {
		e.mu.Unlock()
		return
	}
	c.state = st
	if status != 0 {
		c.lastStatus = status
		c.lastReason = reason
	}
	e.mu.Unlock()
	e.postCallState(id)
}

// finishCall moves a call to disconnected and, once the state event has
// been delivered, forgets the handle.
func (e *Engine) finishCall(id int, status int, reason string) {
	e.mu.Lock()
	c, ok := e.calls[id]
	if !ok || c.state == engine.CallDisconnected {
		e.mu.Unlock()
		return
	}
	c.state = engine.CallDisconnected
	if status != 0 {
		c.lastStatus = status
		c.lastReason = reason
	}
	e.mu.Unlock()

	e.post(func() {
		if e.cb.OnCallState != nil {
			e.cb.OnCallState(id)
		}
		e.mu.Lock()
		delete(e.calls, id)
		e.mu.Unlock()
	})
}

func (e *Engine) postCallState(id int) {
	e.post(func() {
		if e.cb.OnCallState != nil {
			e.cb.OnCallState(id)
		}
	})
}
