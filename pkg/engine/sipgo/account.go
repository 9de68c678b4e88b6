package sipgoengine

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
	"go.uber.org/zap"

	"softphone/pkg/engine"
)

type account struct {
	id          int
	cfg         *engine.AccountConfig
	uri         sip.Uri
	transportID int

	regActive  bool
	regStatus  int
	regReason  string
	regExpires time.Duration
	online     bool
	onlineText string
}

func (e *Engine) AccountAdd(cfg *engine.AccountConfig, setDefault bool) (engine.Code, int) {
	if cfg == nil || cfg.ID == "" {
		return engine.CodeInvalidArg, -1
	}
	var uri sip.Uri
	if err := sip.ParseUri(cfg.ID, &uri); err != nil {
		return engine.CodeInvalidArg, -1
	}

	e.mu.Lock()
	if e.st != stateInitialized && e.st != stateStarted {
		e.mu.Unlock()
		return engine.CodeBusy, -1
	}
	id := e.nextAccID
	e.nextAccID++
	acc := &account{id: id, cfg: cfg, uri: uri, transportID: cfg.TransportID}
	e.accounts[id] = acc
	if setDefault || e.defaultAcc == engine.NoAccount {
		e.defaultAcc = id
	}
	e.mu.Unlock()

	if cfg.RegistrarURI != "" {
		go e.register(acc, true)
	}
	return engine.OK, id
}

func (e *Engine) AccountAddLocal(transportID int, setDefault bool) (engine.Code, int) {
	e.mu.Lock()
	tp, ok := e.transports[transportID]
	e.mu.Unlock()
	if !ok {
		return engine.CodeInvalidID, -1
	}
	host := tp.cfg.PublicAddr
	if host == "" {
		host = tp.cfg.BoundAddr
	}
	if host == "" {
		host = "127.0.0.1"
	}
	cfg := engine.DefaultAccountConfig()
	cfg.ID = fmt.Sprintf("sip:%s:%d", host, tp.cfg.Port)
	cfg.TransportID = transportID
	return e.AccountAdd(cfg, setDefault)
}

func (e *Engine) AccountDelete(id int) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, ok := e.accounts[id]
	if !ok {
		return engine.CodeInvalidID
	}
	if acc.regActive {
		go e.register(acc, false)
	}
	delete(e.accounts, id)
	if e.defaultAcc == id {
		e.defaultAcc = engine.NoAccount
		for aid := range e.accounts {
			e.defaultAcc = aid
			break
		}
	}
	return engine.OK
}

func (e *Engine) AccountSetDefault(id int) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.accounts[id]; !ok {
		return engine.CodeInvalidID
	}
	e.defaultAcc = id
	return engine.OK
}

func (e *Engine) AccountDefault() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.defaultAcc
}

func (e *Engine) AccountIsValid(id int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.accounts[id]
	return ok
}

func (e *Engine) AccountInfo(id int) (engine.Code, *engine.AccountInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, ok := e.accounts[id]
	if !ok {
		return engine.CodeInvalidID, nil
	}
	return engine.OK, &engine.AccountInfo{
		IsDefault:    e.defaultAcc == id,
		URI:          acc.cfg.ID,
		RegActive:    acc.regActive,
		RegExpires:   acc.regExpires,
		RegStatus:    acc.regStatus,
		RegReason:    acc.regReason,
		OnlineStatus: acc.online,
		OnlineText:   acc.onlineText,
	}
}

func (e *Engine) AccountSetOnlineStatus(id int, online bool, activity engine.PresenceActivity, statusText string) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, ok := e.accounts[id]
	if !ok {
		return engine.CodeInvalidID
	}
	if statusText == "" {
		switch {
		case !online:
			statusText = "offline"
		case activity == engine.ActivityAway:
			statusText = "away"
		case activity == engine.ActivityBusy:
			statusText = "busy"
		default:
			statusText = "online"
		}
	}
	acc.online = online
	acc.onlineText = statusText
	return engine.OK
}

func (e *Engine) AccountSetRegistration(id int, renew bool) engine.Code {
	e.mu.Lock()
	acc, ok := e.accounts[id]
	e.mu.Unlock()
	if !ok {
		return engine.CodeInvalidID
	}
	if acc.cfg.RegistrarURI == "" {
		return engine.CodeInvalidArg
	}
	go e.register(acc, renew)
	return engine.OK
}

func (e *Engine) AccountSetTransport(id int, transportID int) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, ok := e.accounts[id]
	if !ok {
		return engine.CodeInvalidID
	}
	if _, ok := e.transports[transportID]; !ok {
		return engine.CodeInvalidID
	}
	acc.transportID = transportID
	return engine.OK
}

// register performs one REGISTER round trip, retrying once with digest
// credentials on a 401/407 challenge, then posts the outcome as a
// registration state event.
func (e *Engine) register(acc *account, renew bool) {
	ctx, cancel := context.WithTimeout(e.runCtx, 30*time.Second)
	defer cancel()

	expires := int(acc.cfg.RegTimeout.Seconds())
	if !renew {
		expires = 0
	}

	var registrar sip.Uri
	if err := sip.ParseUri(acc.cfg.RegistrarURI, &registrar); err != nil {
		e.postRegState(acc, 400, "bad registrar uri", false)
		return
	}

	buildRegister := func() *sip.Request {
		req := e.newRequest(sip.REGISTER, registrar, acc)
		req.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", expires)))
		return req
	}

	req := buildRegister()
	res, err := e.client.Do(ctx, req)
	if err != nil {
		e.elog(2, "register failed",
			zap.String("account", acc.cfg.ID), zap.Error(err))
		e.postRegState(acc, 503, "transport failure", false)
		return
	}

	if res.StatusCode == sip.StatusUnauthorized || res.StatusCode == sip.StatusProxyAuthRequired {
		res, err = e.retryWithAuth(ctx, buildRegister(), res, acc)
		if err != nil {
			e.postRegState(acc, 503, "transport failure", false)
			return
		}
	}

	active := renew && res.StatusCode == sip.StatusOK
	e.postRegState(acc, res.StatusCode, res.Reason, active)
}

// retryWithAuth answers a digest challenge with the first credential
// matching the challenge realm, or the wildcard realm "*". The caller
// passes a freshly built copy of the challenged request.
func (e *Engine) retryWithAuth(ctx context.Context, req *sip.Request, res *sip.Response, acc *account) (*sip.Response, error) {
	challengeHdr := res.GetHeader("WWW-Authenticate")
	authName := "Authorization"
	if challengeHdr == nil {
		challengeHdr = res.GetHeader("Proxy-Authenticate")
		authName = "Proxy-Authorization"
	}
	if challengeHdr == nil {
		return res, nil
	}
	chal, err := digest.ParseChallenge(challengeHdr.Value())
	if err != nil {
		return res, nil
	}

	var cred *engine.AuthCredential
	for i := range acc.cfg.Credentials {
		c := &acc.cfg.Credentials[i]
		if c.Realm == "*" || c.Realm == chal.Realm {
			cred = c
			break
		}
	}
	if cred == nil {
		return res, nil
	}

	answer, err := digest.Digest(chal, digest.Options{
		Method:   req.Method.String(),
		URI:      req.Recipient.String(),
		Username: cred.Username,
		Password: cred.Password,
	})
	if err != nil {
		return res, nil
	}

	if cseq := req.CSeq(); cseq != nil {
		cseq.SeqNo++
	}
	req.AppendHeader(sip.NewHeader(authName, answer.String()))
	return e.client.Do(ctx, req)
}

func (e *Engine) postRegState(acc *account, status int, reason string, active bool) {
	e.mu.Lock()
	acc.regStatus = status
	acc.regReason = reason
	acc.regActive = active
	if active {
		acc.regExpires = acc.cfg.RegTimeout
	} else {
		acc.regExpires = 0
	}
	id := acc.id
	e.mu.Unlock()

	e.post(func() {
		if e.cb.OnRegState != nil {
			e.cb.OnRegState(id)
		}
	})
}

// newRequest builds a request with the dialog-forming headers filled
// from the account identity.
func (e *Engine) newRequest(method sip.RequestMethod, recipient sip.Uri, acc *account) *sip.Request {
	req := sip.NewRequest(method, recipient)
	from := &sip.FromHeader{
		Address: acc.uri,
		Params:  sip.NewParams(),
	}
	from.Params.Add("tag", newTag())
	req.AppendHeader(from)
	req.AppendHeader(&sip.ToHeader{Address: recipient})
	callID := sip.CallIDHeader(newTag())
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: method})
	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)
	req.AppendHeader(&sip.ContactHeader{Address: acc.uri})
	return req
}

// accountForRequest picks the account an inbound request belongs to,
// matching the request URI or To host against account identities. Falls
// back to the default account.
func (e *Engine) accountForRequest(req *sip.Request) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	to := req.To()
	for id, acc := range e.accounts {
		if req.Recipient.Host == acc.uri.Host && req.Recipient.User == acc.uri.User {
			return id
		}
		if to != nil && to.Address.Host == acc.uri.Host && to.Address.User == acc.uri.User {
			return id
		}
	}
	return e.defaultAcc
}
