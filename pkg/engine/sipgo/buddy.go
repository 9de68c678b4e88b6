package sipgoengine

import (
	"context"
	"time"

	"github.com/emiago/sipgo/sip"
	"go.uber.org/zap"

	"softphone/pkg/engine"
)

type buddy struct {
	id         int
	uri        sip.Uri
	uriText    string
	online     bool
	onlineText string
	subscribed bool
}

func (e *Engine) BuddyAdd(cfg *engine.BuddyConfig) (engine.Code, int) {
	if cfg == nil || cfg.URI == "" {
		return engine.CodeInvalidArg, -1
	}
	var uri sip.Uri
	if err := sip.ParseUri(cfg.URI, &uri); err != nil {
		return engine.CodeInvalidArg, -1
	}

	e.mu.Lock()
	id := e.nextBudID
	e.nextBudID++
	b := &buddy{id: id, uri: uri, uriText: cfg.URI}
	e.buddies[id] = b
	e.mu.Unlock()

	if cfg.Subscribe {
		return e.BuddySubscribe(id, true), id
	}
	return engine.OK, id
}

func (e *Engine) BuddyDelete(id int) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.buddies[id]; !ok {
		return engine.CodeInvalidID
	}
	delete(e.buddies, id)
	return engine.OK
}

func (e *Engine) BuddyInfo(id int) (engine.Code, *engine.BuddyInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.buddies[id]
	if !ok {
		return engine.CodeInvalidID, nil
	}
	return engine.OK, &engine.BuddyInfo{
		URI:          b.uriText,
		OnlineStatus: b.online,
		OnlineText:   b.onlineText,
		Subscribed:   b.subscribed,
	}
}

// BuddySubscribe starts or stops the presence subscription by sending a
// SUBSCRIBE from the default account.
func (e *Engine) BuddySubscribe(id int, subscribe bool) engine.Code {
	e.mu.Lock()
	b, ok := e.buddies[id]
	acc, accOK := e.accounts[e.defaultAcc]
	e.mu.Unlock()
	if !ok {
		return engine.CodeInvalidID
	}
	if !accOK {
		return engine.CodeBusy
	}

	req := e.newRequest(sip.SUBSCRIBE, b.uri, acc)
	req.AppendHeader(sip.NewHeader("Event", "presence"))
	req.AppendHeader(sip.NewHeader("Accept", "application/pidf+xml"))
	expires := "600"
	if !subscribe {
		expires = "0"
	}
	req.AppendHeader(sip.NewHeader("Expires", expires))

	go func() {
		ctx, cancel := context.WithTimeout(e.runCtx, 30*time.Second)
		defer cancel()
		res, err := e.client.Do(ctx, req)
		if err != nil {
			e.elog(2, "subscribe failed",
				zap.String("buddy", b.uriText), zap.Error(err))
			return
		}
		active := subscribe && res.StatusCode < 300
		e.mu.Lock()
		if cur, ok := e.buddies[id]; ok {
			cur.subscribed = active
		}
		e.mu.Unlock()
		e.post(func() {
			if e.cb.OnBuddyState != nil {
				e.cb.OnBuddyState(id)
			}
		})
	}()
	return engine.OK
}
