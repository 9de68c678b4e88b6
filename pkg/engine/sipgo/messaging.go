package sipgoengine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/emiago/sipgo/sip"
	"go.uber.org/zap"

	"softphone/pkg/engine"
)

// typingMimeType is the is-composing indication content type from RFC
// 3994.
const typingMimeType = "application/im-iscomposing+xml"

func typingBody(isTyping bool) string {
	state := "idle"
	if isTyping {
		state = "active"
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
		`<isComposing xmlns="urn:ietf:params:xml:ns:im-iscomposing">` + "\n" +
		"  <state>" + state + "</state>\n" +
		"</isComposing>\n"
}

func (e *Engine) SendMessage(accountID int, toURI, mimeType, body string, imID int, hdrs []engine.Header) engine.Code {
	if mimeType == "" {
		mimeType = "text/plain"
	}
	return e.sendPagerRequest(accountID, toURI, mimeType, body, hdrs, func(status int, reason string) {
		e.post(func() {
			if e.cb.OnPagerStatus != nil {
				e.cb.OnPagerStatus(engine.NoCall, toURI, body, imID, status, reason, accountID)
			}
		})
	})
}

func (e *Engine) SendTyping(accountID int, toURI string, isTyping bool, hdrs []engine.Header) engine.Code {
	return e.sendPagerRequest(accountID, toURI, typingMimeType, typingBody(isTyping), hdrs, nil)
}

// sendPagerRequest sends an out-of-dialog MESSAGE from the given
// account, or the default account for a sentinel handle.
func (e *Engine) sendPagerRequest(accountID int, toURI, mimeType, body string, hdrs []engine.Header, done func(status int, reason string)) engine.Code {
	e.mu.Lock()
	if accountID == engine.NoAccount {
		accountID = e.defaultAcc
	}
	acc, ok := e.accounts[accountID]
	e.mu.Unlock()
	if !ok {
		return engine.CodeInvalidID
	}
	var dst sip.Uri
	if err := sip.ParseUri(toURI, &dst); err != nil {
		return engine.CodeInvalidArg
	}

	req := e.newRequest(sip.MESSAGE, dst, acc)
	for _, h := range hdrs {
		req.AppendHeader(sip.NewHeader(h.Name, h.Value))
	}
	req.AppendHeader(sip.NewHeader("Content-Type", mimeType))
	req.SetBody([]byte(body))

	go func() {
		ctx, cancel := context.WithTimeout(e.runCtx, 30*time.Second)
		defer cancel()
		res, err := e.client.Do(ctx, req)
		if err != nil {
			e.elog(2, "message send failed",
				zap.String("to", toURI), zap.Error(err))
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

func parseStatus(s string) (int, error) {
	return strconv.Atoi(s)
}

func userOf(uri string) string {
	var parsed sip.Uri
	if err := sip.ParseUri(strings.TrimSpace(uri), &parsed); err != nil {
		return ""
	}
	return parsed.User
}

func hostOf(uri string) string {
	var parsed sip.Uri
	if err := sip.ParseUri(strings.TrimSpace(uri), &parsed); err != nil {
		return ""
	}
	return parsed.Host
}
