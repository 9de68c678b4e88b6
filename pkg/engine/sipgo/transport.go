package sipgoengine

import (
	"fmt"

	"go.uber.org/zap"

	"softphone/pkg/engine"
)

type transport struct {
	id      int
	typ     engine.TransportType
	cfg     *engine.TransportConfig
	enabled bool
}

func (t *transport) addr() string {
	host := t.cfg.BoundAddr
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, t.cfg.Port)
}

func (e *Engine) TransportCreate(typ engine.TransportType, cfg *engine.TransportConfig) (engine.Code, int) {
	if cfg == nil {
		return engine.CodeInvalidArg, -1
	}
	switch typ {
	case engine.TransportUDP, engine.TransportTCP, engine.TransportWS:
	case engine.TransportTLS:
		return engine.CodeNotSupported, -1
	default:
		return engine.CodeInvalidArg, -1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st != stateInitialized && e.st != stateStarted {
		return engine.CodeBusy, -1
	}
	id := e.nextTpID
	e.nextTpID++
	tp := &transport{id: id, typ: typ, cfg: cfg, enabled: true}
	e.transports[id] = tp
	if e.st == stateStarted {
		e.listen(tp)
	}
	return engine.OK, id
}

// listen starts the sipgo listener for one transport. Called with e.mu
// held; the listener itself runs on its own goroutine for the life of
// the engine.
func (e *Engine) listen(tp *transport) {
	netw := tp.typ.String()
	addr := tp.addr()
	go func() {
		e.elog(3, "listening", zap.String("network", netw), zap.String("addr", addr))
		if err := e.srv.ListenAndServe(e.runCtx, netw, addr); err != nil {
			e.elog(1, "listener stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
}

func (e *Engine) TransportInfo(id int) (engine.Code, *engine.TransportInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := e.transports[id]
	if !ok {
		return engine.CodeInvalidID, nil
	}
	host := tp.cfg.BoundAddr
	if tp.cfg.PublicAddr != "" {
		host = tp.cfg.PublicAddr
	}
	return engine.OK, &engine.TransportInfo{
		Type:        tp.typ,
		Description: tp.typ.String() + " " + tp.addr(),
		IsReliable:  tp.typ != engine.TransportUDP,
		IsSecure:    tp.typ == engine.TransportTLS,
		IsDatagram:  tp.typ == engine.TransportUDP,
		Host:        host,
		Port:        tp.cfg.Port,
		RefCount:    1,
	}
}

func (e *Engine) TransportSetEnabled(id int, enabled bool) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	tp, ok := e.transports[id]
	if !ok {
		return engine.CodeInvalidID
	}
	// sipgo listeners cannot be paused once bound; only the flag is
	// tracked so account binding validation stays coherent.
	tp.enabled = enabled
	return engine.OK
}

func (e *Engine) TransportClose(id int, _ bool) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.transports[id]; !ok {
		return engine.CodeInvalidID
	}
	delete(e.transports, id)
	return engine.OK
}
