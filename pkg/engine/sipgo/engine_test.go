package sipgoengine

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"softphone/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(zaptest.NewLogger(t))
	if code := e.Create(); code != engine.OK {
		t.Fatalf("Create: %v", code)
	}
	t.Cleanup(func() { e.Destroy() })
	if code := e.Init(engine.DefaultEndpointConfig(), engine.DefaultLogConfig(), engine.DefaultMediaConfig(), &engine.Callbacks{}); code != engine.OK {
		t.Fatalf("Init: %v", code)
	}
	return e
}

func TestLifecycleOrdering(t *testing.T) {
	e := New(zaptest.NewLogger(t))
	if code := e.Init(engine.DefaultEndpointConfig(), nil, nil, &engine.Callbacks{}); code != engine.CodeBusy {
		t.Fatalf("Init before Create: %v, want busy", code)
	}
	if code := e.Create(); code != engine.OK {
		t.Fatalf("Create: %v", code)
	}
	if code := e.Create(); code != engine.CodeBusy {
		t.Fatalf("second Create: %v, want busy", code)
	}
	if code := e.Start(); code != engine.CodeBusy {
		t.Fatalf("Start before Init: %v, want busy", code)
	}
	if code := e.Destroy(); code != engine.OK {
		t.Fatalf("Destroy: %v", code)
	}
	if code := e.Destroy(); code != engine.OK {
		t.Fatalf("repeated Destroy: %v", code)
	}
}

func TestInitRejectsNilArguments(t *testing.T) {
	e := New(zaptest.NewLogger(t))
	if code := e.Create(); code != engine.OK {
		t.Fatalf("Create: %v", code)
	}
	t.Cleanup(func() { e.Destroy() })
	if code := e.Init(nil, nil, nil, &engine.Callbacks{}); code != engine.CodeInvalidArg {
		t.Fatalf("Init(nil cfg): %v, want invalid arg", code)
	}
	if code := e.Init(engine.DefaultEndpointConfig(), nil, nil, nil); code != engine.CodeInvalidArg {
		t.Fatalf("Init(nil callbacks): %v, want invalid arg", code)
	}
}

func TestVerifyURI(t *testing.T) {
	e := newTestEngine(t)
	if code := e.VerifyURI("sip:alice@example.com"); code != engine.OK {
		t.Errorf("valid uri rejected: %v", code)
	}
	if code := e.VerifyURI("definitely not a uri"); code != engine.CodeInvalidArg {
		t.Errorf("bogus uri accepted: %v", code)
	}
}

func TestStrerror(t *testing.T) {
	e := New(nil)
	if msg := e.Strerror(engine.OK); msg != "success" {
		t.Errorf("Strerror(OK) = %q", msg)
	}
	if msg := e.Strerror(engine.CodeNotSupported); msg == "" || msg == "unknown error" {
		t.Errorf("Strerror(CodeNotSupported) = %q", msg)
	}
	if msg := e.Strerror(engine.Code(999999)); msg != "unknown error" {
		t.Errorf("Strerror(unknown) = %q", msg)
	}
}

func TestHandleEventsDrainsQueueInOrder(t *testing.T) {
	e := newTestEngine(t)

	var got []int
	e.post(func() { got = append(got, 1) })
	e.post(func() { got = append(got, 2) })
	e.post(func() { got = append(got, 3) })

	e.HandleEvents(10 * time.Millisecond)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("events drained = %v, want [1 2 3]", got)
	}
}

func TestLogCallbackReceivesEngineLines(t *testing.T) {
	e := New(zaptest.NewLogger(t))
	if code := e.Create(); code != engine.OK {
		t.Fatalf("Create: %v", code)
	}
	t.Cleanup(func() { e.Destroy() })

	type line struct {
		level int
		msg   string
	}
	var lines []line
	logCfg := engine.DefaultLogConfig()
	logCfg.Level = 3
	logCfg.Callback = func(level int, msg string) {
		lines = append(lines, line{level, msg})
	}
	if code := e.Init(engine.DefaultEndpointConfig(), logCfg, engine.DefaultMediaConfig(), &engine.Callbacks{}); code != engine.OK {
		t.Fatalf("Init: %v", code)
	}

	e.elog(2, "register failed", zap.Error(errors.New("no route")))
	e.elog(5, "transaction trace")

	if len(lines) != 1 {
		t.Fatalf("callback lines = %d, want 1 (level filter)", len(lines))
	}
	if lines[0].level != 2 || lines[0].msg != "register failed: no route" {
		t.Fatalf("callback line = %+v", lines[0])
	}
}

func TestTransportValidation(t *testing.T) {
	e := newTestEngine(t)

	code, id := e.TransportCreate(engine.TransportUDP, &engine.TransportConfig{Port: 0})
	if code != engine.OK || id < 0 {
		t.Fatalf("TransportCreate: %v, %d", code, id)
	}
	if code, _ := e.TransportCreate(engine.TransportTLS, engine.DefaultTransportConfig()); code != engine.CodeNotSupported {
		t.Errorf("TLS transport: %v, want not supported", code)
	}
	if code, _ := e.TransportCreate(engine.TransportUDP, nil); code != engine.CodeInvalidArg {
		t.Errorf("nil transport config: %v, want invalid arg", code)
	}
	if code := e.TransportClose(id, false); code != engine.OK {
		t.Errorf("TransportClose: %v", code)
	}
	if code := e.TransportClose(id, false); code != engine.CodeInvalidID {
		t.Errorf("double close: %v, want invalid id", code)
	}
}

func TestAccountBookkeeping(t *testing.T) {
	e := newTestEngine(t)

	code, id := e.AccountAdd(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	if code != engine.OK {
		t.Fatalf("AccountAdd: %v", code)
	}
	if !e.AccountIsValid(id) {
		t.Fatal("account not valid after add")
	}
	if e.AccountDefault() != id {
		t.Fatal("account not default after add")
	}

	code, info := e.AccountInfo(id)
	if code != engine.OK || info.URI != "sip:alice@example.com" || !info.IsDefault {
		t.Fatalf("AccountInfo = %v, %+v", code, info)
	}

	if code, _ := e.AccountAdd(&engine.AccountConfig{ID: "no scheme here"}, false); code != engine.CodeInvalidArg {
		t.Errorf("bad account uri accepted: %v", code)
	}

	if code := e.AccountDelete(id); code != engine.OK {
		t.Fatalf("AccountDelete: %v", code)
	}
	if e.AccountIsValid(id) {
		t.Fatal("account valid after delete")
	}
	if code := e.AccountDelete(id); code != engine.CodeInvalidID {
		t.Errorf("double delete: %v, want invalid id", code)
	}
}

func TestBuddyBookkeeping(t *testing.T) {
	e := newTestEngine(t)

	code, id := e.BuddyAdd(&engine.BuddyConfig{URI: "sip:bob@example.com"})
	if code != engine.OK {
		t.Fatalf("BuddyAdd: %v", code)
	}
	code, info := e.BuddyInfo(id)
	if code != engine.OK || info.URI != "sip:bob@example.com" || info.Subscribed {
		t.Fatalf("BuddyInfo = %v, %+v", code, info)
	}
	if code := e.BuddyDelete(id); code != engine.OK {
		t.Fatalf("BuddyDelete: %v", code)
	}
	if code, _ := e.BuddyInfo(id); code != engine.CodeInvalidID {
		t.Errorf("info after delete: %v, want invalid id", code)
	}
}

func TestMediaOperationsNotSupported(t *testing.T) {
	e := newTestEngine(t)
	if code := e.Start(); code != engine.OK {
		t.Fatalf("Start: %v", code)
	}
	_, accID := e.AccountAdd(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	_, callID := e.CallMake(accID, "sip:bob@invalid.invalid", nil)

	if code := e.CallSetHold(callID, nil); code != engine.CodeNotSupported {
		t.Errorf("CallSetHold: %v, want not supported", code)
	}
	if code := e.CallReinvite(callID, true, nil); code != engine.CodeNotSupported {
		t.Errorf("CallReinvite: %v, want not supported", code)
	}
}
