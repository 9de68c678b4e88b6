package ua

import (
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"softphone/pkg/engine"
	"softphone/pkg/engine/enginetest"
)

func newTestUA(t *testing.T) (*UA, *enginetest.Fake) {
	t.Helper()
	fake := enginetest.New()
	u, err := New(fake, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { u.Destroy() })
	if err := u.Init(nil, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := u.Start(false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return u, fake
}

func TestSingleInstanceGuard(t *testing.T) {
	_, _ = newTestUA(t)
	if _, err := New(enginetest.New(), nil); err != ErrInstanceActive {
		t.Fatalf("second New: got %v, want ErrInstanceActive", err)
	}
}

type recordingAccountHandler struct {
	NoopAccountHandler
	mu    sync.Mutex
	calls []*Call
}

func (h *recordingAccountHandler) OnIncomingCall(acc *Account, call *Call) {
	h.mu.Lock()
	h.calls = append(h.calls, call)
	h.mu.Unlock()
}

func (h *recordingAccountHandler) received() []*Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestIncomingCallUnknownAccountHungUp(t *testing.T) {
	_, fake := newTestUA(t)

	fake.FireIncomingCall(42, 5)

	op, ok := fake.FindOp("CallHangup")
	if !ok {
		t.Fatal("engine-level hangup not issued for unknown account")
	}
	if op.Args[0] != 5 || op.Args[1] != 503 {
		t.Fatalf("hangup args = %v, want call 5 status 503", op.Args)
	}
}

func TestIncomingCallDispatchedToAccountHandler(t *testing.T) {
	u, fake := newTestUA(t)

	acc, err := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	h := &recordingAccountHandler{}
	acc.SetHandler(h)

	fake.FireIncomingCall(acc.ID(), 9)

	calls := h.received()
	if len(calls) != 1 {
		t.Fatalf("handler saw %d calls, want 1", len(calls))
	}
	if calls[0].ID() != 9 {
		t.Fatalf("handler call id = %d, want 9", calls[0].ID())
	}
	if got, ok := u.reg.lookupCall(9); !ok || got != calls[0] {
		t.Fatal("incoming call wrapper not registered")
	}
	if _, ok := fake.FindOp("CallHangup"); ok {
		t.Fatal("known-account call was hung up by default policy")
	}
}

func TestNoopAccountHandlerDeclines(t *testing.T) {
	u, fake := newTestUA(t)

	acc, err := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	fake.FireIncomingCall(acc.ID(), 3)

	op, ok := fake.FindOp("CallHangup")
	if !ok {
		t.Fatal("default handler did not decline the call")
	}
	if op.Args[0] != 3 || op.Args[1] != statusDecline {
		t.Fatalf("hangup args = %v, want call 3 status 603", op.Args)
	}
}

func TestCallStateUnregistersDeadCall(t *testing.T) {
	u, fake := newTestUA(t)

	acc, _ := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	call, err := acc.MakeCall("sip:bob@example.com", nil)
	if err != nil {
		t.Fatalf("MakeCall: %v", err)
	}

	fake.FireCallState(call.ID())
	if _, ok := u.reg.lookupCall(call.ID()); !ok {
		t.Fatal("live call was unregistered")
	}

	fake.SetCallActive(call.ID(), false)
	fake.FireCallState(call.ID())
	if _, ok := u.reg.lookupCall(call.ID()); ok {
		t.Fatal("dead call still registered after state event")
	}
}

type recordingCallHandler struct {
	NoopCallHandler
	mu     sync.Mutex
	pagers []string
	typing []bool
	dtmf   []string
}

func (h *recordingCallHandler) OnPager(_ *Call, _, body string) {
	h.mu.Lock()
	h.pagers = append(h.pagers, body)
	h.mu.Unlock()
}

func (h *recordingCallHandler) OnTyping(_ *Call, isTyping bool) {
	h.mu.Lock()
	h.typing = append(h.typing, isTyping)
	h.mu.Unlock()
}

func (h *recordingCallHandler) OnDTMFDigit(_ *Call, digits string) {
	h.mu.Lock()
	h.dtmf = append(h.dtmf, digits)
	h.mu.Unlock()
}

type recordingBuddyHandler struct {
	NoopBuddyHandler
	mu     sync.Mutex
	pagers []string
}

func (h *recordingBuddyHandler) OnPager(_ *Buddy, _, body string) {
	h.mu.Lock()
	h.pagers = append(h.pagers, body)
	h.mu.Unlock()
}

type pagerAccountHandler struct {
	NoopAccountHandler
	mu     sync.Mutex
	pagers []string
}

func (h *pagerAccountHandler) OnPager(_ *Account, _, _, _, body string) {
	h.mu.Lock()
	h.pagers = append(h.pagers, body)
	h.mu.Unlock()
}

func TestPagerRoutingPrecedence(t *testing.T) {
	u, fake := newTestUA(t)

	acc, _ := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	accH := &pagerAccountHandler{}
	acc.SetHandler(accH)

	buddy, err := acc.AddBuddy("sip:bob@example.com", false)
	if err != nil {
		t.Fatalf("AddBuddy: %v", err)
	}
	budH := &recordingBuddyHandler{}
	buddy.SetHandler(budH)

	call, _ := acc.MakeCall("sip:bob@example.com", nil)
	callH := &recordingCallHandler{}
	call.SetHandler(callH)

	// In-dialog message goes to the call even when the sender is a buddy.
	fake.FirePager(call.ID(), "sip:bob@example.com", "sip:alice@example.com", "", "text/plain", "in-call", acc.ID())
	// Out-of-dialog message from a known buddy goes to the buddy.
	fake.FirePager(engine.NoCall, "sip:bob@example.com:5060", "sip:alice@example.com", "", "text/plain", "to-buddy", acc.ID())
	// Unknown sender falls back to the account.
	fake.FirePager(engine.NoCall, "sip:stranger@example.com", "sip:alice@example.com", "", "text/plain", "to-account", acc.ID())
	// Nothing matches: dropped without panicking.
	fake.FirePager(engine.NoCall, "sip:stranger@example.com", "", "", "text/plain", "dropped", 99)

	if got := callH.pagers; len(got) != 1 || got[0] != "in-call" {
		t.Errorf("call handler pagers = %v, want [in-call]", got)
	}
	if got := budH.pagers; len(got) != 1 || got[0] != "to-buddy" {
		t.Errorf("buddy handler pagers = %v, want [to-buddy]", got)
	}
	if got := accH.pagers; len(got) != 1 || got[0] != "to-account" {
		t.Errorf("account handler pagers = %v, want [to-account]", got)
	}
}

func TestTypingRoutedToCall(t *testing.T) {
	u, fake := newTestUA(t)

	acc, _ := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	call, _ := acc.MakeCall("sip:bob@example.com", nil)
	h := &recordingCallHandler{}
	call.SetHandler(h)

	fake.FireTyping(call.ID(), "sip:bob@example.com", "sip:alice@example.com", "", true, acc.ID())
	fake.FireTyping(call.ID(), "sip:bob@example.com", "sip:alice@example.com", "", false, acc.ID())

	if len(h.typing) != 2 || !h.typing[0] || h.typing[1] {
		t.Fatalf("typing events = %v, want [true false]", h.typing)
	}
}

func TestTransferDefaultsForUnknownCall(t *testing.T) {
	_, fake := newTestUA(t)

	if got := fake.FireTransferRequest(77, "sip:elsewhere@example.com", 202); got != statusDecline {
		t.Errorf("transfer request to unknown call answered %d, want 603", got)
	}
	if got := fake.FireTransferStatus(77, 180, "Ringing", false, true); got != true {
		t.Error("transfer status for unknown call should keep the suggested continuation")
	}
	code, reason := fake.FireReplaceRequest(77, 486, "Busy Here")
	if code != 486 || reason != "Busy Here" {
		t.Errorf("replace request for unknown call = %d %q, want unchanged", code, reason)
	}
}

type panickyCallHandler struct {
	NoopCallHandler
}

func (panickyCallHandler) OnTransferRequest(*Call, string, int) int {
	panic("handler exploded")
}

func (panickyCallHandler) OnState(*Call) {
	panic("handler exploded")
}

func TestHandlerPanicKeepsEngineDefault(t *testing.T) {
	u, fake := newTestUA(t)

	acc, _ := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	call, _ := acc.MakeCall("sip:bob@example.com", nil)
	call.SetHandler(panickyCallHandler{})

	if got := fake.FireTransferRequest(call.ID(), "sip:x@example.com", 202); got != 202 {
		t.Errorf("panicking handler answered %d, want engine-suggested 202", got)
	}
	// A panic in a void slot must not propagate either.
	fake.FireCallState(call.ID())
}

func TestSetHandlerSwap(t *testing.T) {
	u, fake := newTestUA(t)

	acc, _ := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	call, _ := acc.MakeCall("sip:bob@example.com", nil)

	first := &recordingCallHandler{}
	second := &recordingCallHandler{}
	call.SetHandler(first)
	fake.FireDTMFDigit(call.ID(), "1")
	call.SetHandler(second)
	fake.FireDTMFDigit(call.ID(), "2")

	if len(first.dtmf) != 1 || first.dtmf[0] != "1" {
		t.Errorf("first handler dtmf = %v, want [1]", first.dtmf)
	}
	if len(second.dtmf) != 1 || second.dtmf[0] != "2" {
		t.Errorf("second handler dtmf = %v, want [2]", second.dtmf)
	}
}

func TestConcurrentDispatchAndRegistration(t *testing.T) {
	u, fake := newTestUA(t)

	acc, _ := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	acc.SetHandler(&pagerAccountHandler{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b, err := acc.AddBuddy("sip:peer@example.com", false)
				if err != nil {
					t.Error(err)
					return
				}
				b.Delete()
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				fake.FirePager(engine.NoCall, "sip:peer@example.com", "sip:alice@example.com", "", "text/plain", "hello", acc.ID())
			}
		}()
	}
	wg.Wait()
}
