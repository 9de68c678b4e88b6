package ua

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"softphone/pkg/engine"
	"softphone/pkg/engine/enginetest"
)

func TestLifecycleReleasesInstanceSlot(t *testing.T) {
	fake := enginetest.New()
	u, err := New(fake, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := u.Init(nil, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := u.Start(false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := u.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	names := fake.OpNames()
	var sawDestroy bool
	for _, n := range names {
		if n == "Destroy" {
			sawDestroy = true
		}
	}
	if !sawDestroy {
		t.Fatal("engine Destroy was not called")
	}

	// The slot is free again.
	u2, err := New(enginetest.New(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New after Destroy: %v", err)
	}
	u2.Destroy()
}

func TestDestroyStopsPump(t *testing.T) {
	fake := enginetest.New()
	u, err := New(fake, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := u.Init(nil, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := u.Start(true); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let the pump spin at least once.
	deadline := time.Now().Add(time.Second)
	for u.pumpState.Load() != pumpRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := u.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if got := u.pumpState.Load(); got != pumpStopped {
		t.Fatalf("pump state after Destroy = %d, want stopped", got)
	}
	if _, ok := fake.FindOp("Destroy"); !ok {
		t.Fatal("engine Destroy not called after pump shutdown")
	}
}

func TestDestroyProceedsWhenPumpWedged(t *testing.T) {
	fake := enginetest.New()
	u, err := New(fake, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := u.Init(nil, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := u.Start(true); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wedge the pump inside an event callback so it cannot observe the
	// quit flag during the bounded wait.
	release := make(chan struct{})
	wedged := make(chan struct{})
	fake.Enqueue(func() {
		close(wedged)
		<-release
	})
	<-wedged

	// Free the pump only after teardown has reached the engine, so the
	// goroutine shutdown below does not have to time out.
	go func() {
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			if _, ok := fake.FindOp("Destroy"); ok {
				break
			}
			time.Sleep(time.Millisecond)
		}
		close(release)
	}()

	if err := u.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, ok := fake.FindOp("Destroy"); !ok {
		t.Fatal("engine Destroy not reached while pump was wedged")
	}
}

func TestStaleDestroyKeepsNewerInstanceSlot(t *testing.T) {
	old, err := New(enginetest.New(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := old.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	current, err := New(enginetest.New(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New after Destroy: %v", err)
	}
	t.Cleanup(func() { current.Destroy() })

	// A repeat Destroy on the dead UA must not release the slot the
	// newer UA holds.
	if err := old.Destroy(); err != nil {
		t.Fatalf("repeat Destroy: %v", err)
	}
	if _, err := New(enginetest.New(), zaptest.NewLogger(t)); !errors.Is(err, ErrInstanceActive) {
		t.Fatalf("New after stale Destroy = %v, want ErrInstanceActive", err)
	}
}

func TestPumpDeliversQueuedEvents(t *testing.T) {
	fake := enginetest.New()
	u, err := New(fake, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { u.Destroy() })
	if err := u.Init(nil, nil, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := u.Start(true); err != nil {
		t.Fatalf("Start: %v", err)
	}

	acc, err := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	h := &recordingAccountHandler{}
	acc.SetHandler(h)

	fake.Enqueue(func() { fake.FireIncomingCall(acc.ID(), 1) })

	deadline := time.Now().Add(2 * time.Second)
	for len(h.received()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := h.received(); len(got) != 1 {
		t.Fatalf("pump delivered %d events, want 1", len(got))
	}
}

func TestOpError(t *testing.T) {
	fake := enginetest.New()
	fake.SetCode("CallAnswer", engine.CodeInvalidID)
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

	acc, _ := u.CreateAccount(&engine.AccountConfig{ID: "sip:alice@example.com"}, true)
	call, err := acc.MakeCall("sip:bob@example.com", nil)
	if err != nil {
		t.Fatalf("MakeCall: %v", err)
	}

	err = call.Answer(200, "", nil)
	var opErr *OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("Answer error = %T, want *OpError", err)
	}
	if opErr.Code != engine.CodeInvalidID || opErr.Op != "answer" {
		t.Fatalf("OpError = %+v", opErr)
	}
	if opErr.Message() == "" {
		t.Fatal("OpError message not resolved through engine")
	}
}

func TestVerifyURI(t *testing.T) {
	fake := enginetest.New()
	fake.SetCode("VerifyURI", engine.CodeInvalidArg)
	u, err := New(fake, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { u.Destroy() })

	if err := u.VerifyURI("nonsense"); err == nil {
		t.Fatal("VerifyURI accepted a uri the engine rejected")
	}
}
