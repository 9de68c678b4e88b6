// Package ua is an object-oriented veneer over a native-style SIP engine.
//
// It owns no protocol logic: every operation is a pass-through to an
// engine.Engine, with non-success status codes converted to *OpError. What
// the package does own is the handle registry and the event dispatcher:
// engine notifications arrive addressed by integer handle (or, for
// messaging, by URI) and are re-routed to the handler currently installed
// on the matching wrapper object.
//
//	eng := sipgoengine.New(logger)
//	agent, err := ua.New(eng, logger)
//	if err != nil {
//		...
//	}
//	defer agent.Destroy()
//
//	if err := agent.Init(nil, nil, nil); err != nil {
//		...
//	}
//	if err := agent.Start(true); err != nil {
//		...
//	}
//	acc, err := agent.CreateAccount(accCfg, true)
//	acc.SetHandler(myHandler)
package ua

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"softphone/pkg/common"
	"softphone/pkg/engine"
	"softphone/pkg/metrics"
)

// PollInterval is how long a single event-pump poll waits for engine
// events.
const PollInterval = 50 * time.Millisecond

// quitWaitIterations bounds how many extra polls Destroy drives while
// waiting for the pump to observe the quit flag. Engine teardown proceeds
// unconditionally once the bound is reached.
const quitWaitIterations = 400

const (
	pumpRunning int32 = iota
	pumpQuitting
	pumpStopped
)

// ErrInstanceActive is returned by New while another UA owns the engine.
var ErrInstanceActive = errors.New("ua: another instance is already active")

// instanceActive guards the one-engine-per-process contract of the native
// engine.
var instanceActive atomic.Bool

// UA is the process-wide context tying an engine instance to the handle
// registry and event dispatcher. Construct it with New, pass it by
// reference to anything needing dispatch access, and release it with
// Destroy. At most one UA may be active in a process at a time.
type UA struct {
	eng        engine.Engine
	logger     *zap.Logger
	reg        *registry
	goroutines *common.GoroutineRegistry

	started   bool
	hasPump   bool
	pumpState atomic.Int32
	destroyed atomic.Bool
}

// New claims the process-wide instance slot and creates the engine.
func New(eng engine.Engine, logger *zap.Logger) (*UA, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !instanceActive.CompareAndSwap(false, true) {
		return nil, ErrInstanceActive
	}
	u := &UA{
		eng:        eng,
		logger:     logger,
		reg:        newRegistry(),
		goroutines: common.NewGoroutineRegistry(logger),
	}
	if err := u.errCheck("create", u, eng.Create()); err != nil {
		instanceActive.Store(false)
		return nil, err
	}
	return u, nil
}

func (u *UA) String() string { return "ua" }

// Engine exposes the underlying engine for application code that needs
// operations the wrapper does not surface.
func (u *UA) Engine() engine.Engine { return u.eng }

// Init initializes the engine with the given configurations and installs
// the dispatcher into every callback slot. Nil configs select the
// engine's defaults.
func (u *UA) Init(cfg *engine.EndpointConfig, logCfg *engine.LogConfig, mediaCfg *engine.MediaConfig) error {
	if cfg == nil {
		cfg = engine.DefaultEndpointConfig()
	}
	if logCfg == nil {
		logCfg = engine.DefaultLogConfig()
	}
	if mediaCfg == nil {
		mediaCfg = engine.DefaultMediaConfig()
	}
	cb := &engine.Callbacks{
		OnCallState:       u.onCallState,
		OnIncomingCall:    u.onIncomingCall,
		OnCallMediaState:  u.onCallMediaState,
		OnDTMFDigit:       u.onDTMFDigit,
		OnTransferRequest: u.onTransferRequest,
		OnTransferStatus:  u.onTransferStatus,
		OnReplaceRequest:  u.onReplaceRequest,
		OnCallReplaced:    u.onCallReplaced,
		OnRegState:        u.onRegState,
		OnBuddyState:      u.onBuddyState,
		OnPager:           u.onPager,
		OnPagerStatus:     u.onPagerStatus,
		OnTyping:          u.onTyping,
	}
	return u.errCheck("init", u, u.eng.Init(cfg, logCfg, mediaCfg, cb))
}

// Start starts the engine. With withPump set, a worker goroutine is
// spawned that polls the engine for events until Destroy; without it the
// application must call HandleEvents periodically itself.
func (u *UA) Start(withPump bool) error {
	if err := u.errCheck("start", u, u.eng.Start()); err != nil {
		return err
	}
	u.started = true
	u.hasPump = withPump
	if withPump {
		u.pumpState.Store(pumpRunning)
		u.goroutines.Go("event-pump", u.runPump)
	}
	return nil
}

// HandleEvents polls the engine for pending events, waiting at most
// timeout. Only needed when the UA was started without the pump.
func (u *UA) HandleEvents(timeout time.Duration) {
	u.eng.HandleEvents(timeout)
}

// runPump is the event-pump loop. It polls with a bounded interval and
// exits cooperatively when the quit flag is observed.
func (u *UA) runPump(ctx context.Context) {
	u.logger.Debug("event pump started")
	for u.pumpState.Load() == pumpRunning {
		select {
		case <-ctx.Done():
			u.pumpState.Store(pumpStopped)
			u.logger.Debug("event pump canceled")
			return
		default:
		}
		u.eng.HandleEvents(PollInterval)
		metrics.RecordPumpIteration()
	}
	u.pumpState.Store(pumpStopped)
	u.logger.Debug("event pump stopped")
}

// Destroy shuts down the UA and releases the instance slot. If the pump
// is running, the quit flag is raised and up to quitWaitIterations extra
// polls are driven so the pump can observe it; engine teardown happens
// regardless of whether the pump acknowledged in time. A second Destroy
// on the same UA is a no-op, so a stale call cannot release the slot a
// newer UA holds.
func (u *UA) Destroy() error {
	if !u.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	if u.hasPump && u.pumpState.CompareAndSwap(pumpRunning, pumpQuitting) {
		for i := 0; i < quitWaitIterations && u.pumpState.Load() != pumpStopped; i++ {
			u.eng.HandleEvents(PollInterval)
		}
		if u.pumpState.Load() != pumpStopped {
			u.logger.Warn("event pump did not acknowledge quit, tearing down anyway")
		}
	}
	err := u.errCheck("destroy", u, u.eng.Destroy())
	if sderr := u.goroutines.Shutdown(5 * time.Second); sderr != nil {
		u.logger.Warn("goroutine shutdown incomplete", zap.Error(sderr))
	}
	instanceActive.Store(false)
	return err
}

// VerifyURI checks that the string is a well-formed SIP URI.
func (u *UA) VerifyURI(uri string) error {
	return u.errCheck("verify_uri", u, u.eng.VerifyURI(uri))
}

// Strerror resolves an engine status code to a message.
func (u *UA) Strerror(code engine.Code) string {
	return u.eng.Strerror(code)
}

// CreateTransport creates a SIP transport of the given type. A nil cfg
// selects the engine default.
func (u *UA) CreateTransport(typ engine.TransportType, cfg *engine.TransportConfig) (*Transport, error) {
	if cfg == nil {
		cfg = engine.DefaultTransportConfig()
	}
	code, id := u.eng.TransportCreate(typ, cfg)
	if err := u.errCheck("create_transport", u, code); err != nil {
		return nil, err
	}
	return &Transport{ua: u, id: id}, nil
}

// CreateAccount creates an account from the given configuration and
// registers its wrapper.
func (u *UA) CreateAccount(cfg *engine.AccountConfig, setDefault bool) (*Account, error) {
	code, id := u.eng.AccountAdd(cfg, setDefault)
	if err := u.errCheck("create_account", u, code); err != nil {
		return nil, err
	}
	return newAccount(u, id), nil
}

// CreateAccountForTransport creates a userless account bound to a
// transport, identifying the local endpoint rather than a user.
func (u *UA) CreateAccountForTransport(tp *Transport, setDefault bool) (*Account, error) {
	code, id := u.eng.AccountAddLocal(tp.id, setDefault)
	if err := u.errCheck("create_account_for_transport", u, code); err != nil {
		return nil, err
	}
	return newAccount(u, id), nil
}

// HangupAll terminates every active call.
func (u *UA) HangupAll() {
	u.eng.HangupAll()
}
