// Package sipgoengine is a signaling-only engine.Engine built on sipgo.
//
// It speaks REGISTER, INVITE, BYE, MESSAGE, SUBSCRIBE/NOTIFY and REFER
// over sipgo's transaction layer. Media operations report
// engine.CodeNotSupported; call signaling still works, so the build is
// usable for registrars, messaging and presence, and for driving the
// wrapper layer in integration setups.
//
// Notification delivery follows the native engine contract: protocol
// work happens on sipgo's transport goroutines, but callbacks only fire
// from inside HandleEvents. Incoming traffic is queued internally and
// the queue is drained, one callback at a time, by whoever pumps events.
package sipgoengine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"softphone/pkg/engine"
)

const eventQueueSize = 256

type state int

const (
	stateIdle state = iota
	stateCreated
	stateInitialized
	stateStarted
	stateDestroyed
)

// Engine implements engine.Engine on top of sipgo.
type Engine struct {
	logger *zap.Logger

	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client

	cb      *engine.Callbacks
	cfg     *engine.EndpointConfig
	logCfg  *engine.LogConfig
	events  chan func()
	runCtx  context.Context
	runStop context.CancelFunc

	mu         sync.Mutex
	st         state
	transports map[int]*transport
	accounts   map[int]*account
	calls      map[int]*call
	buddies    map[int]*buddy
	nextTpID   int
	nextAccID  int
	nextCallID int
	nextBudID  int
	defaultAcc int
}

// New returns an engine ready for Create.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:     logger,
		transports: make(map[int]*transport),
		accounts:   make(map[int]*account),
		calls:      make(map[int]*call),
		buddies:    make(map[int]*buddy),
		defaultAcc: engine.NoAccount,
	}
}

func (e *Engine) Create() engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st != stateIdle {
		return engine.CodeBusy
	}
	e.events = make(chan func(), eventQueueSize)
	e.runCtx, e.runStop = context.WithCancel(context.Background())
	e.st = stateCreated
	return engine.OK
}

func (e *Engine) Init(cfg *engine.EndpointConfig, logCfg *engine.LogConfig, _ *engine.MediaConfig, cb *engine.Callbacks) engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st != stateCreated {
		return engine.CodeBusy
	}
	if cfg == nil || cb == nil {
		return engine.CodeInvalidArg
	}
	ua, err := sipgo.NewUA(sipgo.WithUserAgent(cfg.UserAgent))
	if err != nil {
		e.logger.Error("failed to create user agent", zap.Error(err))
		return engine.CodeBusy
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		e.logger.Error("failed to create server", zap.Error(err))
		return engine.CodeBusy
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		e.logger.Error("failed to create client", zap.Error(err))
		return engine.CodeBusy
	}
	e.ua, e.srv, e.client = ua, srv, client
	e.cfg, e.logCfg, e.cb = cfg, logCfg, cb
	e.installHandlers()
	e.st = stateInitialized
	return engine.OK
}

func (e *Engine) Start() engine.Code {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st != stateInitialized {
		return engine.CodeBusy
	}
	for _, tp := range e.transports {
		e.listen(tp)
	}
	e.st = stateStarted
	return engine.OK
}

func (e *Engine) Destroy() engine.Code {
	e.mu.Lock()
	if e.st == stateDestroyed || e.st == stateIdle {
		e.mu.Unlock()
		return engine.OK
	}
	e.st = stateDestroyed
	ua := e.ua
	e.mu.Unlock()

	e.runStop()
	if ua != nil {
		if err := ua.Close(); err != nil {
			e.elog(2, "user agent close failed", zap.Error(err))
		}
	}
	return engine.OK
}

// elog emits one engine log line. Levels follow the native convention:
// 1 error, 2 warning, 3 info, higher values trace. When the Init log
// config carries a Callback, lines at or below its Level go there
// instead of the engine's own logger. logCfg is written once in Init,
// before any traffic handler can run, so the unlocked read is safe.
func (e *Engine) elog(level int, msg string, fields ...zap.Field) {
	if lc := e.logCfg; lc != nil && lc.Callback != nil {
		if level <= lc.Level {
			line := msg
			for _, f := range fields {
				if f.Type == zapcore.ErrorType {
					if err, ok := f.Interface.(error); ok {
						line += ": " + err.Error()
					}
				}
			}
			lc.Callback(level, line)
		}
		return
	}
	switch {
	case level <= 1:
		e.logger.Error(msg, fields...)
	case level == 2:
		e.logger.Warn(msg, fields...)
	case level == 3:
		e.logger.Info(msg, fields...)
	default:
		e.logger.Debug(msg, fields...)
	}
}

// post queues a notification for delivery by HandleEvents. Events are
// dropped, with a log line, if nobody is pumping and the queue fills up.
func (e *Engine) post(f func()) {
	select {
	case e.events <- f:
	default:
		e.elog(2, "event queue full, dropping event")
	}
}

// HandleEvents drains queued notifications, waiting at most timeout for
// the first one. Each notification invokes its callback synchronously on
// the calling goroutine.
func (e *Engine) HandleEvents(timeout time.Duration) engine.Code {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case f := <-e.events:
			f()
		case <-timer.C:
			return engine.OK
		case <-e.runCtx.Done():
			return engine.OK
		}
	}
}

var codeMessages = map[engine.Code]string{
	engine.OK:               "success",
	engine.CodeInvalidID:    "invalid handle",
	engine.CodeInvalidArg:   "invalid argument",
	engine.CodeNotSupported: "operation not supported by this build",
	engine.CodeBusy:         "engine busy or in wrong state",
	engine.CodeTransport:    "transport failure",
}

func (e *Engine) Strerror(code engine.Code) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return "unknown error"
}

func (e *Engine) VerifyURI(uri string) engine.Code {
	var parsed sip.Uri
	if err := sip.ParseUri(uri, &parsed); err != nil {
		return engine.CodeInvalidArg
	}
	return engine.OK
}

// newTag generates a random token for From/To tags and Call-IDs.
func newTag() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
