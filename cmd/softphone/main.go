// cmd/softphone/main.go
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"softphone/pkg/config"
	"softphone/pkg/engine"
	sipgoengine "softphone/pkg/engine/sipgo"
	"softphone/pkg/log"
	"softphone/pkg/metrics"
	"softphone/pkg/ua"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	nodeID, _ := os.Hostname()
	logger, err := log.NewLogger(log.Config{
		Level:   parseLevel(cfg.LogLevel),
		NodeID:  nodeID,
		Version: version,
		File:    cfg.LogFile,
	})
	if err != nil {
		stdlog.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	metrics.InitMetrics(version, nodeID)
	if cfg.Metrics.Enabled {
		server := metrics.StartMetricsServer(cfg.Metrics.BindAddr, logger.Logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownWait())
			defer cancel()
			metrics.Shutdown(ctx, server, logger.Logger)
		}()
	}

	eng := sipgoengine.New(logger.Logger.Named("engine"))
	agent, err := ua.New(eng, logger.Logger.Named("ua"))
	if err != nil {
		logger.Fatal("Failed to create agent", zap.Error(err))
	}

	engLogCfg := engine.DefaultLogConfig()
	engLogCfg.Callback = logger.EngineLogCallback()
	if err := agent.Init(cfg.ToEndpointConfig(), engLogCfg, cfg.ToMediaConfig()); err != nil {
		logger.Fatal("Failed to initialize agent", zap.Error(err))
	}

	transports := make([]*ua.Transport, 0, len(cfg.Transports))
	for _, spec := range cfg.ToTransportConfigs() {
		tp, err := agent.CreateTransport(spec.Type, spec.Cfg)
		if err != nil {
			logger.Fatal("Failed to create transport",
				zap.String("type", spec.Type.String()), zap.Error(err))
		}
		transports = append(transports, tp)
		logger.Info("Transport created",
			zap.Int("id", tp.ID()),
			zap.String("type", spec.Type.String()),
			zap.Int("port", spec.Cfg.Port))
	}

	if err := agent.Start(true); err != nil {
		logger.Fatal("Failed to start agent", zap.Error(err))
	}

	if len(cfg.Accounts) == 0 && len(transports) > 0 {
		acc, err := agent.CreateAccountForTransport(transports[0], true)
		if err != nil {
			logger.Fatal("Failed to create local account", zap.Error(err))
		}
		acc.SetHandler(&accountHandler{logger: logger, acc: acc})
		logger.Info("Local account created", zap.Int("id", acc.ID()))
	}

	for i := range cfg.Accounts {
		accCfg := &cfg.Accounts[i]
		acc, err := agent.CreateAccount(accCfg.ToAccountConfig(), accCfg.Default)
		if err != nil {
			logger.Fatal("Failed to create account",
				zap.String("id", accCfg.ID), zap.Error(err))
		}
		acc.SetHandler(&accountHandler{logger: logger, acc: acc})
		logger.Info("Account created", zap.Int("id", acc.ID()))

		for _, budCfg := range accCfg.Buddies {
			buddy, err := acc.AddBuddy(budCfg.URI, budCfg.Subscribe)
			if err != nil {
				logger.Warn("Failed to add buddy",
					zap.String("uri", budCfg.URI), zap.Error(err))
				continue
			}
			buddy.SetHandler(&buddyHandler{logger: logger})
			logger.Info("Buddy added",
				zap.Int("id", buddy.ID()), zap.String("uri", budCfg.URI))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutdown signal received", zap.String("signal", sig.String()))

	agent.HangupAll()
	if err := agent.Destroy(); err != nil {
		logger.Warn("Agent shutdown reported error", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

// accountHandler logs account events and rings inbound calls without
// answering them; answering needs a media-capable engine build.
type accountHandler struct {
	ua.NoopAccountHandler
	logger *log.Logger
	acc    *ua.Account
}

func (h *accountHandler) OnRegState(acc *ua.Account) {
	info, err := acc.Info()
	if err != nil {
		h.logger.Warn("Failed to read account info", zap.Error(err))
		return
	}
	h.logger.LogRegState(acc.ID(), info.URI, info.RegStatus, info.RegReason, info.RegActive)
}

func (h *accountHandler) OnIncomingCall(acc *ua.Account, call *ua.Call) {
	info, err := call.Info()
	remote := ""
	if err == nil {
		remote = info.RemoteURI
	}
	h.logger.Info("Incoming call",
		zap.Int("call_id", call.ID()),
		zap.Int("account_id", acc.ID()),
		zap.String("remote", remote))
	call.SetHandler(&callHandler{logger: h.logger})
	if err := call.Answer(180, "Ringing", nil); err != nil {
		h.logger.Warn("Failed to ring call", zap.Error(err))
	}
}

func (h *accountHandler) OnPager(acc *ua.Account, fromURI, contact, mimeType, body string) {
	h.logger.Info("Message received",
		zap.String("event_type", log.EventMessage),
		zap.Int("account_id", acc.ID()),
		zap.String("from", fromURI),
		zap.String("mime_type", mimeType),
		zap.String("body", body))
}

type callHandler struct {
	ua.NoopCallHandler
	logger *log.Logger
}

func (h *callHandler) OnState(call *ua.Call) {
	info, err := call.Info()
	if err != nil {
		return
	}
	h.logger.LogCallState(call.ID(), info.StateText, info.LastStatus, info.RemoteURI)
}

func (h *callHandler) OnDTMFDigit(call *ua.Call, digits string) {
	h.logger.Info("DTMF received",
		zap.Int("call_id", call.ID()),
		zap.String("digits", digits))
}

type buddyHandler struct {
	ua.NoopBuddyHandler
	logger *log.Logger
}

func (h *buddyHandler) OnState(b *ua.Buddy) {
	info, err := b.Info()
	if err != nil {
		return
	}
	h.logger.LogBuddyState(b.ID(), b.URI(), info.OnlineStatus, info.OnlineText)
}

func (h *buddyHandler) OnPager(b *ua.Buddy, mimeType, body string) {
	h.logger.Info("Message received",
		zap.String("event_type", log.EventMessage),
		zap.String("from", b.URI()),
		zap.String("mime_type", mimeType),
		zap.String("body", body))
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
