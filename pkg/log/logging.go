// pkg/log/logging.go
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Standard log levels
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// Event types
const (
	EventCallState  = "call_state"
	EventRegState   = "reg_state"
	EventBuddyState = "buddy_state"
	EventMessage    = "message"
	EventEngine     = "engine"
)

// Component types
const (
	ComponentEngine  = "engine"
	ComponentUA      = "ua"
	ComponentConfig  = "config"
	ComponentMetrics = "metrics"
)

// Logger wraps zap.Logger to provide standardized logging
type Logger struct {
	*zap.Logger
	nodeID  string
	version string
}

// Config holds configuration for the logger
type Config struct {
	Development bool
	Level       zapcore.Level
	NodeID      string
	Version     string

	// File, when set, also writes logs to this path with rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger creates a new Logger with the given configuration
func NewLogger(config Config) (*Logger, error) {
	var encoder zapcore.Encoder
	if config.Development {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	level := zap.NewAtomicLevelAt(config.Level)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	if config.File != "" {
		maxSize := config.MaxSizeMB
		if maxSize == 0 {
			maxSize = 100
		}
		rotator := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    maxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		}
		fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), level))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	return &Logger{
		Logger:  zapLogger,
		nodeID:  config.NodeID,
		version: config.Version,
	}, nil
}

// With creates a child logger with the given zap fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		Logger:  l.Logger.With(fields...),
		nodeID:  l.nodeID,
		version: l.version,
	}
}

// LogCallState logs a call state transition with standardized fields
func (l *Logger) LogCallState(callID int, state string, lastStatus int, remote string) {
	l.Info("Call state changed",
		zap.String("event_type", EventCallState),
		zap.Int("call_id", callID),
		zap.String("state", state),
		zap.Int("last_status", lastStatus),
		zap.String("remote", remote),
		zap.String("node_id", l.nodeID),
	)
}

// LogRegState logs a registration status change
func (l *Logger) LogRegState(accountID int, uri string, status int, reason string, active bool) {
	level := InfoLevel
	if !active && status >= 300 {
		level = WarnLevel
	}
	l.Log(level, "Registration state changed",
		zap.String("event_type", EventRegState),
		zap.Int("account_id", accountID),
		zap.String("uri", uri),
		zap.Int("status", status),
		zap.String("reason", reason),
		zap.Bool("active", active),
		zap.String("node_id", l.nodeID),
	)
}

// LogBuddyState logs a presence change for a buddy
func (l *Logger) LogBuddyState(buddyID int, uri string, online bool, statusText string) {
	l.Info("Buddy state changed",
		zap.String("event_type", EventBuddyState),
		zap.Int("buddy_id", buddyID),
		zap.String("uri", uri),
		zap.Bool("online", online),
		zap.String("status_text", statusText),
		zap.String("node_id", l.nodeID),
	)
}

// EngineLogCallback adapts the engine's native log stream onto this
// logger. Install it as the engine LogConfig callback.
func (l *Logger) EngineLogCallback() func(level int, msg string) {
	return func(level int, msg string) {
		zl := DebugLevel
		switch {
		case level <= 1:
			zl = ErrorLevel
		case level == 2:
			zl = WarnLevel
		case level == 3:
			zl = InfoLevel
		}
		l.Log(zl, msg,
			zap.String("event_type", EventEngine),
			zap.String("component", ComponentEngine),
		)
	}
}

// Log logs a message at the specified level
func (l *Logger) Log(level zapcore.Level, msg string, fields ...zap.Field) {
	switch level {
	case DebugLevel:
		l.Debug(msg, fields...)
	case InfoLevel:
		l.Info(msg, fields...)
	case WarnLevel:
		l.Warn(msg, fields...)
	case ErrorLevel:
		l.Error(msg, fields...)
	case FatalLevel:
		l.Fatal(msg, fields...)
	default:
		l.Info(msg, fields...)
	}
}
