// Package logger builds the service zap logger with optional Sentry forwarding.
package logger

import (
	"time"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	Debug     bool
	SentryDSN string
	// Client overrides the Sentry client built from SentryDSN (tests).
	Client *sentry.Client
	Tags   map[string]string
}

// Logger wraps a zap logger and the Sentry client it reports to.
type Logger struct {
	*zap.Logger
	sentry *sentry.Client
}

// New builds a production logger, or a development one when Debug is set.
// Error-level entries go to Sentry when a DSN or client is provided.
func New(cfg Config) (*Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Debug {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	base, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	client := cfg.Client
	if client == nil && cfg.SentryDSN != "" {
		client, err = sentry.NewClient(sentry.ClientOptions{
			Dsn:   cfg.SentryDSN,
			Debug: cfg.Debug,
		})
		if err != nil {
			return nil, err
		}
	}
	if client == nil {
		return &Logger{Logger: base}, nil
	}

	core, err := zapsentry.NewCore(zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
		Tags:              cfg.Tags,
	}, zapsentry.NewSentryClientFromClient(client))
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: zapsentry.AttachCoreToLogger(core, base), sentry: client}, nil
}

// Close flushes buffered log entries and pending Sentry events.
func (l *Logger) Close(timeout time.Duration) {
	_ = l.Sync()
	if l.sentry != nil {
		l.sentry.Flush(timeout)
	}
}
