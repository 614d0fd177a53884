package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/procura/internal/observability/context"
	"github.com/smallbiznis/procura/internal/orgcontext"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultService = "procura"

// Config controls encoding, level and sampling of the process logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	Sampling Sampling
}

// Sampling mirrors zapcore.NewSamplerWithOptions. Zero values fall back to
// 100 entries per second.
type Sampling struct {
	Initial    int
	Thereafter int
	Window     time.Duration
}

func (s Sampling) withDefaults() Sampling {
	if s.Initial <= 0 {
		s.Initial = 100
	}
	if s.Thereafter <= 0 {
		s.Thereafter = 100
	}
	if s.Window <= 0 {
		s.Window = time.Second
	}
	return s
}

// New builds the process logger, installs it as the zap global and flushes it
// on shutdown.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(firstNonEmpty(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = encoding(cfg.Format)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	// Sampling is applied through WrapCore below so the window is configurable.
	zapCfg.Sampling = nil

	sampling := cfg.Sampling.withDefaults()
	opts := []zap.Option{
		zap.AddCaller(),
		zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, sampling.Window, sampling.Initial, sampling.Thereafter)
		}),
	}
	if cfg.Debug {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	log, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, err
	}
	log = log.With(
		zap.String("service", firstNonEmpty(cfg.ServiceName, defaultService)),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.StopHook(func() {
			_ = log.Sync()
		}))
	}
	return log, nil
}

func encoding(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return "console"
	}
	return "json"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// FromContext is WithContext applied to the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext tags base with the request id, the acting user, the selected
// organization and the active span. Fields that are not present in ctx are
// omitted.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 7)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorID != "" {
		fields = append(fields, zap.String("actor_type", actorType), zap.String("actor_id", actorID))
	}
	if orgID, ok := orgcontext.OrgIDFromContext(ctx); ok {
		fields = append(fields, zap.String("org_id", orgID.String()))
	}
	if userID, ok := orgcontext.UserIDFromContext(ctx); ok {
		fields = append(fields, zap.String("user_id", userID.String()))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
