package observability

import (
	"github.com/smallbiznis/procura/internal/observability/logger"
	"github.com/smallbiznis/procura/internal/observability/metrics"
	"github.com/smallbiznis/procura/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the process logger, the tracer provider and the metric
// instruments, all derived from config.Config.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.loggerConfig,
		Config.tracingConfig,
		Config.metricsConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// The tracer provider registers itself globally; force construction.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func (c Config) loggerConfig() logger.Config {
	return logger.Config{
		ServiceName: c.ServiceName,
		Environment: c.Environment,
		Version:     c.Version,
		Level:       c.LogLevel,
		Format:      c.LogFormat,
		Debug:       c.Debug(),
	}
}

func (c Config) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) metricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
