package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	codesAllocated      metric.Int64Counter
	allocationConflicts metric.Int64Counter
	notifications       metric.Int64Counter
	realtimeDeliveries  metric.Int64Counter
	emailJobs           metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "procura"
	}
	meter := provider.Meter(name)

	codesAllocated, err := meter.Int64Counter("procura_codes_allocated_total")
	if err != nil {
		return nil, err
	}
	allocationConflicts, err := meter.Int64Counter("procura_allocation_conflicts_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("procura_notifications_created_total")
	if err != nil {
		return nil, err
	}
	realtimeDeliveries, err := meter.Int64Counter("procura_realtime_deliveries_total")
	if err != nil {
		return nil, err
	}
	emailJobs, err := meter.Int64Counter("procura_email_jobs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		codesAllocated:      codesAllocated,
		allocationConflicts: allocationConflicts,
		notifications:       notifications,
		realtimeDeliveries:  realtimeDeliveries,
		emailJobs:           emailJobs,
	}, nil
}

// NewNoop returns instruments backed by the no-op provider, for tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordCodeAllocated(ctx context.Context, orgID string) {
	if m == nil {
		return
	}
	m.codesAllocated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("org_id", orgID))...))
}

func (m *Metrics) RecordAllocationConflict(ctx context.Context, orgID string) {
	if m == nil {
		return
	}
	m.allocationConflicts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("org_id", orgID))...))
}

func (m *Metrics) RecordNotifications(ctx context.Context, kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.notifications.Add(ctx, int64(count), metric.WithAttributes(FilterAttributes(attribute.String("kind", kind))...))
}

func (m *Metrics) RecordRealtimeDelivery(ctx context.Context, delivered bool) {
	if m == nil {
		return
	}
	outcome := "skipped"
	if delivered {
		outcome = "delivered"
	}
	m.realtimeDeliveries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func (m *Metrics) RecordEmailJob(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.emailJobs.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("status", status))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":      {},
	"kind":        {},
	"outcome":     {},
	"status":      {},
	"route":       {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
