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
	licenseVerifications metric.Int64Counter
	offlineIngests       metric.Int64Counter
	oauthFlows           metric.Int64Counter
	softGraceWarnings    metric.Int64Counter
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "atrium"
	}
	meter := provider.Meter(name)

	licenseVerifications, err := meter.Int64Counter("atrium_license_verifications_total")
	if err != nil {
		return nil, err
	}
	offlineIngests, err := meter.Int64Counter("atrium_offline_token_ingests_total")
	if err != nil {
		return nil, err
	}
	oauthFlows, err := meter.Int64Counter("atrium_oauth_flows_total")
	if err != nil {
		return nil, err
	}
	softGraceWarnings, err := meter.Int64Counter("atrium_soft_grace_warnings_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		licenseVerifications: licenseVerifications,
		offlineIngests:       offlineIngests,
		oauthFlows:           oauthFlows,
		softGraceWarnings:    softGraceWarnings,
	}, nil
}

// RecordLicenseVerification counts a trust-chain verification by outcome.
func (m *Metrics) RecordLicenseVerification(ctx context.Context, outcome string) {
	if m == nil || m.licenseVerifications == nil {
		return
	}
	m.licenseVerifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordOfflineIngest counts an offline token ingestion by result.
func (m *Metrics) RecordOfflineIngest(ctx context.Context, result string) {
	if m == nil || m.offlineIngests == nil {
		return
	}
	m.offlineIngests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordOAuthFlow counts an acquisition flow phase by outcome.
func (m *Metrics) RecordOAuthFlow(ctx context.Context, phase, outcome string) {
	if m == nil || m.oauthFlows == nil {
		return
	}
	m.oauthFlows.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	))
}

// RecordSoftGraceWarning counts a grant returned under soft grace.
func (m *Metrics) RecordSoftGraceWarning(ctx context.Context, source string) {
	if m == nil || m.softGraceWarnings == nil {
		return
	}
	m.softGraceWarnings.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp metrics protocol %q", protocol)
	}
}
