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
	paymentsAccepted    metric.Int64Counter
	paymentVolume       metric.Int64Counter
	swapsExecuted       metric.Int64Counter
	deploymentsCreated  metric.Int64Counter
	deploymentOutcomes  metric.Int64Counter
	subscriptionChanges metric.Int64Counter
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
		name = "shiplet"
	}
	meter := provider.Meter(name)

	paymentsAccepted, err := meter.Int64Counter("shiplet_payments_accepted_total")
	if err != nil {
		return nil, err
	}
	paymentVolume, err := meter.Int64Counter("shiplet_payment_volume_units")
	if err != nil {
		return nil, err
	}
	swapsExecuted, err := meter.Int64Counter("shiplet_swaps_executed_total")
	if err != nil {
		return nil, err
	}
	deploymentsCreated, err := meter.Int64Counter("shiplet_deployments_created_total")
	if err != nil {
		return nil, err
	}
	deploymentOutcomes, err := meter.Int64Counter("shiplet_deployment_outcomes_total")
	if err != nil {
		return nil, err
	}
	subscriptionChanges, err := meter.Int64Counter("shiplet_subscription_changes_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentsAccepted:    paymentsAccepted,
		paymentVolume:       paymentVolume,
		swapsExecuted:       swapsExecuted,
		deploymentsCreated:  deploymentsCreated,
		deploymentOutcomes:  deploymentOutcomes,
		subscriptionChanges: subscriptionChanges,
	}, nil
}

func (m *Metrics) RecordPayment(ctx context.Context, amount int64) {
	m.paymentsAccepted.Add(ctx, 1)
	m.paymentVolume.Add(ctx, amount)
}

func (m *Metrics) RecordSwap(ctx context.Context) {
	m.swapsExecuted.Add(ctx, 1)
}

func (m *Metrics) RecordDeployment(ctx context.Context, deploymentType string) {
	m.deploymentsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("type", deploymentType)))
}

func (m *Metrics) RecordDeploymentOutcome(ctx context.Context, status string) {
	m.deploymentOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordSubscriptionChange(ctx context.Context, action string) {
	m.subscriptionChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
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
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
