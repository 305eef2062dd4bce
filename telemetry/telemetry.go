// Package telemetry installs the global OpenTelemetry tracer provider that
// operation spans are recorded on.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/amp-labs/statekeeper/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	defaultServiceName    = "statekeeper"
	defaultServiceVersion = "1.0.0"
	defaultTimeout        = 5 * time.Second
)

// Environment variables read by LoadConfigFromEnv.
const (
	EnvEnabled        = "OTEL_ENABLED"
	EnvServiceName    = "OTEL_SERVICE_NAME"
	EnvServiceVersion = "OTEL_SERVICE_VERSION"
	EnvEndpoint       = "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"
	EnvTimeout        = "OTEL_EXPORTER_OTLP_TRACES_TIMEOUT"
)

// ErrInvalidEnv is returned when an OTEL_* variable cannot be parsed.
var ErrInvalidEnv = errors.New("invalid telemetry environment variable")

var (
	providerMutex  sync.Mutex               //nolint:gochecknoglobals
	tracerProvider *sdktrace.TracerProvider //nolint:gochecknoglobals
)

// Config holds the OpenTelemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
	Timeout        time.Duration
}

// LoadConfigFromEnv reads the standard OTEL_* variables. Tracing is enabled
// when an endpoint is set, unless OTEL_ENABLED says otherwise.
func LoadConfigFromEnv(serviceName string) (*Config, error) {
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	config := &Config{
		ServiceName:    envOr(EnvServiceName, serviceName),
		ServiceVersion: envOr(EnvServiceVersion, defaultServiceVersion),
		Endpoint:       os.Getenv(EnvEndpoint),
		Timeout:        defaultTimeout,
	}

	config.Enabled = config.Endpoint != ""

	if raw, ok := os.LookupEnv(EnvEnabled); ok && raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidEnv, EnvEnabled, raw)
		}

		config.Enabled = enabled
	}

	if raw, ok := os.LookupEnv(EnvTimeout); ok && raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidEnv, EnvTimeout, raw)
		}

		config.Timeout = timeout
	}

	return config, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

// Initialize sets up OpenTelemetry tracing with the given configuration.
// A disabled config, or one without an endpoint, leaves the no-op provider in place.
func Initialize(ctx context.Context, config *Config) error {
	log := logger.Get(ctx)

	if !config.Enabled {
		log.Debug("OpenTelemetry tracing is disabled")

		return nil
	}

	if config.Endpoint == "" {
		log.Warn("OpenTelemetry endpoint not configured, tracing will be disabled")

		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(config.Endpoint),
		otlptracehttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	providerMutex.Lock()
	tracerProvider = provider
	providerMutex.Unlock()

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("OpenTelemetry tracing initialized",
		"service", config.ServiceName,
		"version", config.ServiceVersion,
		"endpoint", config.Endpoint,
	)

	return nil
}

// Shutdown flushes and shuts down the tracer provider installed by Initialize.
func Shutdown(ctx context.Context) error {
	providerMutex.Lock()
	provider := tracerProvider
	tracerProvider = nil
	providerMutex.Unlock()

	if provider == nil {
		return nil
	}

	logger.Get(ctx).Debug("Shutting down OpenTelemetry tracer provider")

	return provider.Shutdown(ctx)
}
