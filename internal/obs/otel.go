package obs

import (
	"context"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-logr/logr"
)

// Telemetry holds the process-wide tracer and a shutdown func. When OTel is
// disabled (the common case — it is opt-in via CCCC_OTEL_ENABLED), Tracer
// returns otel's no-op tracer and Shutdown is a no-op.
type Telemetry struct {
	Enabled  bool
	Tracer   trace.Tracer
	shutdown func(context.Context) error
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}

// InitTelemetry mirrors cmd/agent-runner/observability.go's OTLP bootstrap:
// disabled unless CCCC_OTEL_ENABLED=true and an endpoint is configured
// (either the cccc-prefixed var or the standard OTEL_EXPORTER_OTLP_ENDPOINT
// one), grpc or http/protobuf transport, resource attributes from CSV.
func InitTelemetry(ctx context.Context, log logr.Logger) *Telemetry {
	noop := &Telemetry{Tracer: otel.Tracer("cccc/ccccd"), shutdown: func(context.Context) error { return nil }}

	if !strings.EqualFold(getEnv("CCCC_OTEL_ENABLED", ""), "true") {
		return noop
	}
	endpoint := firstNonEmpty(
		getEnv("CCCC_OTEL_OTLP_ENDPOINT", ""),
		getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	)
	if endpoint == "" {
		log.Info("otel enabled but no OTLP endpoint set; skipping bootstrap")
		return noop
	}
	serviceName := firstNonEmpty(
		getEnv("CCCC_OTEL_SERVICE_NAME", ""),
		getEnv("OTEL_SERVICE_NAME", ""),
		"ccccd",
	)
	protocol := strings.ToLower(firstNonEmpty(
		getEnv("CCCC_OTEL_OTLP_PROTOCOL", ""),
		getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", ""),
		"grpc",
	))
	resAttrCSV := firstNonEmpty(
		getEnv("CCCC_OTEL_RESOURCE_ATTRIBUTES", ""),
		getEnv("OTEL_RESOURCE_ATTRIBUTES", ""),
	)

	res := buildResource(serviceName, resAttrCSV)
	tp, mp, err := buildProviders(ctx, protocol, endpoint, res)
	if err != nil {
		log.Error(err, "failed to initialize otel exporters")
		return noop
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Telemetry{
		Enabled: true,
		Tracer:  otel.Tracer("cccc/ccccd"),
		shutdown: func(ctx context.Context) error {
			var firstErr error
			if err := tp.Shutdown(ctx); err != nil {
				firstErr = err
			}
			if err := mp.Shutdown(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
			return firstErr
		},
	}
}

func buildResource(serviceName, attrsCSV string) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		attribute.String("service.namespace", "cccc"),
	}
	for k, v := range parseResourceAttributes(attrsCSV) {
		attrs = append(attrs, attribute.String(k, v))
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithOS(),
		resource.WithProcess(),
	)
	if err != nil {
		return resource.Default()
	}
	return res
}

func buildProviders(ctx context.Context, protocol, endpoint string, res *resource.Resource) (*sdktrace.TracerProvider, *sdkmetric.MeterProvider, error) {
	cleanEndpoint, insecure := normalizeEndpoint(endpoint)

	var (
		traceExp sdktrace.SpanExporter
		reader   sdkmetric.Reader
		err      error
	)

	switch protocol {
	case "http/protobuf":
		traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cleanEndpoint)}
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cleanEndpoint)}
		if insecure {
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		if traceExp, err = otlptracehttp.New(ctx, traceOpts...); err != nil {
			return nil, nil, err
		}
		metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, err
		}
		reader = sdkmetric.NewPeriodicReader(metricExp)
	default:
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cleanEndpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cleanEndpoint)}
		if insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		if traceExp, err = otlptracegrpc.New(ctx, traceOpts...); err != nil {
			return nil, nil, err
		}
		metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			return nil, nil, err
		}
		reader = sdkmetric.NewPeriodicReader(metricExp)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	return tp, mp, nil
}

func normalizeEndpoint(endpoint string) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", true
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			return u.Host, u.Scheme != "https"
		}
	}
	return endpoint, true
}

func parseResourceAttributes(csv string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k, v := strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
