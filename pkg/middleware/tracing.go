// pkg/middleware/tracing.go
package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// Tracing installs an OTLP tracer provider when OTEL_EXPORTER_OTLP_(TRACES_)ENDPOINT is set
// and returns the server middleware plus a shutdown func. Without an endpoint both are no-ops.
func Tracing(service string, log *zap.SugaredLogger) (func(http.Handler) http.Handler, func(context.Context) error) {
	noop := func(context.Context) error { return nil }
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return func(next http.Handler) http.Handler { return next }, noop
	}

	opts := []otlptracehttp.Option{}
	if strings.HasPrefix(strings.ToLower(endpoint), "http://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		log.Warnw("tracing exporter init failed, instrumentation disabled", "err", err)
		return func(next http.Handler) http.Handler { return next }, noop
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		log.Warnw("tracing resource init failed", "err", err)
		res = resource.Default()
	}
	tp := trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	log.Infow("tracing enabled", "endpoint", endpoint)

	return func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "http") }, tp.Shutdown
}

// HTTPClient returns an outbound client whose requests join the active trace.
// A zero timeout leaves requests bounded only by their context.
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}
