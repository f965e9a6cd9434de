package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/GauntletMC/Graphite/internal/logging"
)

// Options параметры трассировки сервера
type Options struct {
	ServiceName string
	Version     string
	World       string
	Protocol    int
	// Endpoint host:port коллектора; пусто - OTEL_EXPORTER_OTLP_ENDPOINT или localhost:4318
	Endpoint string
	Insecure bool
	// SampleRatio доля корневых спанов; <= 0 или >= 1 - все
	SampleRatio float64
}

// Shutdown сбрасывает накопленные спаны и останавливает провайдер
type Shutdown func(context.Context) error

// InitTelemetry ставит глобальный TracerProvider с OTLP HTTP экспортером.
// Загрузка чанков и admin API берут трейсер через otel.Tracer, до вызова они no-op.
func InitTelemetry(ctx context.Context, opts Options) (Shutdown, error) {
	exp, err := otlptracehttp.New(ctx, exporterOptions(opts)...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(opts)...))
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(opts.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	logging.GetComponentLogger("telemetry").Info("Трассировка включена: service=%s world=%s sample=%.2f",
		opts.ServiceName, opts.World, opts.SampleRatio)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

func exporterOptions(opts Options) []otlptracehttp.Option {
	var out []otlptracehttp.Option
	if opts.Endpoint != "" {
		out = append(out, otlptracehttp.WithEndpoint(opts.Endpoint))
	}
	if opts.Insecure {
		out = append(out, otlptracehttp.WithInsecure())
	}
	return out
}

func resourceAttributes(opts Options) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(opts.Version))
	}
	if opts.World != "" {
		attrs = append(attrs, attribute.String("graphite.world", opts.World))
	}
	if opts.Protocol > 0 {
		attrs = append(attrs, attribute.Int("graphite.protocol", opts.Protocol))
	}
	return attrs
}

// samplerFor дочерние спаны следуют решению родителя
func samplerFor(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
