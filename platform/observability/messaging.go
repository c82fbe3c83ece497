package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartConsumerSpan извлекает trace context из заголовков сообщения брокера
// и открывает consumer span на обработку одной доставки.
func StartConsumerSpan(ctx context.Context, serviceName, source string, headers map[string]string) (context.Context, trace.Span) {
	if len(headers) > 0 {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
	}
	return otel.Tracer(serviceName).Start(ctx, "consume "+source,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.source.name", source),
		),
	)
}

// InjectHeaders пишет текущий trace context в заголовки исходящего сообщения.
func InjectHeaders(ctx context.Context) map[string]string {
	headers := map[string]string{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
	return headers
}
