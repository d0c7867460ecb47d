package mvc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/goccy/go-reflect"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/x-research-team/dtx-webmvc/mvc"
	instrumentationVersion = "0.1.0"
	metricKeyPrefix        = "http.server."
)

// Middleware определяет интерфейс для middleware диспетчера.
type Middleware interface {
	Wrap(next Provider) Provider
}

// MiddlewareFunc является адаптером, позволяющим использовать обычные функции как middleware.
type MiddlewareFunc func(next Provider) Provider

// Wrap реализует интерфейс Middleware.
func (f MiddlewareFunc) Wrap(next Provider) Provider {
	return f(next)
}

// ProviderFunc позволяет использовать функцию как Provider без завершения работы.
type ProviderFunc func(ctx context.Context, req *Request) error

// Dispatch вызывает функцию.
func (f ProviderFunc) Dispatch(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// Shutdown не выполняет никаких действий.
func (f ProviderFunc) Shutdown(context.Context) error {
	return nil
}

// loggingMiddleware реализует Middleware для логирования диспетчеризации.
type loggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware создает новое middleware для логирования.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		return &noopMiddleware{}
	}
	return &loggingMiddleware{
		logger: logger,
	}
}

// Wrap оборачивает провайдер для добавления логирования.
func (m *loggingMiddleware) Wrap(next Provider) Provider {
	return &loggingProvider{
		next:   next,
		logger: m.logger,
	}
}

// loggingProvider - это обертка над провайдером, которая добавляет логирование.
type loggingProvider struct {
	next   Provider
	logger *slog.Logger
}

// Dispatch логирует начало и ошибки обработки запроса.
func (p *loggingProvider) Dispatch(ctx context.Context, req *Request) (err error) {
	p.logger.Debug("диспетчеризация запроса",
		slog.String("request_id", req.ID.String()),
		slog.String("method", req.Method()),
		slog.String("path", req.Path()),
	)

	startTime := time.Now()
	defer func() {
		duration := time.Since(startTime)
		if err != nil {
			p.logger.Error("ошибка обработки запроса",
				slog.String("request_id", req.ID.String()),
				slog.String("method", req.Method()),
				slog.String("path", req.Path()),
				slog.Any("error", err),
				slog.Duration("duration", duration),
			)
		}
	}()

	return p.next.Dispatch(ctx, req)
}

// Shutdown делегирует вызов следующему провайдеру в цепочке.
func (p *loggingProvider) Shutdown(ctx context.Context) error {
	return p.next.Shutdown(ctx)
}

// metricsMiddleware реализует Middleware для сбора метрик OpenTelemetry.
type metricsMiddleware struct {
	dispatchCounter metric.Int64Counter
	durationHist    metric.Float64Histogram
}

// NewMetricsMiddleware создает новое middleware для сбора метрик.
func NewMetricsMiddleware(provider metric.MeterProvider) Middleware {
	if provider == nil {
		return &noopMiddleware{}
	}

	meter := provider.Meter(instrumentationName)

	dispatchCounter, err := meter.Int64Counter(
		metricKeyPrefix+"dispatch.count",
		metric.WithDescription("Количество обработанных запросов"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик dispatch.count: %v", err))
	}

	durationHist, err := meter.Float64Histogram(
		metricKeyPrefix+"dispatch.duration",
		metric.WithDescription("Длительность диспетчеризации запроса"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать гистограмму dispatch.duration: %v", err))
	}

	return &metricsMiddleware{
		dispatchCounter: dispatchCounter,
		durationHist:    durationHist,
	}
}

// Wrap оборачивает провайдер для добавления сбора метрик.
func (m *metricsMiddleware) Wrap(next Provider) Provider {
	return &metricsProvider{
		next:            next,
		dispatchCounter: m.dispatchCounter,
		durationHist:    m.durationHist,
	}
}

// metricsProvider - это обертка над провайдером, которая собирает метрики.
type metricsProvider struct {
	next            Provider
	dispatchCounter metric.Int64Counter
	durationHist    metric.Float64Histogram
}

// Dispatch собирает метрики и передает запрос дальше.
func (p *metricsProvider) Dispatch(ctx context.Context, req *Request) error {
	startTime := time.Now()
	err := p.next.Dispatch(ctx, req)
	duration := float64(time.Since(startTime).Milliseconds())

	attrs := metric.WithAttributes(
		attribute.String("http.request.method", req.Method()),
		attribute.String("outcome", outcomeOf(req, err)),
	)
	p.dispatchCounter.Add(ctx, 1, attrs)
	p.durationHist.Record(ctx, duration, attrs)

	return err
}

// Shutdown делегирует вызов.
func (p *metricsProvider) Shutdown(ctx context.Context) error {
	return p.next.Shutdown(ctx)
}

// outcomeOf классифицирует результат диспетчеризации для метрик.
func outcomeOf(req *Request, err error) string {
	switch {
	case err != nil:
		return "error"
	case req.Async().IsConcurrentHandlingStarted():
		return "async"
	}
	return "success"
}

// tracingMiddleware реализует Middleware для распределенной трассировки OpenTelemetry.
type tracingMiddleware struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracingMiddleware создает новое middleware для трассировки.
func NewTracingMiddleware(tp trace.TracerProvider, p propagation.TextMapPropagator) Middleware {
	if tp == nil {
		return &noopMiddleware{}
	}

	if p == nil {
		p = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}

	return &tracingMiddleware{
		tracer: tp.Tracer(
			instrumentationName,
			trace.WithInstrumentationVersion(instrumentationVersion),
		),
		propagator: p,
	}
}

// Wrap оборачивает провайдер для добавления логики трассировки.
func (m *tracingMiddleware) Wrap(next Provider) Provider {
	return &tracingProvider{
		next:       next,
		tracer:     m.tracer,
		propagator: m.propagator,
	}
}

// tracingProvider - это обертка над провайдером, которая управляет спанами трассировки.
type tracingProvider struct {
	next       Provider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// Dispatch извлекает контекст трассировки из заголовков и создает серверный спан.
func (p *tracingProvider) Dispatch(ctx context.Context, req *Request) (err error) {
	ctx = p.propagator.Extract(ctx, propagation.HeaderCarrier(req.Header()))

	spanName := fmt.Sprintf("%s dispatch", req.Method())
	ctx, span := p.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method()),
			attribute.String("url.path", req.Path()),
			attribute.String("request.id", req.ID.String()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		// Ответ приостановленного запроса пишет путь завершения в другой горутине.
		if req.Async().State() != AsyncNone {
			span.SetAttributes(attribute.Bool("dispatch.async", true))
		} else {
			span.SetAttributes(attribute.Int("http.response.status_code", req.Response.Status()))
		}
		span.End()
	}()

	return p.next.Dispatch(ctx, req)
}

// Shutdown делегирует вызов.
func (p *tracingProvider) Shutdown(ctx context.Context) error {
	return p.next.Shutdown(ctx)
}

// applyMiddlewares применяет цепочку middleware к базовому провайдеру.
func applyMiddlewares(provider Provider, middlewares ...Middleware) Provider {
	p := provider
	for i := len(middlewares) - 1; i >= 0; i-- {
		p = middlewares[i].Wrap(p)
	}
	return p
}

// noopMiddleware представляет собой пустое middleware.
type noopMiddleware struct{}

// Wrap просто возвращает следующий провайдер без изменений.
func (m *noopMiddleware) Wrap(next Provider) Provider {
	return next
}

// HandlerName возвращает имя обработчика для логов и сообщений об ошибках.
func HandlerName(handler any) string {
	if handler == nil {
		return "<nil>"
	}
	if s, ok := handler.(fmt.Stringer); ok {
		return s.String()
	}
	v := reflect.ValueOf(handler)
	if v.Kind() == reflect.Func {
		if pc := v.Pointer(); pc != 0 {
			if f := runtime.FuncForPC(pc); f != nil {
				return f.Name()
			}
		}
	}
	return reflect.TypeOf(handler).String()
}
