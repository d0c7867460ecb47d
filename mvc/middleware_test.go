package mvc_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

func failingBeans(err error) *mvc.Beans {
	router := newMapRouter(0).
		route("/ok", handlerFn(func(context.Context, *mvc.Request) (*mvc.ModelAndView, error) {
			return nil, nil
		})).
		route("/fail", handlerFn(func(context.Context, *mvc.Request) (*mvc.ModelAndView, error) {
			return nil, err
		}))
	return basicBeans(router, nil)
}

func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok, "Метрика %s должна быть счетчиком", name)
				return sum
			}
		}
	}
	t.Fatalf("метрика %s не найдена", name)
	return metricdata.Sum[int64]{}
}

// Тест сбора метрик диспетчеризации.
func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	d := newDispatcher(t, failingBeans(errors.New("сбой")), mvc.WithMeterProvider(provider))

	for _, path := range []string{"/ok", "/ok", "/fail"} {
		_, _, _ = dispatch(d, httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm), "Сбор метрик не должен вызывать ошибку")

	counts := map[string]int64{}
	for _, dp := range findSum(t, rm, "http.server.dispatch.count").DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		method, _ := dp.Attributes.Value(attribute.Key("http.request.method"))
		assert.Equal(t, http.MethodGet, method.AsString(), "Метод в атрибутах некорректен")
		counts[outcome.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"success": 2, "error": 1}, counts, "Количество запросов по исходам некорректно")
}

// Тест трассировки: серверный спан, контекст из заголовков и статус ошибки.
func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	d := newDispatcher(t, failingBeans(errors.New("сбой")), mvc.WithTracerProvider(provider))

	r := httptest.NewRequest(http.MethodGet, "/fail", nil)
	r.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	_, _, err := dispatch(d, r)
	require.Error(t, err, "Неразрешенная ошибка должна возвращаться")

	spans := recorder.Ended()
	require.Len(t, spans, 1, "Должен быть записан один спан")
	span := spans[0]
	assert.Equal(t, "GET dispatch", span.Name(), "Имя спана некорректно")
	assert.Equal(t, trace.SpanKindServer, span.SpanKind(), "Вид спана некорректен")
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.Parent().TraceID().String(), "Родительский контекст должен извлекаться из заголовков")
	assert.Equal(t, codes.Error, span.Status().Code, "Статус спана должен отражать ошибку")
	assert.NotEmpty(t, span.Events(), "Ошибка должна быть записана в спан")
}

// Тест трассировки приостановленного запроса, результат которого готов до
// возврата синхронного пути. Запускается с -race.
func TestTracingMiddleware_AsyncReadyBeforeReturn(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	router := newMapRouter(0).route("/async", handlerFn(func(_ context.Context, req *mvc.Request) (*mvc.ModelAndView, error) {
		actx, err := req.StartAsync()
		if err != nil {
			return nil, err
		}
		actx.Complete(mvc.NewModelAndView("async"), nil)
		return nil, nil
	}))
	view := &recordingView{name: "async"}
	d := newDispatcher(t, basicBeans(router, map[string]mvc.View{"async": view}), mvc.WithTracerProvider(provider))

	const requests = 200
	for range requests {
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/async", nil))
		require.Equal(t, http.StatusOK, rec.Code, "Асинхронный результат должен быть отрисован")
	}

	spans := recorder.Ended()
	require.Len(t, spans, requests, "На каждый запрос должен быть записан спан")
	for _, span := range spans {
		attrs := attribute.NewSet(span.Attributes()...)
		async, ok := attrs.Value("dispatch.async")
		assert.True(t, ok && async.AsBool(), "Спан должен отмечать асинхронную обработку")
		_, ok = attrs.Value("http.response.status_code")
		assert.False(t, ok, "Статус ответа до асинхронной отрисовки не должен записываться")
	}
	assert.EqualValues(t, requests, view.renders.Load(), "Каждый запрос должен быть отрисован ровно один раз")
}

// Тест пользовательского middleware: применяется после встроенных.
func TestWithMiddleware(t *testing.T) {
	t.Parallel()

	j := &journal{}
	mw := mvc.MiddlewareFunc(func(next mvc.Provider) mvc.Provider {
		return mvc.ProviderFunc(func(ctx context.Context, req *mvc.Request) error {
			j.add("before %s", req.Path())
			err := next.Dispatch(ctx, req)
			j.add("after")
			return err
		})
	})
	d := newDispatcher(t, failingBeans(nil), mvc.WithMiddleware(mw))

	_, _, err := dispatch(d, httptest.NewRequest(http.MethodGet, "/ok", nil))

	require.NoError(t, err, "Обработка запроса не должна вызывать ошибку")
	assert.Equal(t, []string{"before /ok", "after"}, j.all(), "Middleware должно оборачивать диспетчеризацию")
}

type namedHandler struct{}

func (namedHandler) String() string { return "именованный" }

func plainFunction() {}

// Тест имени обработчика для логов.
func TestHandlerName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "<nil>", mvc.HandlerName(nil), "Имя nil некорректно")
	assert.Equal(t, "именованный", mvc.HandlerName(namedHandler{}), "Должен использоваться String")
	assert.Contains(t, mvc.HandlerName(plainFunction), "plainFunction", "Имя функции должно браться из runtime")
	assert.Equal(t, "int", mvc.HandlerName(42), "Для прочих значений должно использоваться имя типа")
}
