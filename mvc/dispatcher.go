package mvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// IDispatcher определяет основной интерфейс диспетчера запросов.
type IDispatcher interface {
	http.Handler

	// Name возвращает имя диспетчера.
	Name() string

	// Dispatch проводит запрос через конвейер. Если обработчик перешел в
	// асинхронный режим, возвращается сразу, а завершение запроса
	// отслеживается через req.Async().Done().
	Dispatch(ctx context.Context, req *Request) error

	// Refresh заново разрешает все стратегии с учетом опций и атомарно
	// заменяет текущий набор. Запросы в обработке дорабатывают со старым набором.
	Refresh(opts ...Option) error

	// Shutdown корректно завершает работу диспетчера.
	Shutdown(ctx context.Context) error
}

// dispatcherImpl представляет собой реализацию IDispatcher.
type dispatcherImpl struct {
	engine   *engine
	provider Provider
	cfg      *config
	// base — настройки стратегий после опций конструктора; Refresh строит
	// новые настройки от них.
	base settings
	mu   sync.Mutex
}

// NewDispatcher создает новый, готовый к использованию экземпляр диспетчера.
// Стратегии разрешаются из source; ошибка конфигурации возвращается сразу.
func NewDispatcher(source BeanSource, opts ...Option) (IDispatcher, error) {
	cfg := defaultConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	eng, err := newEngine(source, cfg)
	if err != nil {
		return nil, fmt.Errorf("не удалось инициализировать диспетчер '%s': %w", cfg.name, err)
	}

	allMiddlewares := []Middleware{
		NewLoggingMiddleware(cfg.logger),
		NewMetricsMiddleware(cfg.meterProvider),
		NewTracingMiddleware(cfg.tracerProvider, cfg.propagator),
	}
	allMiddlewares = append(allMiddlewares, cfg.middlewares...)
	wrappedProvider := applyMiddlewares(eng, allMiddlewares...)

	cfg.logger.Info("диспетчер инициализирован", slog.String("dispatcher", cfg.name))

	return &dispatcherImpl{
		engine:   eng,
		provider: wrappedProvider,
		cfg:      cfg,
		base:     cfg.settings.clone(),
	}, nil
}

// Name возвращает имя диспетчера.
func (d *dispatcherImpl) Name() string {
	return d.cfg.name
}

// Dispatch проводит запрос через цепочку middleware и движок.
func (d *dispatcherImpl) Dispatch(ctx context.Context, req *Request) error {
	return d.provider.Dispatch(ctx, req)
}

// ServeHTTP обрабатывает HTTP-запрос и дожидается асинхронного завершения.
// Ошибка, не обработанная разрешателями, превращается в ответ с кодом из
// StatusOf, если ответ еще не зафиксирован.
func (d *dispatcherImpl) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := NewRequest(w, r)
	ctx := r.Context()

	err := d.Dispatch(ctx, req)
	if err == nil && req.Async().State() != AsyncNone {
		select {
		case <-req.Async().Done():
		case <-ctx.Done():
			req.Async().complete(nil, ctx.Err())
			<-req.Async().Done()
		}
		err = req.Async().Err()
	}
	if err == nil || req.Response.Committed() {
		return
	}

	status := StatusOf(err)
	if errors.Is(err, ErrRouteNotFound) {
		status = http.StatusNotFound
	}
	req.Response.SendError(status, "")
}

// Refresh заново строит настройки стратегий из состояния после создания и
// переданных опций и заменяет набор стратегий. Опции предыдущих вызовов Refresh
// не сохраняются. Опции, влияющие на логирование и middleware, при обновлении
// не применяются.
func (d *dispatcherImpl) Refresh(opts ...Option) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := *d.cfg
	next.settings = d.base.clone()
	for _, opt := range opts {
		opt(&next)
	}

	if err := d.engine.refresh(next.settings); err != nil {
		d.cfg.logger.Error("не удалось обновить стратегии диспетчера",
			slog.String("dispatcher", d.cfg.name),
			slog.Any("error", err),
		)
		return fmt.Errorf("не удалось обновить диспетчер '%s': %w", d.cfg.name, err)
	}
	d.cfg.settings = next.settings
	d.cfg.logger.Info("стратегии диспетчера обновлены", slog.String("dispatcher", d.cfg.name))
	return nil
}

// Shutdown корректно завершает работу диспетчера.
func (d *dispatcherImpl) Shutdown(ctx context.Context) error {
	return d.provider.Shutdown(ctx)
}
