package mvc

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Provider определяет контракт механизма диспетчеризации запроса.
// Middleware оборачивают Provider для логирования, метрик и трассировки.
type Provider interface {
	// Dispatch проводит запрос через конвейер диспетчеризации.
	Dispatch(ctx context.Context, req *Request) error

	// Shutdown корректно завершает работу провайдера.
	Shutdown(ctx context.Context) error
}

// strategies — неизменяемый набор стратегий, разрешенный при инициализации.
// Запрос загружает указатель на набор один раз и работает с ним до конца.
type strategies struct {
	settings      settings
	routers       StrategyList[Router]
	adapters      StrategyList[Adapter]
	resolvers     StrategyList[ExceptionResolver]
	viewResolvers StrategyList[ViewResolver]
	locale        LocaleResolver
	translator    ViewNameTranslator
	flashStore    FlashMapStore
	multipart     MultipartResolver
}

// initStrategies разрешает все виды стратегий из источника зависимостей.
func initStrategies(src BeanSource, s settings, logger *slog.Logger) (*strategies, error) {
	st := &strategies{settings: s}
	var err error

	if st.multipart, err = resolveSingle[MultipartResolver](src, s, CapabilityMultipartResolver, logger); err != nil {
		return nil, err
	}
	if st.locale, err = resolveSingle[LocaleResolver](src, s, CapabilityLocaleResolver, logger); err != nil {
		return nil, err
	}
	if st.routers, err = resolveList[Router](src, s, CapabilityRouter, logger); err != nil {
		return nil, err
	}
	if st.adapters, err = resolveList[Adapter](src, s, CapabilityAdapter, logger); err != nil {
		return nil, err
	}
	if st.resolvers, err = resolveList[ExceptionResolver](src, s, CapabilityExceptionResolver, logger); err != nil {
		return nil, err
	}
	if st.translator, err = resolveSingle[ViewNameTranslator](src, s, CapabilityViewNameTranslator, logger); err != nil {
		return nil, err
	}
	if st.viewResolvers, err = resolveList[ViewResolver](src, s, CapabilityViewResolver, logger); err != nil {
		return nil, err
	}
	if st.flashStore, err = resolveSingle[FlashMapStore](src, s, CapabilityFlashMapStore, logger); err != nil {
		return nil, err
	}
	return st, nil
}

func resolveList[T any](src BeanSource, s settings, c Capability, logger *slog.Logger) (StrategyList[T], error) {
	list, origin, err := ResolveStrategies[T](src, s.defaults, s.spec(c))
	if err != nil {
		return list, err
	}
	logger.Debug("стратегии разрешены",
		slog.String("capability", c.String()),
		slog.String("origin", origin.String()),
		slog.Int("count", list.Len()),
	)
	return list, nil
}

func resolveSingle[T any](src BeanSource, s settings, c Capability, logger *slog.Logger) (T, error) {
	var zero T
	list, err := resolveList[T](src, s, c, logger)
	if err != nil || list.Len() == 0 {
		return zero, err
	}
	return list.At(0), nil
}

// engine — базовая реализация Provider: единый движок диспетчеризации,
// составленный из внедренных стратегий.
type engine struct {
	name           string
	logger         *slog.Logger
	notFoundLogger *slog.Logger
	source         BeanSource
	current        atomic.Pointer[strategies]
	pool           *workerPool
}

// newEngine создает движок и выполняет первичную инициализацию стратегий.
func newEngine(source BeanSource, cfg *config) (*engine, error) {
	if source == nil {
		return nil, fmt.Errorf("источник зависимостей не может быть nil")
	}
	notFound := cfg.notFoundLogger
	if notFound == nil {
		notFound = cfg.logger
	}
	e := &engine{
		name:           cfg.name,
		logger:         cfg.logger,
		notFoundLogger: notFound,
		source:         source,
		pool:           newWorkerPool(cfg.workerMin, cfg.workerMax, cfg.queueSize, cfg.logger),
	}
	if err := e.refresh(cfg.settings); err != nil {
		return nil, err
	}
	e.pool.run()
	return e, nil
}

// refresh строит новый набор стратегий и атомарно заменяет текущий.
// При ошибке текущий набор остается в силе.
func (e *engine) refresh(s settings) error {
	st, err := initStrategies(e.source, s, e.logger)
	if err != nil {
		return err
	}
	e.current.Store(st)
	return nil
}

// Shutdown останавливает пул воркеров, дожидаясь уже принятых асинхронных задач.
func (e *engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pool.stop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
