package mvc

import (
	"log/slog"
	"maps"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Имена бинов, используемые при выключенном поиске всех стратегий.
const (
	RouterBeanName             = "router"
	AdapterBeanName            = "adapter"
	ExceptionResolverBeanName  = "exceptionResolver"
	ViewResolverBeanName       = "viewResolver"
	LocaleResolverBeanName     = "localeResolver"
	ViewNameTranslatorBeanName = "viewNameTranslator"
	FlashMapStoreBeanName      = "flashMapStore"
	MultipartResolverBeanName  = "multipartResolver"
)

// settings — параметры диспетчеризации, которые заменяются целиком при Refresh.
type settings struct {
	detectAll             map[Capability]bool
	beanNames             map[Capability]string
	throwIfNoHandlerFound bool
	cleanupAfterInclude   bool
	defaults              DefaultStrategies
}

func (s settings) clone() settings {
	s.detectAll = maps.Clone(s.detectAll)
	s.beanNames = maps.Clone(s.beanNames)
	return s
}

// spec возвращает описание разрешения стратегий вида c.
func (s settings) spec(c Capability) StrategySpec {
	return StrategySpec{
		Capability: c,
		DetectAll:  s.detectAll[c],
		BeanName:   s.beanNames[c],
		Optional:   c != CapabilityRouter && c != CapabilityAdapter,
	}
}

// config содержит неэкспортируемую конфигурацию диспетчера.
type config struct {
	name           string
	logger         *slog.Logger
	notFoundLogger *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	middlewares    []Middleware
	workerMin      int
	workerMax      int
	queueSize      int
	settings       settings
}

func defaultConfig() *config {
	return &config{
		name:      "dispatcher",
		logger:    slog.Default(),
		workerMin: 1,
		workerMax: 16,
		queueSize: 256,
		settings: settings{
			detectAll: map[Capability]bool{
				CapabilityRouter:            true,
				CapabilityAdapter:           true,
				CapabilityExceptionResolver: true,
				CapabilityViewResolver:      true,
			},
			beanNames: map[Capability]string{
				CapabilityRouter:             RouterBeanName,
				CapabilityAdapter:            AdapterBeanName,
				CapabilityExceptionResolver:  ExceptionResolverBeanName,
				CapabilityViewResolver:       ViewResolverBeanName,
				CapabilityLocaleResolver:     LocaleResolverBeanName,
				CapabilityViewNameTranslator: ViewNameTranslatorBeanName,
				CapabilityFlashMapStore:      FlashMapStoreBeanName,
				CapabilityMultipartResolver:  MultipartResolverBeanName,
			},
			cleanupAfterInclude: true,
		},
	}
}

// Option определяет тип для функциональных опций, которые изменяют конфигурацию диспетчера.
type Option func(*config)

// WithName задает имя диспетчера, используемое в логах и атрибутах ошибок.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLogger возвращает опцию, которая устанавливает логгер для диспетчера.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithNotFoundLogger устанавливает отдельный логгер для запросов без обработчика.
func WithNotFoundLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.notFoundLogger = logger
	}
}

// WithTracerProvider возвращает опцию, которая устанавливает провайдер трассировки.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider возвращает опцию, которая устанавливает провайдер метрик.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}

// WithPropagator возвращает опцию, которая устанавливает механизм распространения контекста.
func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagator = propagator
	}
}

// WithMiddleware возвращает опцию, которая добавляет один или несколько middleware в цепочку обработки.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) {
		c.middlewares = append(c.middlewares, mw...)
	}
}

// WithWorkerPool настраивает пул воркеров для асинхронных обработчиков.
func WithWorkerPool(minWorkers, maxWorkers, queueSize int) Option {
	return func(c *config) {
		c.workerMin = minWorkers
		c.workerMax = maxWorkers
		c.queueSize = queueSize
	}
}

// WithDetectAll включает или выключает поиск всех бинов для списочного вида стратегий.
// При выключенном поиске используется единственный бин с именем из WithBeanName.
func WithDetectAll(capability Capability, detect bool) Option {
	return func(c *config) {
		c.settings.detectAll[capability] = detect
	}
}

// WithBeanName задает имя бина для вида стратегии.
func WithBeanName(capability Capability, name string) Option {
	return func(c *config) {
		c.settings.beanNames[capability] = name
	}
}

// WithThrowIfNoHandlerFound включает передачу NoHandlerFoundError в цепочку
// разрешателей исключений вместо прямого ответа 404.
func WithThrowIfNoHandlerFound(throw bool) Option {
	return func(c *config) {
		c.settings.throwIfNoHandlerFound = throw
	}
}

// WithCleanupAfterInclude определяет, восстанавливаются ли после include все
// атрибуты запроса или только служебные.
func WithCleanupAfterInclude(cleanup bool) Option {
	return func(c *config) {
		c.settings.cleanupAfterInclude = cleanup
	}
}

// WithDefaultStrategies задает таблицу стратегий по умолчанию.
func WithDefaultStrategies(defaults DefaultStrategies) Option {
	return func(c *config) {
		c.settings.defaults = defaults
	}
}
