// Package mvc реализует синхронный конвейер диспетчеризации HTTP-запросов.
// Для каждого входящего запроса диспетчер выбирает ровно один обработчик из
// упорядоченной цепочки маршрутизаторов, вызывает его через адаптер, оборачивает
// вызов цепочкой перехватчиков, передает ошибки в цепочку обработчиков исключений
// и превращает результат в представление через цепочку разрешателей представлений.
// Очистка (multipart-ресурсы, снимки атрибутов, обратные вызовы завершения)
// гарантируется на любом пути выхода, включая панику и асинхронную приостановку.
package mvc

import (
	"context"
	"time"

	"golang.org/x/text/language"
)

// Router определяет контракт стратегии сопоставления запроса с обработчиком.
type Router interface {
	// Handler возвращает цепочку выполнения для запроса или nil, если
	// маршрутизатор не нашел совпадения. Ошибка означает сбой самого маршрутизатора.
	Handler(ctx context.Context, req *Request) (*HandlerExecutionChain, error)
}

// Adapter определяет контракт стратегии вызова обработчика конкретной формы.
type Adapter interface {
	// Supports сообщает, умеет ли адаптер вызывать данный обработчик.
	Supports(handler any) bool

	// Handle вызывает обработчик. Возвращенный nil означает, что ответ уже
	// полностью сформирован обработчиком и отрисовка не требуется.
	Handle(ctx context.Context, req *Request, handler any) (*ModelAndView, error)

	// LastModified возвращает время последнего изменения ресурса.
	// Второе значение false означает, что время неизвестно.
	LastModified(req *Request, handler any) (time.Time, bool)
}

// Interceptor определяет сквозной перехватчик вызова обработчика.
type Interceptor interface {
	// PreHandle вызывается до обработчика. false прерывает обработку запроса.
	PreHandle(ctx context.Context, req *Request, handler any) (bool, error)

	// PostHandle вызывается после успешного завершения обработчика, до отрисовки.
	PostHandle(ctx context.Context, req *Request, handler any, mv *ModelAndView) error

	// AfterCompletion вызывается после завершения обработки запроса на любом пути выхода.
	// err содержит первичную ошибку обработки или nil.
	AfterCompletion(ctx context.Context, req *Request, handler any, err error) error
}

// AsyncInterceptor расширяет Interceptor обратным вызовом, который срабатывает
// вместо PostHandle и AfterCompletion, когда обработчик перешел в асинхронный режим.
type AsyncInterceptor interface {
	Interceptor
	AfterConcurrentHandlingStarted(ctx context.Context, req *Request, handler any)
}

// ExceptionResolver превращает ошибку обработки в восстановимый результат.
type ExceptionResolver interface {
	// ResolveException возвращает ModelAndView для отрисовки, пустой ModelAndView,
	// если ответ уже сформирован, или nil, если разрешатель неприменим.
	// Возвращенная ошибка считается двойным отказом.
	ResolveException(ctx context.Context, req *Request, handler any, err error) (*ModelAndView, error)
}

// ViewResolver разрешает имя представления в объект представления.
type ViewResolver interface {
	// ResolveViewName возвращает представление или nil, если имя не распознано.
	ResolveViewName(ctx context.Context, name string, locale language.Tag) (View, error)
}

// View отрисовывает модель в ответ.
type View interface {
	Render(ctx context.Context, model *Model, req *Request) error
}

// LocaleResolver определяет локаль запроса.
type LocaleResolver interface {
	ResolveLocale(req *Request) language.Tag
}

// ViewNameTranslator выводит имя представления по умолчанию из запроса.
type ViewNameTranslator interface {
	// ViewName возвращает имя представления или пустую строку.
	ViewName(req *Request) (string, error)
}

// FlashMapStore хранит одноразовые атрибуты, переживающие ровно один следующий запрос.
type FlashMapStore interface {
	// RetrieveAndUpdate извлекает и изымает FlashMap, предназначенную текущему запросу.
	RetrieveAndUpdate(ctx context.Context, req *Request) (*FlashMap, error)

	// SaveOutputFlashMap сохраняет исходящую FlashMap для следующего запроса.
	SaveOutputFlashMap(ctx context.Context, fm *FlashMap, req *Request) error
}

// MultipartResolver переписывает запрос в multipart-форму и освобождает ресурсы после обработки.
type MultipartResolver interface {
	IsMultipart(req *Request) bool
	ResolveMultipart(ctx context.Context, req *Request) (*Request, error)
	Cleanup(req *Request) error
}

// Ordered реализуется стратегиями с явным приоритетом. Меньшее значение означает более высокий приоритет.
type Ordered interface {
	Order() int
}

// Initializer реализуется бинами, которым нужна инициализация после создания.
type Initializer interface {
	Init() error
}

// ModelAndViewDefiner реализуется ошибками, которые сами определяют результат для отрисовки.
type ModelAndViewDefiner interface {
	ModelAndView() *ModelAndView
}
