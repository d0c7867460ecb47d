package mvc

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/multierr"
)

var (
	// ErrRouteNotFound означает, что ни один маршрутизатор не сопоставил запрос с обработчиком.
	ErrRouteNotFound = errors.New("обработчик для запроса не найден")
	// ErrConfiguration означает фатальную ошибку конфигурации диспетчера.
	ErrConfiguration = errors.New("ошибка конфигурации диспетчера")
	// ErrAdapterNotFound означает, что маршрут найден, но ни один адаптер не умеет вызвать обработчик.
	ErrAdapterNotFound = errors.New("адаптер для обработчика не найден")
	// ErrViewNotResolvable означает, что ни один разрешатель не распознал имя представления.
	ErrViewNotResolvable = errors.New("не удалось разрешить представление")
	// ErrInvalidModelAndView означает нарушение контракта: нет ни имени, ни объекта представления.
	ErrInvalidModelAndView = errors.New("ModelAndView не содержит ни имени представления, ни объекта представления")
	// ErrMultipart означает сбой разбора multipart-запроса.
	ErrMultipart = errors.New("ошибка разбора multipart-запроса")
	// ErrNotInitialized означает, что стратегии диспетчера еще не инициализированы.
	ErrNotInitialized = errors.New("диспетчер не инициализирован")
	// ErrAsyncStarted означает повторную попытку перевести запрос в асинхронный режим.
	ErrAsyncStarted = errors.New("асинхронная обработка уже запущена")
	// ErrAsyncRejected означает, что пул воркеров не принял асинхронную задачу.
	ErrAsyncRejected = errors.New("пул воркеров отклонил асинхронную задачу")
)

// NoHandlerFoundError — типизированная ошибка отсутствия обработчика, которую
// могут обработать разрешатели исключений.
type NoHandlerFoundError struct {
	Method string
	Path   string
	Header http.Header
}

func (e *NoHandlerFoundError) Error() string {
	return fmt.Sprintf("обработчик для %s %s не найден", e.Method, e.Path)
}

// Is позволяет сопоставлять ошибку с ErrRouteNotFound.
func (e *NoHandlerFoundError) Is(target error) bool {
	return target == ErrRouteNotFound
}

// StatusCode возвращает HTTP-статус ошибки.
func (e *NoHandlerFoundError) StatusCode() int {
	return http.StatusNotFound
}

// ConfigurationError — фатальная ошибка конфигурации. Отличает сломанную
// конфигурацию сервера от неверной маршрутизации запроса.
type ConfigurationError struct {
	Capability Capability
	Reason     string
	Err        error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ошибка конфигурации (%s): %s: %v", e.Capability, e.Reason, e.Err)
	}
	return fmt.Sprintf("ошибка конфигурации (%s): %s", e.Capability, e.Reason)
}

// Is позволяет сопоставлять ошибку с ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// HandlerExecutionError — ошибка или паника обработчика либо его адаптера.
type HandlerExecutionError struct {
	Handler any
	Err     error
	// Stack заполняется, если ошибка получена из паники.
	Stack []byte
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("ошибка выполнения обработчика %s: %v", HandlerName(e.Handler), e.Err)
}

func (e *HandlerExecutionError) Unwrap() error {
	return e.Err
}

// Panicked сообщает, что ошибка получена из паники.
func (e *HandlerExecutionError) Panicked() bool {
	return e.Stack != nil
}

// UnresolvedError означает, что ни один разрешатель исключений не обработал ошибку.
type UnresolvedError struct {
	Handler any
	Err     error
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("ошибка не обработана ни одним разрешателем: %v", e.Err)
}

func (e *UnresolvedError) Unwrap() error {
	return e.Err
}

// DoubleFaultError означает, что разрешатель исключений сам завершился ошибкой.
type DoubleFaultError struct {
	Resolver    ExceptionResolver
	Err         error
	ResolverErr error
}

func (e *DoubleFaultError) Error() string {
	return fmt.Sprintf("разрешатель исключений %T завершился ошибкой %v при обработке %v", e.Resolver, e.ResolverErr, e.Err)
}

func (e *DoubleFaultError) Unwrap() []error {
	return []error{e.Err, e.ResolverErr}
}

// ViewResolutionError — ошибка разрешения или отрисовки представления.
type ViewResolutionError struct {
	ViewName string
	Err      error
}

func (e *ViewResolutionError) Error() string {
	if e.ViewName != "" {
		return fmt.Sprintf("ошибка представления '%s': %v", e.ViewName, e.Err)
	}
	return fmt.Sprintf("ошибка представления: %v", e.Err)
}

func (e *ViewResolutionError) Unwrap() error {
	return e.Err
}

// MultipartError — ошибка разбора multipart-запроса.
type MultipartError struct {
	Err error
}

func (e *MultipartError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMultipart, e.Err)
}

// Is позволяет сопоставлять ошибку с ErrMultipart.
func (e *MultipartError) Is(target error) bool {
	return target == ErrMultipart
}

func (e *MultipartError) Unwrap() error {
	return e.Err
}

// StatusCode возвращает HTTP-статус ошибки.
func (e *MultipartError) StatusCode() int {
	return http.StatusBadRequest
}

// SuppressedError сохраняет первичную ошибку и вторичные ошибки, возникшие
// в обратных вызовах AfterCompletion. errors.Is и errors.As видят только первичную ошибку.
type SuppressedError struct {
	Err        error
	Suppressed error
}

func (e *SuppressedError) Error() string {
	return fmt.Sprintf("%v (подавлено ошибок: %d)", e.Err, len(multierr.Errors(e.Suppressed)))
}

func (e *SuppressedError) Unwrap() error {
	return e.Err
}

// SuppressedErrors возвращает подавленные ошибки по отдельности.
func (e *SuppressedError) SuppressedErrors() []error {
	return multierr.Errors(e.Suppressed)
}

// withSuppressed присоединяет подавленные ошибки к первичной, не заменяя ее.
func withSuppressed(err, suppressed error) error {
	if suppressed == nil {
		return err
	}
	var se *SuppressedError
	if errors.As(err, &se) {
		se.Suppressed = multierr.Append(se.Suppressed, suppressed)
		return err
	}
	return &SuppressedError{Err: err, Suppressed: suppressed}
}

// ModelAndViewDefiningError — ошибка, которая сама определяет результат для отрисовки.
type ModelAndViewDefiningError struct {
	MV *ModelAndView
}

func (e *ModelAndViewDefiningError) Error() string {
	return fmt.Sprintf("ошибка определяет результат: %v", e.MV)
}

// ModelAndView реализует ModelAndViewDefiner.
func (e *ModelAndViewDefiningError) ModelAndView() *ModelAndView {
	return e.MV
}
