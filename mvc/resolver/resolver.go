// Package resolver содержит встроенные разрешатели исключений.
package resolver

import (
	"context"
	"errors"
	"net/http"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// Option настраивает разрешатель.
type Option func(*base)

type base struct {
	order int
	// handlers ограничивает разрешатель указанными обработчиками, если список не пуст.
	handlers []any
}

func newBase(order int, opts []Option) base {
	b := base{order: order}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// WithOrder задает приоритет разрешателя.
func WithOrder(order int) Option {
	return func(b *base) {
		b.order = order
	}
}

// ForHandlers ограничивает разрешатель ошибками указанных обработчиков.
func ForHandlers(handlers ...any) Option {
	return func(b *base) {
		b.handlers = append(b.handlers, handlers...)
	}
}

// Order возвращает приоритет разрешателя.
func (b base) Order() int {
	return b.order
}

func (b base) applies(handler any) bool {
	if len(b.handlers) == 0 {
		return true
	}
	for _, h := range b.handlers {
		if sameHandler(h, handler) {
			return true
		}
	}
	return false
}

func sameHandler(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// handled возвращает пустой результат: ответ сформирован, отрисовка не нужна.
func handled() *mvc.ModelAndView {
	return &mvc.ModelAndView{}
}

// ErrorHandler реализуется обработчиками, которые сами обрабатывают свои ошибки.
type ErrorHandler interface {
	HandleError(ctx context.Context, req *mvc.Request, err error) (*mvc.ModelAndView, error)
}

// HandlerErrorResolver передает ошибку обработчику, если он реализует ErrorHandler.
type HandlerErrorResolver struct {
	base
}

var _ mvc.ExceptionResolver = (*HandlerErrorResolver)(nil)

// NewHandlerErrorResolver создает разрешатель, делегирующий обработчику.
func NewHandlerErrorResolver(opts ...Option) *HandlerErrorResolver {
	return &HandlerErrorResolver{base: newBase(0, opts)}
}

// ResolveException вызывает HandleError обработчика.
func (r *HandlerErrorResolver) ResolveException(ctx context.Context, req *mvc.Request, handler any, err error) (*mvc.ModelAndView, error) {
	eh, ok := handler.(ErrorHandler)
	if !ok || !r.applies(handler) {
		return nil, nil
	}
	return eh.HandleError(ctx, req, err)
}

// StatusErrorResolver отвечает кодом статуса для ошибок, реализующих StatusCode() int.
type StatusErrorResolver struct {
	base
}

var _ mvc.ExceptionResolver = (*StatusErrorResolver)(nil)

// NewStatusErrorResolver создает разрешатель ошибок с кодом статуса.
func NewStatusErrorResolver(opts ...Option) *StatusErrorResolver {
	return &StatusErrorResolver{base: newBase(1, opts)}
}

// ResolveException отправляет статус ошибки.
func (r *StatusErrorResolver) ResolveException(_ context.Context, req *mvc.Request, handler any, err error) (*mvc.ModelAndView, error) {
	if !r.applies(handler) {
		return nil, nil
	}
	var sc interface{ StatusCode() int }
	if !errors.As(err, &sc) {
		return nil, nil
	}
	req.Response.SendError(sc.StatusCode(), "")
	return handled(), nil
}

// DefaultErrorResolver отвечает стандартными кодами на ошибки самого конвейера.
type DefaultErrorResolver struct {
	base
}

var _ mvc.ExceptionResolver = (*DefaultErrorResolver)(nil)

// NewDefaultErrorResolver создает разрешатель стандартных ошибок.
func NewDefaultErrorResolver(opts ...Option) *DefaultErrorResolver {
	return &DefaultErrorResolver{base: newBase(2, opts)}
}

// ResolveException сопоставляет известные ошибки с кодами статуса.
func (r *DefaultErrorResolver) ResolveException(_ context.Context, req *mvc.Request, handler any, err error) (*mvc.ModelAndView, error) {
	if !r.applies(handler) {
		return nil, nil
	}
	status := defaultStatus(err)
	if status == 0 {
		return nil, nil
	}
	req.Response.SendError(status, "")
	return handled(), nil
}

func defaultStatus(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, mvc.ErrRouteNotFound):
		return http.StatusNotFound
	case errors.Is(err, mvc.ErrMultipart):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return 0
}
