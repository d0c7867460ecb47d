package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// Controller — обработчик, получающий контекст запроса и возвращающий результат.
type Controller interface {
	HandleRequest(ctx context.Context, req *mvc.Request) (*mvc.ModelAndView, error)
}

// LastModifiedProvider реализуется обработчиками, знающими время изменения ресурса.
type LastModifiedProvider interface {
	LastModified(req *mvc.Request) (time.Time, bool)
}

// HandlerFunc — функция-обработчик с сигнатурой Controller.
type HandlerFunc func(ctx context.Context, req *mvc.Request) (*mvc.ModelAndView, error)

// HandleRequest вызывает функцию.
func (f HandlerFunc) HandleRequest(ctx context.Context, req *mvc.Request) (*mvc.ModelAndView, error) {
	return f(ctx, req)
}

type adapterConfig struct {
	order int
}

// AdapterOption настраивает адаптер.
type AdapterOption func(*adapterConfig)

// WithAdapterOrder задает приоритет адаптера.
func WithAdapterOrder(order int) AdapterOption {
	return func(c *adapterConfig) {
		c.order = order
	}
}

func newAdapterConfig(opts []AdapterOption) adapterConfig {
	cfg := adapterConfig{order: mvc.LowestPrecedence}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c adapterConfig) Order() int {
	return c.order
}

func lastModified(req *mvc.Request, handler any) (time.Time, bool) {
	if lm, ok := handler.(LastModifiedProvider); ok {
		return lm.LastModified(req)
	}
	return time.Time{}, false
}

// HTTPHandlerAdapter вызывает обработчики http.Handler. Ответ всегда
// формируется самим обработчиком.
type HTTPHandlerAdapter struct {
	adapterConfig
}

var _ mvc.Adapter = (*HTTPHandlerAdapter)(nil)

// NewHTTPHandlerAdapter создает адаптер для http.Handler.
func NewHTTPHandlerAdapter(opts ...AdapterOption) *HTTPHandlerAdapter {
	return &HTTPHandlerAdapter{adapterConfig: newAdapterConfig(opts)}
}

// Supports сообщает, что обработчик реализует http.Handler.
func (a *HTTPHandlerAdapter) Supports(handler any) bool {
	_, ok := handler.(http.Handler)
	return ok
}

// Handle вызывает ServeHTTP и возвращает nil: отрисовка не требуется.
func (a *HTTPHandlerAdapter) Handle(ctx context.Context, req *mvc.Request, handler any) (*mvc.ModelAndView, error) {
	handler.(http.Handler).ServeHTTP(req.Response, req.HTTP.WithContext(ctx))
	return nil, nil
}

// LastModified возвращает время изменения, если обработчик его сообщает.
func (a *HTTPHandlerAdapter) LastModified(req *mvc.Request, handler any) (time.Time, bool) {
	return lastModified(req, handler)
}

// ControllerAdapter вызывает обработчики Controller, включая HandlerFunc.
type ControllerAdapter struct {
	adapterConfig
}

var _ mvc.Adapter = (*ControllerAdapter)(nil)

// NewControllerAdapter создает адаптер для Controller.
func NewControllerAdapter(opts ...AdapterOption) *ControllerAdapter {
	return &ControllerAdapter{adapterConfig: newAdapterConfig(opts)}
}

// Supports сообщает, что обработчик реализует Controller.
func (a *ControllerAdapter) Supports(handler any) bool {
	_, ok := handler.(Controller)
	return ok
}

// Handle вызывает HandleRequest.
func (a *ControllerAdapter) Handle(ctx context.Context, req *mvc.Request, handler any) (*mvc.ModelAndView, error) {
	return handler.(Controller).HandleRequest(ctx, req)
}

// LastModified возвращает время изменения, если обработчик его сообщает.
func (a *ControllerAdapter) LastModified(req *mvc.Request, handler any) (time.Time, bool) {
	return lastModified(req, handler)
}

// FuncAdapter вызывает обычные функции с сигнатурой HandlerFunc, не приведенные к типу.
type FuncAdapter struct {
	adapterConfig
}

var _ mvc.Adapter = (*FuncAdapter)(nil)

// NewFuncAdapter создает адаптер для функций.
func NewFuncAdapter(opts ...AdapterOption) *FuncAdapter {
	return &FuncAdapter{adapterConfig: newAdapterConfig(opts)}
}

// Supports сообщает, что обработчик — функция с сигнатурой HandlerFunc
// или http.HandlerFunc.
func (a *FuncAdapter) Supports(handler any) bool {
	switch handler.(type) {
	case func(context.Context, *mvc.Request) (*mvc.ModelAndView, error),
		func(http.ResponseWriter, *http.Request):
		return true
	}
	return false
}

// Handle вызывает функцию.
func (a *FuncAdapter) Handle(ctx context.Context, req *mvc.Request, handler any) (*mvc.ModelAndView, error) {
	switch fn := handler.(type) {
	case func(context.Context, *mvc.Request) (*mvc.ModelAndView, error):
		return fn(ctx, req)
	case func(http.ResponseWriter, *http.Request):
		fn(req.Response, req.HTTP.WithContext(ctx))
	}
	return nil, nil
}

// LastModified для функций неизвестно.
func (a *FuncAdapter) LastModified(*mvc.Request, any) (time.Time, bool) {
	return time.Time{}, false
}
