// Package handler содержит встроенные маршрутизаторы, адаптеры и перехватчики.
package handler

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// RouterOption настраивает маршрутизатор.
type RouterOption func(*routerConfig)

type routerConfig struct {
	order          int
	defaultHandler any
	interceptors   []mvc.Interceptor
}

func newRouterConfig(opts []RouterOption) routerConfig {
	cfg := routerConfig{order: mvc.LowestPrecedence}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithOrder задает приоритет маршрутизатора.
func WithOrder(order int) RouterOption {
	return func(c *routerConfig) {
		c.order = order
	}
}

// WithDefaultHandler задает обработчик, возвращаемый при отсутствии совпадений.
func WithDefaultHandler(h any) RouterOption {
	return func(c *routerConfig) {
		c.defaultHandler = h
	}
}

// WithInterceptors добавляет перехватчики ко всем цепочкам маршрутизатора.
// MappedInterceptor добавляется только к запросам с подходящим путем.
func WithInterceptors(ics ...mvc.Interceptor) RouterOption {
	return func(c *routerConfig) {
		c.interceptors = append(c.interceptors, ics...)
	}
}

// chain строит цепочку выполнения с перехватчиками, применимыми к пути.
func (c *routerConfig) chain(handler any, path string) *mvc.HandlerExecutionChain {
	ics := make([]mvc.Interceptor, 0, len(c.interceptors))
	for _, ic := range c.interceptors {
		if m, ok := ic.(*MappedInterceptor); ok {
			if m.Matches(path) {
				ics = append(ics, m.Interceptor)
			}
			continue
		}
		ics = append(ics, ic)
	}
	return mvc.NewHandlerExecutionChain(handler, ics...)
}

type routeKey struct {
	method string
	path   string
}

// PathRouter сопоставляет запрос по точному пути и, необязательно, методу.
type PathRouter struct {
	cfg    routerConfig
	mu     sync.RWMutex
	routes map[routeKey]any
}

var _ mvc.Router = (*PathRouter)(nil)

// NewPathRouter создает маршрутизатор точных путей.
func NewPathRouter(opts ...RouterOption) *PathRouter {
	return &PathRouter{
		cfg:    newRouterConfig(opts),
		routes: make(map[routeKey]any),
	}
}

// Handle регистрирует обработчик для пути. Пустой method соответствует любому методу.
func (r *PathRouter) Handle(method, path string, handler any) error {
	if handler == nil {
		return fmt.Errorf("обработчик для пути '%s' не может быть nil", path)
	}
	key := routeKey{method: method, path: path}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[key]; exists {
		return fmt.Errorf("обработчик для %s '%s' уже зарегистрирован", methodLabel(method), path)
	}
	r.routes[key] = handler
	return nil
}

// MustHandle регистрирует обработчик и паникует при ошибке.
func (r *PathRouter) MustHandle(method, path string, handler any) *PathRouter {
	if err := r.Handle(method, path, handler); err != nil {
		panic(err)
	}
	return r
}

// Handler возвращает цепочку для точного совпадения пути, обработчик по
// умолчанию или nil.
func (r *PathRouter) Handler(_ context.Context, req *mvc.Request) (*mvc.HandlerExecutionChain, error) {
	path := req.Path()

	r.mu.RLock()
	h, ok := r.routes[routeKey{method: req.Method(), path: path}]
	if !ok {
		h, ok = r.routes[routeKey{path: path}]
	}
	r.mu.RUnlock()

	if !ok {
		if r.cfg.defaultHandler == nil {
			return nil, nil
		}
		h = r.cfg.defaultHandler
	}
	return r.cfg.chain(h, path), nil
}

// Order возвращает приоритет маршрутизатора.
func (r *PathRouter) Order() int {
	return r.cfg.order
}

func methodLabel(method string) string {
	if method == "" {
		return "ANY"
	}
	return method
}

// RouteInfo описывает зарегистрированный маршрут для диагностики.
type RouteInfo struct {
	Method  string
	Path    string
	Handler string
}

// Routes возвращает зарегистрированные маршруты.
func (r *PathRouter) Routes() []RouteInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RouteInfo, 0, len(r.routes))
	for k, h := range r.routes {
		out = append(out, RouteInfo{Method: methodLabel(k.method), Path: k.path, Handler: mvc.HandlerName(h)})
	}
	slices.SortFunc(out, func(a, b RouteInfo) int {
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Method, b.Method))
	})
	return out
}

// StatusHandler — простой обработчик, отвечающий фиксированным статусом.
// Удобен как обработчик по умолчанию.
type StatusHandler int

// ServeHTTP отвечает статусом.
func (s StatusHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(int(s)), int(s))
}
