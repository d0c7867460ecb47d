package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/mux"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// PathVariables — значения переменных шаблона пути.
type PathVariables map[string]string

// PathVariablesOf возвращает переменные пути, выставленные PatternRouter.
func PathVariablesOf(req *mvc.Request) PathVariables {
	vars, _ := req.Attributes().Get(mvc.PathVariablesAttribute).(PathVariables)
	return vars
}

// PatternRouter сопоставляет запрос по шаблонам пути gorilla/mux, например
// "/users/{id:[0-9]+}". Маршруты проверяются в порядке регистрации.
type PatternRouter struct {
	cfg      routerConfig
	mu       sync.RWMutex
	router   *mux.Router
	handlers map[*mux.Route]any
}

var _ mvc.Router = (*PatternRouter)(nil)

// NewPatternRouter создает маршрутизатор шаблонов пути.
func NewPatternRouter(opts ...RouterOption) *PatternRouter {
	return &PatternRouter{
		cfg:      newRouterConfig(opts),
		router:   mux.NewRouter(),
		handlers: make(map[*mux.Route]any),
	}
}

// Handle регистрирует обработчик для шаблона пути. Пустой набор методов
// соответствует любому методу.
func (r *PatternRouter) Handle(template string, handler any, methods ...string) error {
	if handler == nil {
		return fmt.Errorf("обработчик для шаблона '%s' не может быть nil", template)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	route := r.router.NewRoute().Path(template)
	if len(methods) > 0 {
		route = route.Methods(methods...)
	}
	if err := route.GetError(); err != nil {
		return fmt.Errorf("некорректный шаблон пути '%s': %w", template, err)
	}
	r.handlers[route] = handler
	return nil
}

// MustHandle регистрирует обработчик и паникует при ошибке.
func (r *PatternRouter) MustHandle(template string, handler any, methods ...string) *PatternRouter {
	if err := r.Handle(template, handler, methods...); err != nil {
		panic(err)
	}
	return r
}

// Handler возвращает цепочку для первого подходящего шаблона. Переменные пути
// сохраняются в атрибуте mvc.PathVariablesAttribute.
func (r *PatternRouter) Handler(_ context.Context, req *mvc.Request) (*mvc.HandlerExecutionChain, error) {
	var match mux.RouteMatch

	r.mu.RLock()
	matched := r.router.Match(req.HTTP, &match)
	var h any
	if matched && match.MatchErr == nil {
		h = r.handlers[match.Route]
	}
	r.mu.RUnlock()

	if h == nil {
		if r.cfg.defaultHandler == nil {
			return nil, nil
		}
		return r.cfg.chain(r.cfg.defaultHandler, req.Path()), nil
	}

	vars := make(PathVariables, len(match.Vars))
	for k, v := range match.Vars {
		vars[k] = v
	}
	req.Attributes().Set(mvc.PathVariablesAttribute, vars)
	return r.cfg.chain(h, req.Path()), nil
}

// Order возвращает приоритет маршрутизатора.
func (r *PatternRouter) Order() int {
	return r.cfg.order
}
