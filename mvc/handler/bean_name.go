package handler

import (
	"context"
	"strings"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// BeanNameRouter сопоставляет путь запроса с бином, имя которого совпадает
// с путем, например бин "/health". Бины с именами без ведущего "/" игнорируются.
type BeanNameRouter struct {
	cfg    routerConfig
	source mvc.BeanSource
}

var _ mvc.Router = (*BeanNameRouter)(nil)

// NewBeanNameRouter создает маршрутизатор по именам бинов.
func NewBeanNameRouter(source mvc.BeanSource, opts ...RouterOption) *BeanNameRouter {
	return &BeanNameRouter{cfg: newRouterConfig(opts), source: source}
}

// Handler возвращает цепочку для бина с именем, равным пути запроса.
func (r *BeanNameRouter) Handler(_ context.Context, req *mvc.Request) (*mvc.HandlerExecutionChain, error) {
	path := req.Path()
	if !strings.HasPrefix(path, "/") {
		return nil, nil
	}
	bean, ok := r.source.Bean(path)
	if !ok {
		if r.cfg.defaultHandler == nil {
			return nil, nil
		}
		bean = r.cfg.defaultHandler
	}
	return r.cfg.chain(bean, path), nil
}

// Order возвращает приоритет маршрутизатора.
func (r *BeanNameRouter) Order() int {
	return r.cfg.order
}
