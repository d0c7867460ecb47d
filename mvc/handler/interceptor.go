package handler

import (
	"context"
	"path"
	"strings"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// InterceptorFuncs собирает перехватчик из отдельных функций. Незаданные
// функции ничего не делают.
type InterceptorFuncs struct {
	Pre   func(ctx context.Context, req *mvc.Request, handler any) (bool, error)
	Post  func(ctx context.Context, req *mvc.Request, handler any, mv *mvc.ModelAndView) error
	After func(ctx context.Context, req *mvc.Request, handler any, err error) error
}

var _ mvc.Interceptor = InterceptorFuncs{}

// PreHandle вызывает Pre.
func (f InterceptorFuncs) PreHandle(ctx context.Context, req *mvc.Request, handler any) (bool, error) {
	if f.Pre == nil {
		return true, nil
	}
	return f.Pre(ctx, req, handler)
}

// PostHandle вызывает Post.
func (f InterceptorFuncs) PostHandle(ctx context.Context, req *mvc.Request, handler any, mv *mvc.ModelAndView) error {
	if f.Post == nil {
		return nil
	}
	return f.Post(ctx, req, handler, mv)
}

// AfterCompletion вызывает After.
func (f InterceptorFuncs) AfterCompletion(ctx context.Context, req *mvc.Request, handler any, err error) error {
	if f.After == nil {
		return nil
	}
	return f.After(ctx, req, handler, err)
}

// MappedInterceptor применяет перехватчик только к путям, подходящим под
// шаблоны Include и не подходящим под Exclude. Шаблоны — в синтаксисе
// path.Match; суффикс "/**" соответствует любому вложенному пути.
type MappedInterceptor struct {
	Include []string
	Exclude []string
	mvc.Interceptor
}

// NewMappedInterceptor создает перехватчик, применяемый к путям include.
func NewMappedInterceptor(ic mvc.Interceptor, include ...string) *MappedInterceptor {
	return &MappedInterceptor{Include: include, Interceptor: ic}
}

// Excluding добавляет шаблоны исключений.
func (m *MappedInterceptor) Excluding(patterns ...string) *MappedInterceptor {
	m.Exclude = append(m.Exclude, patterns...)
	return m
}

// Matches сообщает, применяется ли перехватчик к пути.
func (m *MappedInterceptor) Matches(p string) bool {
	for _, pattern := range m.Exclude {
		if matchPath(pattern, p) {
			return false
		}
	}
	if len(m.Include) == 0 {
		return true
	}
	for _, pattern := range m.Include {
		if matchPath(pattern, p) {
			return true
		}
	}
	return false
}

func matchPath(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	ok, err := path.Match(pattern, p)
	return err == nil && ok
}
