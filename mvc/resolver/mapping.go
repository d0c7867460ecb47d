package resolver

import (
	"context"
	"errors"
	"net/http"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// DefaultExceptionModelKey — ключ модели, под которым представлению передается ошибка.
const DefaultExceptionModelKey = "exception"

type mapping struct {
	match  func(error) bool
	view   string
	status int
}

// MappingErrorResolver сопоставляет ошибки с представлениями ошибок.
// Сопоставления проверяются в порядке добавления.
type MappingErrorResolver struct {
	base
	mappings      []mapping
	defaultView   string
	defaultStatus int
	modelKey      string
}

var _ mvc.ExceptionResolver = (*MappingErrorResolver)(nil)

// NewMappingErrorResolver создает разрешатель с представлением по умолчанию
// defaultView. Пустое defaultView означает, что несопоставленные ошибки не обрабатываются.
func NewMappingErrorResolver(defaultView string, opts ...Option) *MappingErrorResolver {
	return &MappingErrorResolver{
		base:          newBase(mvc.LowestPrecedence, opts),
		defaultView:   defaultView,
		defaultStatus: http.StatusInternalServerError,
		modelKey:      DefaultExceptionModelKey,
	}
}

// Map сопоставляет ошибки, для которых errors.Is(err, target), с представлением и статусом.
func (r *MappingErrorResolver) Map(target error, view string, status int) *MappingErrorResolver {
	return r.MapFunc(func(err error) bool { return errors.Is(err, target) }, view, status)
}

// MapFunc сопоставляет ошибки, удовлетворяющие match, с представлением и статусом.
func (r *MappingErrorResolver) MapFunc(match func(error) bool, view string, status int) *MappingErrorResolver {
	r.mappings = append(r.mappings, mapping{match: match, view: view, status: status})
	return r
}

// WithDefaultStatus задает статус для представления по умолчанию.
func (r *MappingErrorResolver) WithDefaultStatus(status int) *MappingErrorResolver {
	r.defaultStatus = status
	return r
}

// WithModelKey задает ключ модели для ошибки. Пустой ключ отключает передачу ошибки.
func (r *MappingErrorResolver) WithModelKey(key string) *MappingErrorResolver {
	r.modelKey = key
	return r
}

// ResolveException возвращает представление ошибки или nil, если сопоставления нет.
func (r *MappingErrorResolver) ResolveException(_ context.Context, _ *mvc.Request, handler any, err error) (*mvc.ModelAndView, error) {
	if !r.applies(handler) {
		return nil, nil
	}

	view, status := r.defaultView, r.defaultStatus
	for _, m := range r.mappings {
		if m.match(err) {
			view, status = m.view, m.status
			break
		}
	}
	if view == "" {
		return nil, nil
	}

	mv := mvc.NewModelAndView(view).SetStatus(status)
	if r.modelKey != "" {
		mv.AddObject(r.modelKey, err)
	}
	return mv, nil
}
