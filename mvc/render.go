package mvc

import (
	"context"
	"fmt"

	"golang.org/x/text/language"
)

// render отрисовывает результат: определяет локаль, применяет статус,
// разрешает представление по имени либо использует готовое представление.
func (e *engine) render(ctx context.Context, st *strategies, mv *ModelAndView, req *Request) error {
	locale := language.Und
	if st.locale != nil {
		locale = st.locale.ResolveLocale(req)
	}
	if locale != language.Und && req.Response.Header().Get("Content-Language") == "" {
		req.Response.Header().Set("Content-Language", locale.String())
	}
	if status := mv.Status(); status != 0 {
		req.Response.SetStatus(status)
	}

	var view View
	switch {
	case mv.IsReference():
		v, err := resolveViewName(ctx, st, mv.ViewName(), locale)
		if err != nil {
			return err
		}
		view = v
	case mv.View() != nil:
		view = mv.View()
	default:
		return &ViewResolutionError{Err: ErrInvalidModelAndView}
	}

	if err := renderView(ctx, view, mv.Model(), req); err != nil {
		return &ViewResolutionError{ViewName: mv.ViewName(), Err: err}
	}
	return nil
}

// resolveViewName опрашивает разрешатели представлений в порядке приоритета.
func resolveViewName(ctx context.Context, st *strategies, name string, locale language.Tag) (View, error) {
	for r := range st.viewResolvers.All() {
		v, err := r.ResolveViewName(ctx, name, locale)
		if err != nil {
			return nil, &ViewResolutionError{ViewName: name, Err: err}
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, &ViewResolutionError{ViewName: name, Err: ErrViewNotResolvable}
}

func renderView(ctx context.Context, view View, model *Model, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника при отрисовке представления %T: %v", view, r)
		}
	}()
	return view.Render(ctx, model, req)
}
