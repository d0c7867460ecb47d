// Package locale определяет локаль запроса по заголовку Accept-Language.
package locale

import (
	"golang.org/x/text/language"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// AcceptHeaderResolver выбирает локаль из поддерживаемых по заголовку
// Accept-Language. Без заголовка или без совпадения возвращается локаль по умолчанию.
type AcceptHeaderResolver struct {
	supported []language.Tag
	matcher   language.Matcher
	fallback  language.Tag
}

var _ mvc.LocaleResolver = (*AcceptHeaderResolver)(nil)

// NewAcceptHeaderResolver создает разрешатель локали. Первая поддерживаемая
// локаль используется по умолчанию. Пустой список означает, что
// возвращается первая локаль из заголовка как есть.
func NewAcceptHeaderResolver(supported ...language.Tag) *AcceptHeaderResolver {
	r := &AcceptHeaderResolver{supported: supported, fallback: language.Und}
	if len(supported) > 0 {
		r.matcher = language.NewMatcher(supported)
		r.fallback = supported[0]
	}
	return r
}

// ResolveLocale возвращает локаль запроса.
func (r *AcceptHeaderResolver) ResolveLocale(req *mvc.Request) language.Tag {
	header := req.Header().Get("Accept-Language")
	if header == "" {
		return r.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return r.fallback
	}
	if r.matcher == nil {
		return tags[0]
	}
	_, index, confidence := r.matcher.Match(tags...)
	if confidence == language.No {
		return r.fallback
	}
	return r.supported[index]
}

// FixedResolver всегда возвращает одну и ту же локаль.
type FixedResolver struct {
	Tag language.Tag
}

var _ mvc.LocaleResolver = FixedResolver{}

// ResolveLocale возвращает фиксированную локаль.
func (r FixedResolver) ResolveLocale(*mvc.Request) language.Tag {
	return r.Tag
}
