package view

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// RedirectPrefix — префикс имени представления, означающий перенаправление.
const RedirectPrefix = "redirect:"

// TemplateResolver разрешает имена представлений в шаблоны html/template из
// файловой системы. Для локали сначала ищется файл "<name>_<lang>", затем "<name>".
// Разрешенные представления кешируются по имени и локали.
type TemplateResolver struct {
	FS     fs.FS
	Prefix string
	Suffix string
	Funcs  template.FuncMap
	order  int

	mu    sync.RWMutex
	cache map[cacheKey]mvc.View
}

type cacheKey struct {
	name   string
	locale string
}

var _ mvc.ViewResolver = (*TemplateResolver)(nil)

// NewTemplateResolver создает разрешатель шаблонов.
func NewTemplateResolver(fsys fs.FS, prefix, suffix string) *TemplateResolver {
	return &TemplateResolver{
		FS:     fsys,
		Prefix: prefix,
		Suffix: suffix,
		order:  mvc.LowestPrecedence,
		cache:  make(map[cacheKey]mvc.View),
	}
}

// WithOrder задает приоритет разрешателя.
func (r *TemplateResolver) WithOrder(order int) *TemplateResolver {
	r.order = order
	return r
}

// Order возвращает приоритет разрешателя.
func (r *TemplateResolver) Order() int {
	return r.order
}

// ResolveViewName возвращает RedirectView для имен с префиксом "redirect:",
// шаблон для существующего файла или nil.
func (r *TemplateResolver) ResolveViewName(_ context.Context, name string, locale language.Tag) (mvc.View, error) {
	if target, ok := strings.CutPrefix(name, RedirectPrefix); ok {
		return &RedirectView{URL: target}, nil
	}

	key := cacheKey{name: name, locale: locale.String()}
	r.mu.RLock()
	v, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := r.load(name, locale)
	if err != nil || v == nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = v
	r.mu.Unlock()
	return v, nil
}

func (r *TemplateResolver) load(name string, locale language.Tag) (mvc.View, error) {
	candidates := make([]string, 0, 2)
	if locale != language.Und {
		base, _ := locale.Base()
		candidates = append(candidates, r.Prefix+name+"_"+base.String()+r.Suffix)
	}
	candidates = append(candidates, r.Prefix+name+r.Suffix)

	for _, file := range candidates {
		content, err := fs.ReadFile(r.FS, file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать шаблон '%s': %w", file, err)
		}
		tmpl, err := template.New(name).Funcs(r.Funcs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("не удалось разобрать шаблон '%s': %w", file, err)
		}
		return &TemplateView{Template: tmpl}, nil
	}
	return nil, nil
}

// ClearCache очищает кеш представлений.
func (r *TemplateResolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

// BeanNameResolver разрешает имя представления в бин-представление с тем же именем.
type BeanNameResolver struct {
	source mvc.BeanSource
	order  int
}

var _ mvc.ViewResolver = (*BeanNameResolver)(nil)

// NewBeanNameResolver создает разрешатель представлений по имени бина.
func NewBeanNameResolver(source mvc.BeanSource) *BeanNameResolver {
	return &BeanNameResolver{source: source, order: mvc.LowestPrecedence}
}

// WithOrder задает приоритет разрешателя.
func (r *BeanNameResolver) WithOrder(order int) *BeanNameResolver {
	r.order = order
	return r
}

// Order возвращает приоритет разрешателя.
func (r *BeanNameResolver) Order() int {
	return r.order
}

// ResolveViewName возвращает бин, если он реализует mvc.View.
func (r *BeanNameResolver) ResolveViewName(_ context.Context, name string, _ language.Tag) (mvc.View, error) {
	bean, ok := r.source.Bean(name)
	if !ok {
		return nil, nil
	}
	v, ok := bean.(mvc.View)
	if !ok {
		return nil, nil
	}
	return v, nil
}

// StaticResolver разрешает имена по фиксированной таблице представлений.
type StaticResolver struct {
	views map[string]mvc.View
	order int
}

var _ mvc.ViewResolver = (*StaticResolver)(nil)

// NewStaticResolver создает разрешатель по таблице, копируя ее.
func NewStaticResolver(views map[string]mvc.View) *StaticResolver {
	cp := make(map[string]mvc.View, len(views))
	for k, v := range views {
		cp[k] = v
	}
	return &StaticResolver{views: cp, order: mvc.LowestPrecedence}
}

// WithOrder задает приоритет разрешателя.
func (r *StaticResolver) WithOrder(order int) *StaticResolver {
	r.order = order
	return r
}

// Order возвращает приоритет разрешателя.
func (r *StaticResolver) Order() int {
	return r.order
}

// ResolveViewName возвращает представление из таблицы или nil.
func (r *StaticResolver) ResolveViewName(_ context.Context, name string, _ language.Tag) (mvc.View, error) {
	return r.views[name], nil
}
