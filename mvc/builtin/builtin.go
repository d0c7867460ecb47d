// Package builtin связывает встроенные стратегии с ядром: содержит таблицу
// стратегий по умолчанию и конструкторы для всех встроенных имен типов.
package builtin

import (
	_ "embed"
	"fmt"
	"io/fs"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/x-research-team/dtx-webmvc/mvc"
	"github.com/x-research-team/dtx-webmvc/mvc/flash"
	"github.com/x-research-team/dtx-webmvc/mvc/handler"
	"github.com/x-research-team/dtx-webmvc/mvc/locale"
	"github.com/x-research-team/dtx-webmvc/mvc/multipart"
	"github.com/x-research-team/dtx-webmvc/mvc/resolver"
	"github.com/x-research-team/dtx-webmvc/mvc/view"
)

// Имена бинов, которые используют встроенные конструкторы.
const (
	// FlashStorageBean — бин flash.Storage для flash.Store. Без него используется память процесса.
	FlashStorageBean = "flashStorage"
	// TemplateFSBean — бин fs.FS с шаблонами для view.TemplateResolver.
	TemplateFSBean = "templateFS"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	defaultsOnce sync.Once
	defaults     mvc.DefaultStrategies
	defaultsErr  error
)

// Defaults возвращает встроенную таблицу стратегий по умолчанию.
// Таблица читается один раз.
func Defaults() (mvc.DefaultStrategies, error) {
	defaultsOnce.Do(func() {
		defaults, defaultsErr = ParseDefaults(defaultsYAML)
	})
	return defaults, defaultsErr
}

// ParseDefaults разбирает таблицу стратегий по умолчанию в формате YAML.
func ParseDefaults(data []byte) (mvc.DefaultStrategies, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return mvc.DefaultStrategies{}, fmt.Errorf("не удалось разобрать таблицу стратегий по умолчанию: %w", err)
	}
	return TableFromNames(raw)
}

// TableFromNames строит таблицу по именам видов стратегий.
func TableFromNames(raw map[string][]string) (mvc.DefaultStrategies, error) {
	table := make(map[mvc.Capability][]string, len(raw))
	for name, types := range raw {
		c, err := mvc.ParseCapability(name)
		if err != nil {
			return mvc.DefaultStrategies{}, err
		}
		table[c] = types
	}
	return mvc.NewDefaultStrategies(table), nil
}

// Constructors возвращает конструкторы всех встроенных типов.
func Constructors() map[string]mvc.Constructor {
	return map[string]mvc.Constructor{
		"handler.BeanNameRouter": func(src mvc.BeanSource) (any, error) {
			return handler.NewBeanNameRouter(src), nil
		},
		"handler.PathRouter": func(mvc.BeanSource) (any, error) {
			return handler.NewPathRouter(), nil
		},
		"handler.PatternRouter": func(mvc.BeanSource) (any, error) {
			return handler.NewPatternRouter(), nil
		},
		"handler.HTTPHandlerAdapter": func(mvc.BeanSource) (any, error) {
			return handler.NewHTTPHandlerAdapter(), nil
		},
		"handler.ControllerAdapter": func(mvc.BeanSource) (any, error) {
			return handler.NewControllerAdapter(), nil
		},
		"handler.FuncAdapter": func(mvc.BeanSource) (any, error) {
			return handler.NewFuncAdapter(), nil
		},
		"handler.ReflectAdapter": func(mvc.BeanSource) (any, error) {
			return handler.NewReflectAdapter(), nil
		},
		"resolver.HandlerErrorResolver": func(mvc.BeanSource) (any, error) {
			return resolver.NewHandlerErrorResolver(), nil
		},
		"resolver.StatusErrorResolver": func(mvc.BeanSource) (any, error) {
			return resolver.NewStatusErrorResolver(), nil
		},
		"resolver.DefaultErrorResolver": func(mvc.BeanSource) (any, error) {
			return resolver.NewDefaultErrorResolver(), nil
		},
		"view.BeanNameResolver": func(src mvc.BeanSource) (any, error) {
			return view.NewBeanNameResolver(src), nil
		},
		"view.TemplateResolver": func(src mvc.BeanSource) (any, error) {
			bean, ok := src.Bean(TemplateFSBean)
			if !ok {
				return nil, fmt.Errorf("бин '%s' с шаблонами не зарегистрирован", TemplateFSBean)
			}
			fsys, ok := bean.(fs.FS)
			if !ok {
				return nil, fmt.Errorf("бин '%s' типа %T не реализует fs.FS", TemplateFSBean, bean)
			}
			return view.NewTemplateResolver(fsys, "", ".html"), nil
		},
		"view.DefaultViewNameTranslator": func(mvc.BeanSource) (any, error) {
			return &view.DefaultViewNameTranslator{}, nil
		},
		"locale.AcceptHeaderResolver": func(mvc.BeanSource) (any, error) {
			return locale.NewAcceptHeaderResolver(), nil
		},
		"flash.Store": func(src mvc.BeanSource) (any, error) {
			if bean, ok := src.Bean(FlashStorageBean); ok {
				storage, ok := bean.(flash.Storage)
				if !ok {
					return nil, fmt.Errorf("бин '%s' типа %T не реализует flash.Storage", FlashStorageBean, bean)
				}
				return flash.NewStore(storage), nil
			}
			return flash.NewStore(flash.NewMemoryStorage()), nil
		},
		"multipart.Resolver": func(mvc.BeanSource) (any, error) {
			return multipart.NewResolver(), nil
		},
	}
}

// Register регистрирует конструкторы всех встроенных типов.
func Register(b *mvc.Beans) error {
	for name, ctor := range Constructors() {
		if err := b.RegisterType(name, ctor); err != nil {
			return err
		}
	}
	return nil
}

// NewBeans создает источник зависимостей с зарегистрированными встроенными типами.
func NewBeans() (*mvc.Beans, error) {
	b := mvc.NewBeans()
	if err := Register(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewDispatcher создает диспетчер со встроенной таблицей стратегий по умолчанию.
// source должен уметь создавать встроенные типы, например источник из NewBeans.
// Опции применяются после таблицы по умолчанию и могут ее заменить.
func NewDispatcher(source mvc.BeanSource, opts ...mvc.Option) (mvc.IDispatcher, error) {
	table, err := Defaults()
	if err != nil {
		return nil, err
	}
	return mvc.NewDispatcher(source, append([]mvc.Option{mvc.WithDefaultStrategies(table)}, opts...)...)
}
