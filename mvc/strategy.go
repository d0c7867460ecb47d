package mvc

import (
	"fmt"
	"iter"
	"math"
	"slices"
)

// LowestPrecedence — приоритет стратегии, не реализующей Ordered.
const LowestPrecedence = math.MaxInt32

// Capability — вид сменной стратегии диспетчера.
type Capability int

const (
	CapabilityRouter Capability = iota + 1
	CapabilityAdapter
	CapabilityExceptionResolver
	CapabilityViewResolver
	CapabilityLocaleResolver
	CapabilityViewNameTranslator
	CapabilityFlashMapStore
	CapabilityMultipartResolver
)

var capabilityNames = map[Capability]string{
	CapabilityRouter:             "router",
	CapabilityAdapter:            "adapter",
	CapabilityExceptionResolver:  "exception-resolver",
	CapabilityViewResolver:       "view-resolver",
	CapabilityLocaleResolver:     "locale-resolver",
	CapabilityViewNameTranslator: "view-name-translator",
	CapabilityFlashMapStore:      "flash-map-store",
	CapabilityMultipartResolver:  "multipart-resolver",
}

// Capabilities возвращает все виды стратегий в порядке инициализации.
func Capabilities() []Capability {
	return []Capability{
		CapabilityMultipartResolver,
		CapabilityLocaleResolver,
		CapabilityRouter,
		CapabilityAdapter,
		CapabilityExceptionResolver,
		CapabilityViewNameTranslator,
		CapabilityViewResolver,
		CapabilityFlashMapStore,
	}
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// ParseCapability возвращает вид стратегии по имени.
func ParseCapability(name string) (Capability, error) {
	for c, n := range capabilityNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("неизвестный вид стратегии '%s'", name)
}

// Accepts сообщает, реализует ли бин контракт данного вида стратегии.
func (c Capability) Accepts(bean any) bool {
	var ok bool
	switch c {
	case CapabilityRouter:
		_, ok = bean.(Router)
	case CapabilityAdapter:
		_, ok = bean.(Adapter)
	case CapabilityExceptionResolver:
		_, ok = bean.(ExceptionResolver)
	case CapabilityViewResolver:
		_, ok = bean.(ViewResolver)
	case CapabilityLocaleResolver:
		_, ok = bean.(LocaleResolver)
	case CapabilityViewNameTranslator:
		_, ok = bean.(ViewNameTranslator)
	case CapabilityFlashMapStore:
		_, ok = bean.(FlashMapStore)
	case CapabilityMultipartResolver:
		_, ok = bean.(MultipartResolver)
	}
	return ok
}

// singular сообщает, что слот стратегии содержит ровно один экземпляр.
func (c Capability) singular() bool {
	switch c {
	case CapabilityRouter, CapabilityAdapter, CapabilityExceptionResolver, CapabilityViewResolver:
		return false
	}
	return true
}

// OrderOf возвращает приоритет стратегии.
func OrderOf(strategy any) int {
	if o, ok := strategy.(Ordered); ok {
		return o.Order()
	}
	return LowestPrecedence
}

// StrategyList — неизменяемая последовательность стратегий, отсортированная
// по приоритету один раз при создании. Безопасна для одновременного чтения.
type StrategyList[T any] struct {
	items []T
}

// NewStrategyList копирует стратегии и устойчиво сортирует их по приоритету:
// при равных приоритетах сохраняется порядок регистрации.
func NewStrategyList[T any](items ...T) StrategyList[T] {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		oa, ob := OrderOf(a), OrderOf(b)
		switch {
		case oa < ob:
			return -1
		case oa > ob:
			return 1
		}
		return 0
	})
	return StrategyList[T]{items: sorted}
}

// Len возвращает количество стратегий.
func (l StrategyList[T]) Len() int {
	return len(l.items)
}

// At возвращает стратегию по индексу.
func (l StrategyList[T]) At(i int) T {
	return l.items[i]
}

// All возвращает итератор по стратегиям в порядке приоритета.
func (l StrategyList[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, s := range l.items {
			if !yield(s) {
				return
			}
		}
	}
}

// Slice возвращает копию стратегий.
func (l StrategyList[T]) Slice() []T {
	return slices.Clone(l.items)
}

// DefaultStrategies — неизменяемая таблица стратегий по умолчанию:
// вид стратегии → имена типов, создаваемых через BeanSource.Create.
type DefaultStrategies struct {
	table map[Capability][]string
}

// NewDefaultStrategies создает таблицу стратегий по умолчанию, копируя входные данные.
func NewDefaultStrategies(table map[Capability][]string) DefaultStrategies {
	cp := make(map[Capability][]string, len(table))
	for c, names := range table {
		cp[c] = slices.Clone(names)
	}
	return DefaultStrategies{table: cp}
}

// Names возвращает имена типов по умолчанию для вида стратегии.
func (d DefaultStrategies) Names(c Capability) []string {
	return slices.Clone(d.table[c])
}

// Origin описывает источник, из которого получены стратегии.
type Origin int

const (
	OriginNone Origin = iota
	OriginDetected
	OriginNamed
	OriginDefaults
)

func (o Origin) String() string {
	switch o {
	case OriginDetected:
		return "detected"
	case OriginNamed:
		return "named"
	case OriginDefaults:
		return "defaults"
	}
	return "none"
}

// StrategySpec описывает, как разрешать стратегии одного вида.
type StrategySpec struct {
	Capability Capability
	// DetectAll включает поиск всех бинов, реализующих контракт.
	DetectAll bool
	// BeanName — имя единственного бина, используемое при выключенном DetectAll.
	BeanName string
	// Optional разрешает пустой результат.
	Optional bool
}

// ResolveStrategies разрешает упорядоченный список стратегий вида spec.Capability:
// сначала явная конфигурация (все найденные бины либо бин с заданным именем),
// затем таблица стратегий по умолчанию. Пустой результат для обязательного вида
// и неверное количество экземпляров для одиночного слота — фатальные ошибки конфигурации.
func ResolveStrategies[T any](src BeanSource, defaults DefaultStrategies, spec StrategySpec) (StrategyList[T], Origin, error) {
	c := spec.Capability
	var (
		found  []T
		origin Origin
	)

	switch {
	case spec.DetectAll && !c.singular():
		for _, bean := range src.BeansOf(c) {
			if s, ok := bean.Instance.(T); ok {
				found = append(found, s)
			}
		}
		origin = OriginDetected
	case spec.BeanName != "":
		if bean, ok := src.Bean(spec.BeanName); ok {
			s, ok := bean.(T)
			if !ok {
				return StrategyList[T]{}, OriginNone, &ConfigurationError{
					Capability: c,
					Reason:     fmt.Sprintf("бин '%s' типа %T не реализует контракт стратегии", spec.BeanName, bean),
				}
			}
			found = []T{s}
			origin = OriginNamed
		}
	}

	if len(found) == 0 {
		var err error
		found, err = createDefaultStrategies[T](src, defaults, c)
		if err != nil {
			return StrategyList[T]{}, OriginNone, err
		}
		origin = OriginDefaults
	}

	switch {
	case len(found) == 0 && spec.Optional:
		return StrategyList[T]{}, OriginNone, nil
	case len(found) == 0:
		return StrategyList[T]{}, OriginNone, &ConfigurationError{
			Capability: c,
			Reason:     "не найдено ни одной стратегии, и таблица по умолчанию пуста",
		}
	case c.singular() && len(found) != 1:
		return StrategyList[T]{}, OriginNone, &ConfigurationError{
			Capability: c,
			Reason:     fmt.Sprintf("требуется ровно одна стратегия, найдено %d", len(found)),
		}
	}

	return NewStrategyList(found...), origin, nil
}

// createDefaultStrategies создает стратегии по умолчанию через ту же фабрику,
// что используется для обычных бинов.
func createDefaultStrategies[T any](src BeanSource, defaults DefaultStrategies, c Capability) ([]T, error) {
	names := defaults.Names(c)
	out := make([]T, 0, len(names))
	for _, name := range names {
		bean, err := src.Create(name)
		if err != nil {
			return nil, &ConfigurationError{
				Capability: c,
				Reason:     fmt.Sprintf("не удалось создать стратегию по умолчанию '%s'", name),
				Err:        err,
			}
		}
		s, ok := bean.(T)
		if !ok {
			return nil, &ConfigurationError{
				Capability: c,
				Reason:     fmt.Sprintf("стратегия по умолчанию '%s' типа %T не реализует контракт", name, bean),
			}
		}
		out = append(out, s)
	}
	return out, nil
}
