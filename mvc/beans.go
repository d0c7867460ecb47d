package mvc

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownType означает, что для имени типа не зарегистрирован конструктор.
var ErrUnknownType = errors.New("конструктор для типа не зарегистрирован")

// Bean — именованный экземпляр, предоставляемый источником зависимостей.
type Bean struct {
	Name     string
	Instance any
}

// BeanSource — внешний источник зависимостей, из которого диспетчер получает стратегии.
type BeanSource interface {
	// Bean возвращает бин по имени.
	Bean(name string) (any, bool)

	// BeansOf возвращает все бины, реализующие контракт вида стратегии,
	// в детерминированном порядке регистрации.
	BeansOf(c Capability) []Bean

	// Create создает новый экземпляр по имени типа, применяя ту же
	// инициализацию, что и для обычных бинов.
	Create(typeName string) (any, error)
}

// Constructor создает экземпляр типа, получая доступ к источнику зависимостей.
type Constructor func(src BeanSource) (any, error)

// Beans — минимальный потокобезопасный источник зависимостей в памяти.
type Beans struct {
	mu    sync.RWMutex
	names []string
	beans map[string]any
	types map[string]Constructor
}

// NewBeans создает пустой источник зависимостей.
func NewBeans() *Beans {
	return &Beans{
		beans: make(map[string]any),
		types: make(map[string]Constructor),
	}
}

// Register регистрирует бин под именем и инициализирует его.
func (b *Beans) Register(name string, bean any) error {
	if name == "" {
		return fmt.Errorf("имя бина не может быть пустым")
	}
	if bean == nil {
		return fmt.Errorf("бин '%s' не может быть nil", name)
	}
	if err := initialize(bean); err != nil {
		return fmt.Errorf("не удалось инициализировать бин '%s': %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.beans[name]; exists {
		return fmt.Errorf("бин '%s' уже зарегистрирован", name)
	}
	b.names = append(b.names, name)
	b.beans[name] = bean
	return nil
}

// MustRegister регистрирует бин и паникует при ошибке.
func (b *Beans) MustRegister(name string, bean any) *Beans {
	if err := b.Register(name, bean); err != nil {
		panic(err)
	}
	return b
}

// RegisterType регистрирует конструктор для имени типа.
func (b *Beans) RegisterType(typeName string, ctor Constructor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.types[typeName]; exists {
		return fmt.Errorf("конструктор для типа '%s' уже зарегистрирован", typeName)
	}
	b.types[typeName] = ctor
	return nil
}

// Bean возвращает бин по имени.
func (b *Beans) Bean(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bean, ok := b.beans[name]
	return bean, ok
}

// BeansOf возвращает бины, реализующие контракт вида стратегии, в порядке регистрации.
func (b *Beans) BeansOf(c Capability) []Bean {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Bean
	for _, name := range b.names {
		if bean := b.beans[name]; c.Accepts(bean) {
			out = append(out, Bean{Name: name, Instance: bean})
		}
	}
	return out
}

// Create создает экземпляр зарегистрированного типа и инициализирует его.
func (b *Beans) Create(typeName string) (any, error) {
	b.mu.RLock()
	ctor, ok := b.types[typeName]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownType, typeName)
	}

	bean, err := ctor(b)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать экземпляр типа '%s': %w", typeName, err)
	}
	if err := initialize(bean); err != nil {
		return nil, fmt.Errorf("не удалось инициализировать экземпляр типа '%s': %w", typeName, err)
	}
	return bean, nil
}

func initialize(bean any) error {
	if i, ok := bean.(Initializer); ok {
		return i.Init()
	}
	return nil
}
