package mvc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"go.uber.org/multierr"
)

// Registry - это потокобезопасный реестр именованных экземпляров диспетчеров.
// Позволяет держать в одном процессе несколько диспетчеров с разными наборами стратегий.
type Registry struct {
	dispatchers map[string]IDispatcher
	logger      *slog.Logger
	mu          sync.RWMutex
}

// NewRegistry создает новый экземпляр реестра диспетчеров.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		dispatchers: make(map[string]IDispatcher),
		logger:      logger,
	}
}

// Dispatcher возвращает диспетчер с указанным именем, создавая его при первом обращении.
// Опции применяются только при создании; имя диспетчера всегда совпадает с ключом реестра.
func Dispatcher(r *Registry, name string, source BeanSource, opts ...Option) (IDispatcher, error) {
	r.mu.RLock()
	dispatcher, exists := r.dispatchers[name]
	r.mu.RUnlock()

	if exists {
		return dispatcher, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if dispatcher, exists := r.dispatchers[name]; exists {
		return dispatcher, nil
	}

	opts = append(slices.Clone(opts), WithName(name))
	newDispatcher, err := NewDispatcher(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать новый диспетчер: %w", err)
	}
	r.dispatchers[name] = newDispatcher

	return newDispatcher, nil
}

// Lookup возвращает зарегистрированный диспетчер по имени.
func (r *Registry) Lookup(name string) (IDispatcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dispatchers[name]
	return d, ok
}

// Names возвращает отсортированные имена зарегистрированных диспетчеров.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.dispatchers))
	for name := range r.dispatchers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Shutdown корректно завершает работу всех зарегистрированных диспетчеров.
func (r *Registry) Shutdown(ctx context.Context) (errs error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, dispatcher := range r.dispatchers {
		if err := dispatcher.Shutdown(ctx); err != nil {
			r.logger.Error("ошибка при завершении работы диспетчера",
				slog.String("dispatcher", name),
				slog.Any("error", err),
			)
			errs = multierr.Append(errs, fmt.Errorf("диспетчер '%s': %w", name, err))
		}
	}

	return errs
}
