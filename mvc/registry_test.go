package mvc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// Тест получения одного и того же диспетчера из реестра.
func TestRegistry_Dispatcher_SameInstance(t *testing.T) {
	t.Parallel()

	registry := mvc.NewRegistry(discardLogger())
	beans := basicBeans(newMapRouter(0), nil)

	first, err := mvc.Dispatcher(registry, "web", beans, mvc.WithLogger(discardLogger()))
	require.NoError(t, err, "Первое получение диспетчера не должно вызывать ошибку")
	second, err := mvc.Dispatcher(registry, "web", beans)
	require.NoError(t, err, "Второе получение диспетчера не должно вызывать ошибку")

	assert.Same(t, first, second, "Реестр должен возвращать один и тот же экземпляр для одного имени")
	assert.Equal(t, "web", first.Name(), "Имя диспетчера должно совпадать с ключом реестра")

	found, ok := registry.Lookup("web")
	require.True(t, ok, "Диспетчер должен находиться по имени")
	assert.Same(t, first, found, "Найденный диспетчер некорректен")

	require.NoError(t, registry.Shutdown(context.Background()), "Завершение работы не должно вызывать ошибку")
}

// Тест списка имен и независимости диспетчеров.
func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	registry := mvc.NewRegistry(discardLogger())
	beans := basicBeans(newMapRouter(0), nil)

	for _, name := range []string{"web", "api", "admin"} {
		_, err := mvc.Dispatcher(registry, name, beans, mvc.WithLogger(discardLogger()))
		require.NoError(t, err, "Создание диспетчера не должно вызывать ошибку")
	}

	assert.Equal(t, []string{"admin", "api", "web"}, registry.Names(), "Имена должны быть отсортированы")

	_, ok := registry.Lookup("missing")
	assert.False(t, ok, "Незарегистрированный диспетчер не должен находиться")

	require.NoError(t, registry.Shutdown(context.Background()), "Завершение работы не должно вызывать ошибку")
}

// Тест ошибки конфигурации: диспетчер не регистрируется.
func TestRegistry_Dispatcher_ConfigurationError(t *testing.T) {
	t.Parallel()

	registry := mvc.NewRegistry(discardLogger())

	_, err := mvc.Dispatcher(registry, "broken", mvc.NewBeans(), mvc.WithLogger(discardLogger()))

	require.Error(t, err, "Ошибка конфигурации должна возвращаться")
	assert.ErrorIs(t, err, mvc.ErrConfiguration, "Ошибка должна быть ошибкой конфигурации")
	assert.Empty(t, registry.Names(), "Диспетчер с ошибкой не должен регистрироваться")
}
