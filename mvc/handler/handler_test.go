package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-webmvc/mvc"
	"github.com/x-research-team/dtx-webmvc/mvc/handler"
)

func newRequest(method, target string) *mvc.Request {
	return mvc.NewRequest(httptest.NewRecorder(), httptest.NewRequest(method, target, nil))
}

func noop(context.Context, *mvc.Request) (*mvc.ModelAndView, error) {
	return nil, nil
}

// Тест точного сопоставления пути и метода.
func TestPathRouter_Handler(t *testing.T) {
	t.Parallel()

	get := handler.HandlerFunc(noop)
	anyMethod := handler.StatusHandler(http.StatusAccepted)
	router := handler.NewPathRouter(handler.WithOrder(3)).
		MustHandle(http.MethodGet, "/items", get).
		MustHandle("", "/items", anyMethod)

	chain, err := router.Handler(context.Background(), newRequest(http.MethodGet, "/items"))
	require.NoError(t, err, "Поиск обработчика не должен вызывать ошибку")
	require.NotNil(t, chain, "Обработчик GET должен находиться")
	assert.NotNil(t, chain.Handler(), "Обработчик цепочки не должен быть nil")
	_, isFunc := chain.Handler().(handler.HandlerFunc)
	assert.True(t, isFunc, "Для GET должен выбираться обработчик с точным методом")

	chain, err = router.Handler(context.Background(), newRequest(http.MethodPost, "/items"))
	require.NoError(t, err, "Поиск обработчика не должен вызывать ошибку")
	assert.Equal(t, anyMethod, chain.Handler(), "Для прочих методов должен выбираться обработчик без метода")

	chain, err = router.Handler(context.Background(), newRequest(http.MethodGet, "/missing"))
	require.NoError(t, err, "Отсутствие совпадения не является ошибкой")
	assert.Nil(t, chain, "Для неизвестного пути цепочка должна быть nil")

	assert.Equal(t, 3, router.Order(), "Приоритет маршрутизатора некорректен")
	assert.Error(t, router.Handle(http.MethodGet, "/items", get), "Повторная регистрация должна вызывать ошибку")
	assert.Error(t, router.Handle(http.MethodGet, "/nil", nil), "Регистрация nil должна вызывать ошибку")

	routes := router.Routes()
	require.Len(t, routes, 2, "Количество маршрутов некорректно")
	assert.Equal(t, "ANY", routes[0].Method, "Маршруты должны сортироваться по пути и методу")
}

// Тест обработчика по умолчанию и перехватчиков, привязанных к путям.
func TestPathRouter_DefaultHandlerAndMappedInterceptors(t *testing.T) {
	t.Parallel()

	global := handler.InterceptorFuncs{}
	admin := handler.NewMappedInterceptor(handler.InterceptorFuncs{}, "/admin/**").Excluding("/admin/public")
	fallback := handler.StatusHandler(http.StatusTeapot)

	router := handler.NewPathRouter(
		handler.WithDefaultHandler(fallback),
		handler.WithInterceptors(global, admin),
	)

	tests := []struct {
		path  string
		count int
	}{
		{path: "/admin/users", count: 2},
		{path: "/admin", count: 2},
		{path: "/admin/public", count: 1},
		{path: "/home", count: 1},
	}
	for _, tt := range tests {
		chain, err := router.Handler(context.Background(), newRequest(http.MethodGet, tt.path))
		require.NoError(t, err, "Поиск обработчика не должен вызывать ошибку")
		require.NotNil(t, chain, "Обработчик по умолчанию должен возвращаться для %s", tt.path)
		assert.Equal(t, fallback, chain.Handler(), "Обработчик по умолчанию некорректен")
		assert.Len(t, chain.Interceptors(), tt.count, "Количество перехватчиков для %s некорректно", tt.path)
	}
}

// Тест шаблонов пути и переменных пути.
func TestPatternRouter_Handler(t *testing.T) {
	t.Parallel()

	user := handler.HandlerFunc(noop)
	router := handler.NewPatternRouter().
		MustHandle("/users/{id:[0-9]+}", user, http.MethodGet)

	req := newRequest(http.MethodGet, "/users/42")
	chain, err := router.Handler(context.Background(), req)
	require.NoError(t, err, "Поиск обработчика не должен вызывать ошибку")
	require.NotNil(t, chain, "Шаблон должен сопоставляться")
	assert.Equal(t, handler.PathVariables{"id": "42"}, handler.PathVariablesOf(req), "Переменные пути некорректны")

	for _, r := range []*mvc.Request{
		newRequest(http.MethodGet, "/users/abc"),
		newRequest(http.MethodPost, "/users/42"),
	} {
		chain, err := router.Handler(context.Background(), r)
		require.NoError(t, err, "Отсутствие совпадения не является ошибкой")
		assert.Nil(t, chain, "Запрос %s %s не должен сопоставляться", r.Method(), r.Path())
	}

	assert.Error(t, router.Handle("/broken/{id", user), "Некорректный шаблон должен вызывать ошибку")
}

// Тест маршрутизатора по именам бинов.
func TestBeanNameRouter_Handler(t *testing.T) {
	t.Parallel()

	health := handler.StatusHandler(http.StatusOK)
	beans := mvc.NewBeans().
		MustRegister("/health", health).
		MustRegister("internal", handler.StatusHandler(http.StatusOK))
	router := handler.NewBeanNameRouter(beans)

	chain, err := router.Handler(context.Background(), newRequest(http.MethodGet, "/health"))
	require.NoError(t, err, "Поиск обработчика не должен вызывать ошибку")
	require.NotNil(t, chain, "Бин с именем пути должен находиться")
	assert.Equal(t, health, chain.Handler(), "Найденный бин некорректен")

	chain, err = router.Handler(context.Background(), newRequest(http.MethodGet, "/internal"))
	require.NoError(t, err, "Отсутствие совпадения не является ошибкой")
	assert.Nil(t, chain, "Бин без ведущего '/' не должен сопоставляться")
}

type staticController struct {
	modified time.Time
}

func (c staticController) HandleRequest(context.Context, *mvc.Request) (*mvc.ModelAndView, error) {
	return mvc.NewModelAndView("static"), nil
}

func (c staticController) LastModified(*mvc.Request) (time.Time, bool) {
	return c.modified, true
}

// Тест встроенных адаптеров.
func TestAdapters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := staticController{modified: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	httpHandler := handler.StatusHandler(http.StatusTeapot)
	plainFunc := func(context.Context, *mvc.Request) (*mvc.ModelAndView, error) {
		return mvc.NewModelAndView("plain"), nil
	}
	servlet := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) }

	t.Run("controller", func(t *testing.T) {
		t.Parallel()

		a := handler.NewControllerAdapter(handler.WithAdapterOrder(1))
		assert.True(t, a.Supports(ctrl), "Controller должен поддерживаться")
		assert.True(t, a.Supports(handler.HandlerFunc(plainFunc)), "HandlerFunc должен поддерживаться")
		assert.False(t, a.Supports(plainFunc), "Функция без приведения типа не поддерживается")
		assert.Equal(t, 1, a.Order(), "Приоритет адаптера некорректен")

		req := newRequest(http.MethodGet, "/")
		mv, err := a.Handle(ctx, req, ctrl)
		require.NoError(t, err, "Вызов обработчика не должен вызывать ошибку")
		assert.Equal(t, "static", mv.ViewName(), "Имя представления некорректно")

		lm, ok := a.LastModified(req, ctrl)
		assert.True(t, ok, "Время изменения должно сообщаться")
		assert.Equal(t, ctrl.modified, lm, "Время изменения некорректно")
	})

	t.Run("http.Handler", func(t *testing.T) {
		t.Parallel()

		a := handler.NewHTTPHandlerAdapter()
		rec := httptest.NewRecorder()
		req := mvc.NewRequest(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		mv, err := a.Handle(ctx, req, httpHandler)
		require.NoError(t, err, "Вызов обработчика не должен вызывать ошибку")
		assert.Nil(t, mv, "http.Handler сам формирует ответ")
		assert.Equal(t, http.StatusTeapot, rec.Code, "Статус ответа некорректен")
		assert.Equal(t, mvc.LowestPrecedence, a.Order(), "Приоритет по умолчанию некорректен")
	})

	t.Run("func", func(t *testing.T) {
		t.Parallel()

		a := handler.NewFuncAdapter()
		assert.True(t, a.Supports(plainFunc), "Функция-обработчик должна поддерживаться")
		assert.True(t, a.Supports(servlet), "Функция http должна поддерживаться")
		assert.False(t, a.Supports(ctrl), "Controller не является функцией")

		mv, err := a.Handle(ctx, newRequest(http.MethodGet, "/"), plainFunc)
		require.NoError(t, err, "Вызов обработчика не должен вызывать ошибку")
		assert.Equal(t, "plain", mv.ViewName(), "Имя представления некорректно")

		rec := httptest.NewRecorder()
		mv, err = a.Handle(ctx, mvc.NewRequest(rec, httptest.NewRequest(http.MethodGet, "/", nil)), servlet)
		require.NoError(t, err, "Вызов обработчика не должен вызывать ошибку")
		assert.Nil(t, mv, "Функция http сама формирует ответ")
		assert.Equal(t, http.StatusCreated, rec.Code, "Статус ответа некорректен")
	})
}

// Тест внедрения аргументов и приведения результатов ReflectAdapter.
func TestReflectAdapter_Handle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	adapter := handler.NewReflectAdapter()
	boom := errors.New("сбой")

	tests := []struct {
		name     string
		fn       any
		wantView string
		wantNil  bool
		wantErr  error
		check    func(t *testing.T, mv *mvc.ModelAndView)
	}{
		{
			name: "имя представления и модель",
			fn: func(vars handler.PathVariables, q url.Values, model *mvc.Model) string {
				model.Set("id", vars["id"]).Set("q", q.Get("q"))
				return "item"
			},
			wantView: "item",
			check: func(t *testing.T, mv *mvc.ModelAndView) {
				assert.Equal(t, "7", mv.Model().Get("id"), "Переменная пути должна внедряться")
				assert.Equal(t, "x", mv.Model().Get("q"), "Параметры запроса должны внедряться")
			},
		},
		{
			name: "ModelAndView дополняется моделью",
			fn: func(_ context.Context, model *mvc.Model) (*mvc.ModelAndView, error) {
				model.Set("extra", 1)
				return mvc.NewModelAndView("mv", mvc.NewModel("own", 2)), nil
			},
			wantView: "mv",
			check: func(t *testing.T, mv *mvc.ModelAndView) {
				assert.Equal(t, []string{"own", "extra"}, mv.Model().Keys(), "Модели должны объединяться")
			},
		},
		{
			name: "только модель",
			fn: func(*mvc.Request) *mvc.Model {
				return mvc.NewModel("k", "v")
			},
			check: func(t *testing.T, mv *mvc.ModelAndView) {
				assert.False(t, mv.HasView(), "Имя представления должно определяться транслятором")
				assert.Equal(t, "v", mv.Model().Get("k"), "Модель некорректна")
			},
		},
		{
			name: "запись ответа напрямую",
			fn: func(w http.ResponseWriter, _ *http.Request) error {
				w.WriteHeader(http.StatusNoContent)
				return nil
			},
			wantNil: true,
		},
		{
			name:    "ошибка обработчика",
			fn:      func() (string, error) { return "", boom },
			wantErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.True(t, adapter.Supports(tt.fn), "Сигнатура должна поддерживаться")

			req := newRequest(http.MethodGet, "/items/7?q=x")
			req.Attributes().Set(mvc.PathVariablesAttribute, handler.PathVariables{"id": "7"})

			mv, err := adapter.Handle(ctx, req, tt.fn)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr, "Ошибка обработчика должна возвращаться")
				return
			}
			require.NoError(t, err, "Вызов обработчика не должен вызывать ошибку")
			if tt.wantNil {
				assert.Nil(t, mv, "Результат должен быть nil")
				return
			}
			require.NotNil(t, mv, "Результат не должен быть nil")
			assert.Equal(t, tt.wantView, mv.ViewName(), "Имя представления некорректно")
			if tt.check != nil {
				tt.check(t, mv)
			}
		})
	}
}

// Тест неподдерживаемых сигнатур ReflectAdapter.
func TestReflectAdapter_Supports(t *testing.T) {
	t.Parallel()

	adapter := handler.NewReflectAdapter()

	for name, fn := range map[string]any{
		"не функция":             "строка",
		"nil":                    nil,
		"неизвестный аргумент":   func(int) string { return "" },
		"вариативная":            func(...string) {},
		"второй результат":       func() (string, int) { return "", 0 },
		"неизвестный результат":  func() int { return 0 },
		"слишком много значений": func() (string, string, error) { return "", "", nil },
	} {
		assert.False(t, adapter.Supports(fn), "Сигнатура '%s' не должна поддерживаться", name)
	}
}

// Тест сопоставления путей MappedInterceptor.
func TestMappedInterceptor_Matches(t *testing.T) {
	t.Parallel()

	m := handler.NewMappedInterceptor(handler.InterceptorFuncs{}, "/api/**", "/static/*.css").Excluding("/api/health")

	assert.True(t, m.Matches("/api/users/1"), "Вложенный путь должен подходить под /**")
	assert.True(t, m.Matches("/static/site.css"), "Путь должен подходить под шаблон path.Match")
	assert.False(t, m.Matches("/api/health"), "Исключенный путь не должен подходить")
	assert.False(t, m.Matches("/other"), "Путь вне шаблонов не должен подходить")

	all := handler.NewMappedInterceptor(handler.InterceptorFuncs{})
	assert.True(t, all.Matches("/anything"), "Перехватчик без шаблонов применяется ко всем путям")
}

// Тест InterceptorFuncs с незаданными функциями.
func TestInterceptorFuncs_Defaults(t *testing.T) {
	t.Parallel()

	var ic handler.InterceptorFuncs
	req := newRequest(http.MethodGet, "/")

	ok, err := ic.PreHandle(context.Background(), req, nil)
	require.NoError(t, err, "PreHandle по умолчанию не должен вызывать ошибку")
	assert.True(t, ok, "PreHandle по умолчанию должен продолжать выполнение")
	assert.NoError(t, ic.PostHandle(context.Background(), req, nil, nil), "PostHandle по умолчанию не должен вызывать ошибку")
	assert.NoError(t, ic.AfterCompletion(context.Background(), req, nil, nil), "AfterCompletion по умолчанию не должен вызывать ошибку")
}
