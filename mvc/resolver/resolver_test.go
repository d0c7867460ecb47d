package resolver_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-webmvc/mvc"
	"github.com/x-research-team/dtx-webmvc/mvc/resolver"
)

var errValidation = errors.New("ошибка валидации")

func newRequest() (*mvc.Request, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return mvc.NewRequest(rec, httptest.NewRequest(http.MethodGet, "/", nil)), rec
}

// Тест сопоставления ошибок с представлениями.
func TestMappingErrorResolver(t *testing.T) {
	t.Parallel()

	r := resolver.NewMappingErrorResolver("error").
		Map(errValidation, "invalid", http.StatusBadRequest).
		MapFunc(func(err error) bool {
			var nf *mvc.NoHandlerFoundError
			return errors.As(err, &nf)
		}, "missing", http.StatusNotFound).
		WithDefaultStatus(http.StatusBadGateway)

	tests := []struct {
		name       string
		err        error
		wantView   string
		wantStatus int
	}{
		{name: "обернутая ошибка", err: fmt.Errorf("сохранение: %w", errValidation), wantView: "invalid", wantStatus: http.StatusBadRequest},
		{name: "типизированная ошибка", err: &mvc.NoHandlerFoundError{Method: "GET", Path: "/x"}, wantView: "missing", wantStatus: http.StatusNotFound},
		{name: "представление по умолчанию", err: errors.New("прочее"), wantView: "error", wantStatus: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, _ := newRequest()
			mv, err := r.ResolveException(context.Background(), req, nil, tt.err)

			require.NoError(t, err, "Разрешение ошибки не должно вызывать ошибку")
			require.NotNil(t, mv, "Ошибка должна быть разрешена")
			assert.Equal(t, tt.wantView, mv.ViewName(), "Представление ошибки некорректно")
			assert.Equal(t, tt.wantStatus, mv.Status(), "Статус ошибки некорректен")
			assert.Equal(t, tt.err, mv.Model().Get(resolver.DefaultExceptionModelKey), "Ошибка должна передаваться в модель")
		})
	}
}

// Тест разрешателя без представления по умолчанию и с ограничением обработчиков.
func TestMappingErrorResolver_NotApplicable(t *testing.T) {
	t.Parallel()

	req, _ := newRequest()
	owner := &struct{ name string }{name: "owner"}

	r := resolver.NewMappingErrorResolver("", resolver.ForHandlers(owner), resolver.WithOrder(5)).
		Map(errValidation, "invalid", http.StatusBadRequest).
		WithModelKey("")

	mv, err := r.ResolveException(context.Background(), req, owner, errors.New("прочее"))
	require.NoError(t, err, "Разрешение ошибки не должно вызывать ошибку")
	assert.Nil(t, mv, "Несопоставленная ошибка без представления по умолчанию не разрешается")

	mv, err = r.ResolveException(context.Background(), req, "чужой", errValidation)
	require.NoError(t, err, "Разрешение ошибки не должно вызывать ошибку")
	assert.Nil(t, mv, "Ошибки чужих обработчиков не разрешаются")

	mv, err = r.ResolveException(context.Background(), req, owner, errValidation)
	require.NoError(t, err, "Разрешение ошибки не должно вызывать ошибку")
	require.NotNil(t, mv, "Ошибка своего обработчика должна разрешаться")
	assert.Zero(t, mv.Model().Len(), "Пустой ключ модели отключает передачу ошибки")
	assert.Equal(t, 5, r.Order(), "Приоритет разрешателя некорректен")
}

type statusError struct{ code int }

func (e statusError) Error() string   { return http.StatusText(e.code) }
func (e statusError) StatusCode() int { return e.code }

// Тест ответа кодом статуса ошибки.
func TestStatusErrorResolver(t *testing.T) {
	t.Parallel()

	r := resolver.NewStatusErrorResolver()

	req, rec := newRequest()
	mv, err := r.ResolveException(context.Background(), req, nil, fmt.Errorf("обертка: %w", statusError{code: http.StatusConflict}))
	require.NoError(t, err, "Разрешение ошибки не должно вызывать ошибку")
	require.NotNil(t, mv, "Ошибка с кодом статуса должна разрешаться")
	assert.True(t, mv.IsEmpty(), "Результат должен быть пустым: ответ уже сформирован")
	assert.Equal(t, http.StatusConflict, rec.Code, "Статус ответа некорректен")

	req, _ = newRequest()
	mv, err = r.ResolveException(context.Background(), req, nil, errors.New("без статуса"))
	require.NoError(t, err, "Разрешение ошибки не должно вызывать ошибку")
	assert.Nil(t, mv, "Ошибка без кода статуса не разрешается")
}

// Тест стандартных кодов ошибок конвейера.
func TestDefaultErrorResolver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "нет обработчика", err: &mvc.NoHandlerFoundError{Method: "GET", Path: "/x"}, want: http.StatusNotFound},
		{name: "multipart", err: &mvc.MultipartError{Err: errors.New("сбой")}, want: http.StatusBadRequest},
		{name: "слишком большой запрос", err: fmt.Errorf("чтение: %w", &http.MaxBytesError{Limit: 10}), want: http.StatusRequestEntityTooLarge},
		{name: "таймаут", err: context.DeadlineExceeded, want: http.StatusServiceUnavailable},
		{name: "неизвестная ошибка", err: errors.New("прочее"), want: 0},
	}
	r := resolver.NewDefaultErrorResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, rec := newRequest()
			mv, err := r.ResolveException(context.Background(), req, nil, tt.err)
			require.NoError(t, err, "Разрешение ошибки не должно вызывать ошибку")
			if tt.want == 0 {
				assert.Nil(t, mv, "Неизвестная ошибка не должна разрешаться")
				return
			}
			require.NotNil(t, mv, "Ошибка должна разрешаться")
			assert.Equal(t, tt.want, rec.Code, "Статус ответа некорректен")
		})
	}
}

type selfHandling struct{}

func (selfHandling) HandleError(_ context.Context, _ *mvc.Request, err error) (*mvc.ModelAndView, error) {
	return mvc.NewModelAndView("own-error").AddObject("message", err.Error()), nil
}

// Тест делегирования ошибки обработчику.
func TestHandlerErrorResolver(t *testing.T) {
	t.Parallel()

	r := resolver.NewHandlerErrorResolver()
	req, _ := newRequest()

	mv, err := r.ResolveException(context.Background(), req, selfHandling{}, errValidation)
	require.NoError(t, err, "Разрешение ошибки не должно вызывать ошибку")
	require.NotNil(t, mv, "Обработчик должен разрешать свою ошибку")
	assert.Equal(t, "own-error", mv.ViewName(), "Представление ошибки некорректно")

	mv, err = r.ResolveException(context.Background(), req, "обычный", errValidation)
	require.NoError(t, err, "Разрешение ошибки не должно вызывать ошибку")
	assert.Nil(t, mv, "Обработчик без HandleError не разрешает ошибку")
	assert.Zero(t, r.Order(), "Делегирующий разрешатель должен иметь наивысший встроенный приоритет")
}
