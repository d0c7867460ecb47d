package mvc_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// journal — потокобезопасный журнал событий теста.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

// handlerFn — обработчик тестов, вызываемый fnAdapter.
type handlerFn func(ctx context.Context, req *mvc.Request) (*mvc.ModelAndView, error)

// mapRouter сопоставляет путь с цепочкой выполнения.
type mapRouter struct {
	order  int
	routes map[string]*mvc.HandlerExecutionChain
	err    error
}

func newMapRouter(order int) *mapRouter {
	return &mapRouter{order: order, routes: make(map[string]*mvc.HandlerExecutionChain)}
}

func (r *mapRouter) route(path string, handler any, ics ...mvc.Interceptor) *mapRouter {
	r.routes[path] = mvc.NewHandlerExecutionChain(handler, ics...)
	return r
}

func (r *mapRouter) Handler(_ context.Context, req *mvc.Request) (*mvc.HandlerExecutionChain, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.routes[req.Path()], nil
}

func (r *mapRouter) Order() int { return r.order }

// fnAdapter вызывает handlerFn.
type fnAdapter struct {
	order        int
	name         string
	journal      *journal
	lastModified time.Time
}

func (a *fnAdapter) Supports(handler any) bool {
	_, ok := handler.(handlerFn)
	return ok
}

func (a *fnAdapter) Handle(ctx context.Context, req *mvc.Request, handler any) (*mvc.ModelAndView, error) {
	if a.journal != nil {
		a.journal.add("adapter %s", a.name)
	}
	return handler.(handlerFn)(ctx, req)
}

func (a *fnAdapter) LastModified(*mvc.Request, any) (time.Time, bool) {
	return a.lastModified, !a.lastModified.IsZero()
}

func (a *fnAdapter) Order() int { return a.order }

// recordingInterceptor записывает вызовы в журнал.
type recordingInterceptor struct {
	name     string
	journal  *journal
	reject   bool
	preErr   error
	afterErr error

	mu       sync.Mutex
	afterArg error
	started  int
}

func (i *recordingInterceptor) PreHandle(context.Context, *mvc.Request, any) (bool, error) {
	i.journal.add("pre %s", i.name)
	if i.preErr != nil {
		return false, i.preErr
	}
	return !i.reject, nil
}

func (i *recordingInterceptor) PostHandle(context.Context, *mvc.Request, any, *mvc.ModelAndView) error {
	i.journal.add("post %s", i.name)
	return nil
}

func (i *recordingInterceptor) AfterCompletion(_ context.Context, _ *mvc.Request, _ any, err error) error {
	i.journal.add("after %s", i.name)
	i.mu.Lock()
	i.afterArg = err
	i.mu.Unlock()
	return i.afterErr
}

func (i *recordingInterceptor) AfterConcurrentHandlingStarted(context.Context, *mvc.Request, any) {
	i.journal.add("async %s", i.name)
	i.mu.Lock()
	i.started++
	i.mu.Unlock()
}

func (i *recordingInterceptor) afterCompletionArg() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.afterArg
}

// recordingView пишет имя и модель в ответ и считает вызовы.
type recordingView struct {
	name    string
	err     error
	renders atomic.Int32
	inspect func(req *mvc.Request)
}

func (v *recordingView) Render(_ context.Context, model *mvc.Model, req *mvc.Request) error {
	v.renders.Add(1)
	if v.inspect != nil {
		v.inspect(req)
	}
	if v.err != nil {
		return v.err
	}
	_, err := fmt.Fprintf(req.Response, "%s %s", v.name, model)
	return err
}

// viewTable разрешает имена по таблице.
type viewTable struct {
	views map[string]mvc.View
	calls atomic.Int32
}

func (r *viewTable) ResolveViewName(_ context.Context, name string, _ language.Tag) (mvc.View, error) {
	r.calls.Add(1)
	return r.views[name], nil
}

// resolverFn — разрешатель исключений на функции.
type resolverFn func(ctx context.Context, req *mvc.Request, handler any, err error) (*mvc.ModelAndView, error)

func (f resolverFn) ResolveException(ctx context.Context, req *mvc.Request, handler any, err error) (*mvc.ModelAndView, error) {
	return f(ctx, req, handler, err)
}

// translatorFn — транслятор имени представления на функции.
type translatorFn func(req *mvc.Request) (string, error)

func (f translatorFn) ViewName(req *mvc.Request) (string, error) {
	return f(req)
}

// fakeMultipart разбирает любые запросы с типом multipart/form-data и считает очистки.
type fakeMultipart struct {
	err      error
	cleanups atomic.Int32
}

func (m *fakeMultipart) IsMultipart(req *mvc.Request) bool {
	return strings.HasPrefix(req.Header().Get("Content-Type"), "multipart/")
}

func (m *fakeMultipart) ResolveMultipart(_ context.Context, req *mvc.Request) (*mvc.Request, error) {
	if m.err != nil {
		return nil, m.err
	}
	return req.WithMultipart(&multipart.Form{Value: map[string][]string{"field": {"value"}}}), nil
}

func (m *fakeMultipart) Cleanup(*mvc.Request) error {
	m.cleanups.Add(1)
	return nil
}

// fakeFlashStore выдает заранее заданную FlashMap и запоминает сохраненные.
type fakeFlashStore struct {
	in    *mvc.FlashMap
	err   error
	saved []*mvc.FlashMap
}

func (s *fakeFlashStore) RetrieveAndUpdate(context.Context, *mvc.Request) (*mvc.FlashMap, error) {
	return s.in, s.err
}

func (s *fakeFlashStore) SaveOutputFlashMap(_ context.Context, fm *mvc.FlashMap, _ *mvc.Request) error {
	s.saved = append(s.saved, fm)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newDispatcher создает диспетчер без таблицы по умолчанию над набором бинов.
func newDispatcher(t *testing.T, beans *mvc.Beans, opts ...mvc.Option) mvc.IDispatcher {
	t.Helper()
	opts = append([]mvc.Option{mvc.WithLogger(discardLogger())}, opts...)
	d, err := mvc.NewDispatcher(beans, opts...)
	require.NoError(t, err, "Создание диспетчера не должно вызывать ошибку")
	t.Cleanup(func() {
		_ = d.Shutdown(context.Background())
	})
	return d
}

// dispatch проводит запрос через диспетчер и возвращает ошибку и записанный ответ.
func dispatch(d mvc.IDispatcher, r *http.Request) (*mvc.Request, *httptest.ResponseRecorder, error) {
	rec := httptest.NewRecorder()
	req := mvc.NewRequest(rec, r)
	err := d.Dispatch(r.Context(), req)
	return req, rec, err
}

// basicBeans регистрирует маршрутизатор, адаптер и таблицу представлений.
func basicBeans(router *mapRouter, views map[string]mvc.View) *mvc.Beans {
	return mvc.NewBeans().
		MustRegister("router", router).
		MustRegister("adapter", &fnAdapter{}).
		MustRegister("views", &viewTable{views: views})
}
