package mvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// dispatchState — состояние одного прохода запроса через конвейер.
type dispatchState struct {
	st       *strategies
	original *Request
	// req — обрабатываемый запрос, возможно переписанный multipart-разрешателем.
	req             *Request
	chain           *HandlerExecutionChain
	x               *execution
	multipartParsed bool
	suspended       bool
	snapshot        *Attributes
	managed         func(name string) bool
	finalizeOnce    sync.Once
}

func (d *dispatchState) handler() any {
	if d.chain == nil {
		return nil
	}
	return d.chain.handler
}

// Dispatch выставляет служебные атрибуты запроса и передает его в конвейер.
// Для include-запросов снимок атрибутов восстанавливается после обработки.
func (e *engine) Dispatch(ctx context.Context, req *Request) error {
	st := e.current.Load()
	if st == nil {
		return ErrNotInitialized
	}
	req.async.bind(e.pool.submit)

	d := &dispatchState{
		st:       st,
		original: req,
		req:      req,
		managed: func(name string) bool {
			return st.settings.cleanupAfterInclude || strings.HasPrefix(name, attributePrefix)
		},
	}
	if req.IsInclude() {
		d.snapshot = req.attrs.Snapshot(d.managed)
	}

	req.attrs.Set(DispatcherNameAttribute, e.name)
	if st.locale != nil {
		req.attrs.Set(LocaleResolverAttribute, st.locale)
	}
	if st.flashStore != nil {
		in, err := st.flashStore.RetrieveAndUpdate(ctx, req)
		if err != nil {
			e.logger.Error("не удалось получить flash-атрибуты",
				slog.String("request_id", req.ID.String()),
				slog.Any("error", err),
			)
		}
		if in != nil {
			req.attrs.Set(InputFlashMapAttribute, in)
		}
		req.attrs.Set(OutputFlashMapAttribute, NewFlashMap())
		req.attrs.Set(FlashMapStoreAttribute, st.flashStore)
	}

	return e.dispatch(ctx, d)
}

// dispatch выполняет собственно диспетчеризацию: разбор multipart, поиск
// обработчика и адаптера, проверку Last-Modified, перехватчики, вызов
// обработчика и обработку результата.
func (e *engine) dispatch(ctx context.Context, d *dispatchState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := &HandlerExecutionError{Handler: d.handler(), Err: fmt.Errorf("паника: %v", r), Stack: debug.Stack()}
			err = e.completeWithError(ctx, d, perr)
		}
		if !d.suspended {
			e.finalize(d)
		}
	}()

	mv, done, dispatchErr := e.handle(ctx, d)
	if done {
		return dispatchErr
	}
	return e.processDispatchResult(ctx, d, mv, dispatchErr)
}

// handle выполняет этап до обработки результата. done означает, что запрос
// завершен без отрисовки: ответ уже сформирован, обработка прервана
// перехватчиком, запрос приостановлен или возникла фатальная ошибка конфигурации.
func (e *engine) handle(ctx context.Context, d *dispatchState) (mv *ModelAndView, done bool, dispatchErr error) {
	defer func() {
		if r := recover(); r != nil {
			dispatchErr = &HandlerExecutionError{Handler: d.handler(), Err: fmt.Errorf("паника: %v", r), Stack: debug.Stack()}
			mv, done = nil, false
		}
	}()

	if err := e.checkMultipart(ctx, d); err != nil {
		return nil, false, err
	}

	chain, err := e.lookupHandler(ctx, d.st, d.req)
	if err != nil {
		return nil, false, err
	}
	if chain == nil {
		return nil, !d.st.settings.throwIfNoHandlerFound, e.noHandlerFound(d)
	}
	d.chain = chain

	adapter, err := e.lookupAdapter(d.st, chain.handler)
	if err != nil {
		return nil, true, err
	}

	method := d.req.Method()
	if method == http.MethodGet || method == http.MethodHead {
		if lm, ok := adapter.LastModified(d.req, chain.handler); ok && checkNotModified(d.req, lm) {
			return nil, true, nil
		}
	}

	d.x = newExecution(chain, e.logger)
	ok, err := d.x.applyPreHandle(ctx, d.req)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, true, nil
	}

	mv, err = invokeHandler(ctx, adapter, d.req, chain.handler)

	if d.req.async.IsConcurrentHandlingStarted() {
		if err != nil && !d.req.async.complete(nil, err) {
			e.logger.Error("ошибка обработчика после передачи асинхронного результата",
				slog.String("request_id", d.req.ID.String()),
				slog.Any("error", err),
			)
		}
		e.suspend(ctx, d)
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	if err := e.applyDefaultViewName(d.st, d.req, mv); err != nil {
		return nil, false, err
	}
	if err := d.x.applyPostHandle(ctx, d.req, mv); err != nil {
		return nil, false, err
	}
	return mv, false, nil
}

// suspend переводит запрос в ожидание асинхронного результата. Путь
// завершения выполняет оставшуюся часть конвейера и очистку ровно один раз.
func (e *engine) suspend(ctx context.Context, d *dispatchState) {
	d.suspended = true
	d.x.applyAfterConcurrentHandlingStarted(ctx, d.req)
	d.req.async.suspend(func(mv *ModelAndView, err error) (rerr error) {
		defer func() {
			if r := recover(); r != nil {
				perr := &HandlerExecutionError{Handler: d.handler(), Err: fmt.Errorf("паника: %v", r), Stack: debug.Stack()}
				rerr = e.completeWithError(ctx, d, perr)
			}
			e.finalize(d)
		}()

		if err != nil {
			return e.processDispatchResult(ctx, d, nil, wrapHandlerError(d.handler(), err))
		}
		if err := e.applyDefaultViewName(d.st, d.req, mv); err != nil {
			return e.processDispatchResult(ctx, d, nil, err)
		}
		if err := d.x.applyPostHandle(ctx, d.req, mv); err != nil {
			return e.processDispatchResult(ctx, d, nil, err)
		}
		return e.processDispatchResult(ctx, d, mv, nil)
	})
}

// finalize освобождает multipart-ресурсы и восстанавливает снимок атрибутов.
func (e *engine) finalize(d *dispatchState) {
	d.finalizeOnce.Do(func() {
		if d.multipartParsed && d.st.multipart != nil {
			if err := d.st.multipart.Cleanup(d.req); err != nil {
				e.logger.Error("ошибка очистки multipart-ресурсов",
					slog.String("request_id", d.original.ID.String()),
					slog.Any("error", err),
				)
			}
		}
		if d.snapshot != nil {
			d.original.attrs.Restore(d.snapshot, d.managed)
		}
	})
}

// checkMultipart переписывает запрос в multipart-запрос, если это требуется.
// Повторный разбор после уже зафиксированного сбоя не выполняется.
func (e *engine) checkMultipart(ctx context.Context, d *dispatchState) error {
	mr := d.st.multipart
	if mr == nil || !mr.IsMultipart(d.req) {
		return nil
	}
	if d.req.MultipartForm() != nil {
		e.logger.Debug("запрос уже разобран как multipart", slog.String("request_id", d.req.ID.String()))
		return nil
	}
	if failedMultipart(d.req.attrs.Get(ExceptionAttribute)) || failedMultipart(d.req.attrs.Get(ErrorExceptionAttribute)) {
		e.logger.Debug("разбор multipart ранее завершился ошибкой, повторный разбор пропущен",
			slog.String("request_id", d.req.ID.String()),
		)
		return nil
	}

	processed, err := mr.ResolveMultipart(ctx, d.req)
	if err != nil {
		if _, ok := d.req.attrs.Lookup(ErrorExceptionAttribute); ok {
			e.logger.Debug("ошибка разбора multipart при обработке ошибки, продолжаем с исходным запросом",
				slog.String("request_id", d.req.ID.String()),
				slog.Any("error", err),
			)
			return nil
		}
		var merr *MultipartError
		if !errors.As(err, &merr) {
			err = &MultipartError{Err: err}
		}
		return err
	}
	if processed != nil && processed != d.req {
		d.req = processed
		d.multipartParsed = true
	}
	return nil
}

func failedMultipart(v any) bool {
	err, ok := v.(error)
	return ok && errors.Is(err, ErrMultipart)
}

// lookupHandler опрашивает маршрутизаторы в порядке приоритета. Побеждает первое совпадение.
func (e *engine) lookupHandler(ctx context.Context, st *strategies, req *Request) (*HandlerExecutionChain, error) {
	for r := range st.routers.All() {
		chain, err := r.Handler(ctx, req)
		if err != nil {
			return nil, err
		}
		if chain != nil {
			return chain, nil
		}
	}
	return nil, nil
}

// noHandlerFound формирует ответ 404 либо типизированную ошибку для разрешателей исключений.
func (e *engine) noHandlerFound(d *dispatchState) error {
	req := d.req
	e.notFoundLogger.Warn("обработчик для запроса не найден",
		slog.String("request_id", req.ID.String()),
		slog.String("method", req.Method()),
		slog.String("path", req.Path()),
		slog.String("dispatcher", e.name),
	)
	if d.st.settings.throwIfNoHandlerFound {
		return &NoHandlerFoundError{Method: req.Method(), Path: req.Path(), Header: req.Header().Clone()}
	}
	req.Response.SendError(http.StatusNotFound, "")
	return nil
}

// lookupAdapter возвращает первый адаптер, поддерживающий обработчик.
func (e *engine) lookupAdapter(st *strategies, handler any) (Adapter, error) {
	for a := range st.adapters.All() {
		if a.Supports(handler) {
			return a, nil
		}
	}
	return nil, &ConfigurationError{
		Capability: CapabilityAdapter,
		Reason:     fmt.Sprintf("ни один адаптер не поддерживает обработчик %s", HandlerName(handler)),
		Err:        ErrAdapterNotFound,
	}
}

// applyDefaultViewName подставляет имя представления по умолчанию, если
// обработчик вернул результат без представления.
func (e *engine) applyDefaultViewName(st *strategies, req *Request, mv *ModelAndView) error {
	if mv == nil || mv.HasView() || mv.WasCleared() {
		return nil
	}
	name, err := defaultViewName(st, req)
	if err != nil {
		return err
	}
	if name != "" {
		mv.SetViewName(name)
	}
	return nil
}

func defaultViewName(st *strategies, req *Request) (string, error) {
	if st.translator == nil {
		return "", nil
	}
	return st.translator.ViewName(req)
}

// processDispatchResult обрабатывает результат обработчика или ошибку:
// передает ошибку разрешателям исключений, отрисовывает представление и
// вызывает AfterCompletion.
func (e *engine) processDispatchResult(ctx context.Context, d *dispatchState, mv *ModelAndView, dispatchErr error) error {
	errorView := false

	if dispatchErr != nil {
		var definer ModelAndViewDefiner
		if errors.As(dispatchErr, &definer) {
			e.logger.Debug("ошибка определяет результат", slog.String("request_id", d.req.ID.String()))
			mv = definer.ModelAndView()
		} else {
			resolved, err := e.processHandlerException(ctx, d, dispatchErr)
			if err != nil {
				return e.completeWithError(ctx, d, err)
			}
			mv = resolved
			errorView = mv != nil
		}
	}

	if mv != nil && !mv.WasCleared() {
		if err := e.render(ctx, d.st, mv, d.req); err != nil {
			return e.completeWithError(ctx, d, err)
		}
		if errorView {
			clearErrorAttributes(d.req)
		}
	}

	if d.req.async.IsConcurrentHandlingStarted() {
		return nil
	}

	if d.x != nil {
		if aerr := d.x.triggerAfterCompletion(ctx, d.req, cause(dispatchErr)); aerr != nil {
			e.logger.Error("ошибка AfterCompletion перехватчика",
				slog.String("request_id", d.req.ID.String()),
				slog.Any("error", aerr),
			)
		}
	}
	return nil
}

// processHandlerException передает ошибку разрешателям исключений в порядке
// приоритета. nil без ошибки означает, что ответ сформирован и отрисовка не нужна.
func (e *engine) processHandlerException(ctx context.Context, d *dispatchState, dispatchErr error) (*ModelAndView, error) {
	handler := d.handler()
	original := cause(dispatchErr)

	for r := range d.st.resolvers.All() {
		mv, rerr := resolveException(ctx, r, d.req, handler, original)
		if rerr != nil {
			return nil, &DoubleFaultError{Resolver: r, Err: dispatchErr, ResolverErr: rerr}
		}
		if mv == nil {
			continue
		}

		if mv.IsEmpty() {
			d.req.attrs.Set(ExceptionAttribute, original)
			return nil, nil
		}
		if !mv.HasView() {
			name, err := defaultViewName(d.st, d.req)
			if err != nil {
				return nil, withSuppressed(dispatchErr, err)
			}
			if name != "" {
				mv.SetViewName(name)
			}
		}
		e.logger.Debug("ошибка обработана разрешателем",
			slog.String("request_id", d.req.ID.String()),
			slog.String("resolver", fmt.Sprintf("%T", r)),
			slog.Any("error", original),
		)
		e.exposeErrorAttributes(d.req, mv, original)
		return mv, nil
	}

	return nil, &UnresolvedError{Handler: handler, Err: dispatchErr}
}

func resolveException(ctx context.Context, r ExceptionResolver, req *Request, handler any, err error) (mv *ModelAndView, rerr error) {
	defer func() {
		if p := recover(); p != nil {
			rerr = fmt.Errorf("паника в разрешателе исключений: %v", p)
		}
	}()
	return r.ResolveException(ctx, req, handler, err)
}

// exposeErrorAttributes выставляет атрибуты, доступные представлению ошибки.
func (e *engine) exposeErrorAttributes(req *Request, mv *ModelAndView, err error) {
	status := mv.Status()
	if status == 0 {
		status = StatusOf(err)
	}
	req.attrs.Set(ErrorExceptionAttribute, err)
	req.attrs.Set(ErrorStatusCodeAttribute, status)
	req.attrs.Set(ErrorRequestURIAttribute, req.HTTP.URL.RequestURI())
	req.attrs.Set(ErrorDispatcherAttribute, e.name)
}

func clearErrorAttributes(req *Request) {
	req.attrs.Remove(ErrorExceptionAttribute)
	req.attrs.Remove(ErrorStatusCodeAttribute)
	req.attrs.Remove(ErrorRequestURIAttribute)
	req.attrs.Remove(ErrorDispatcherAttribute)
}

// completeWithError вызывает AfterCompletion с первичной ошибкой и
// присоединяет к ней ошибки обратных вызовов.
func (e *engine) completeWithError(ctx context.Context, d *dispatchState, err error) error {
	if d.x == nil {
		return err
	}
	return withSuppressed(err, d.x.triggerAfterCompletion(ctx, d.req, cause(err)))
}

// StatusOf возвращает HTTP-статус ошибки: из метода StatusCode, если ошибка
// его реализует, иначе 500.
func StatusOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// cause возвращает исходную ошибку обработчика без служебной обертки.
func cause(err error) error {
	var he *HandlerExecutionError
	if errors.As(err, &he) && !he.Panicked() {
		return he.Err
	}
	return err
}

func wrapHandlerError(handler any, err error) error {
	var he *HandlerExecutionError
	if errors.As(err, &he) {
		return err
	}
	return &HandlerExecutionError{Handler: handler, Err: err}
}

// invokeHandler вызывает обработчик через адаптер, превращая панику в ошибку.
func invokeHandler(ctx context.Context, a Adapter, req *Request, handler any) (mv *ModelAndView, err error) {
	defer func() {
		if r := recover(); r != nil {
			mv = nil
			err = &HandlerExecutionError{Handler: handler, Err: fmt.Errorf("паника: %v", r), Stack: debug.Stack()}
		}
	}()
	mv, err = a.Handle(ctx, req, handler)
	if err != nil {
		return nil, wrapHandlerError(handler, err)
	}
	return mv, nil
}

// checkNotModified выставляет Last-Modified и отвечает 304, если ресурс не
// изменился с момента, указанного в If-Modified-Since.
func checkNotModified(req *Request, lastModified time.Time) bool {
	if lastModified.IsZero() {
		return false
	}
	lm := lastModified.UTC().Truncate(time.Second)
	h := req.Response.Header()
	h.Set("Last-Modified", lm.Format(http.TimeFormat))

	ims := req.Header().Get("If-Modified-Since")
	if ims == "" {
		return false
	}
	t, err := http.ParseTime(ims)
	if err != nil || lm.After(t) {
		return false
	}
	h.Del("Content-Type")
	h.Del("Content-Length")
	req.Response.WriteHeader(http.StatusNotModified)
	return true
}
