package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-reflect"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

var (
	contextType        = reflect.TypeOf((*context.Context)(nil)).Elem()
	requestType        = reflect.TypeOf((*mvc.Request)(nil))
	responseWriterType = reflect.TypeOf((*http.ResponseWriter)(nil)).Elem()
	httpRequestType    = reflect.TypeOf((*http.Request)(nil))
	modelType          = reflect.TypeOf((*mvc.Model)(nil))
	pathVariablesType  = reflect.TypeOf(PathVariables(nil))
	queryType          = reflect.TypeOf(url.Values(nil))
	errorType          = reflect.TypeOf((*error)(nil)).Elem()
	stringType         = reflect.TypeOf("")
	modelAndViewType   = reflect.TypeOf((*mvc.ModelAndView)(nil))
)

// signature — разобранная сигнатура функции-обработчика.
type signature struct {
	params []reflect.Type
	// result — тип основного результата или nil, если функция возвращает только ошибку или ничего.
	result   reflect.Type
	hasError bool
}

// ReflectAdapter вызывает функции произвольной сигнатуры, внедряя аргументы
// по типу: context.Context, *mvc.Request, http.ResponseWriter, *http.Request,
// *mvc.Model, PathVariables, url.Values. Результатом может быть имя
// представления (string), *mvc.ModelAndView или *mvc.Model, необязательно с ошибкой.
type ReflectAdapter struct {
	adapterConfig
	signatures sync.Map
}

var _ mvc.Adapter = (*ReflectAdapter)(nil)

// NewReflectAdapter создает адаптер с внедрением аргументов по типу.
func NewReflectAdapter(opts ...AdapterOption) *ReflectAdapter {
	return &ReflectAdapter{adapterConfig: newAdapterConfig(opts)}
}

// Supports сообщает, что обработчик — функция с поддерживаемой сигнатурой.
func (a *ReflectAdapter) Supports(handler any) bool {
	_, err := a.signature(handler)
	return err == nil
}

// Handle собирает аргументы, вызывает функцию и приводит результат к *mvc.ModelAndView.
func (a *ReflectAdapter) Handle(ctx context.Context, req *mvc.Request, handler any) (*mvc.ModelAndView, error) {
	sig, err := a.signature(handler)
	if err != nil {
		return nil, err
	}

	var model *mvc.Model
	args := make([]reflect.Value, len(sig.params))
	for i, t := range sig.params {
		switch t {
		case contextType:
			args[i] = reflect.ValueOf(&ctx).Elem()
		case requestType:
			args[i] = reflect.ValueOf(req)
		case responseWriterType:
			var w http.ResponseWriter = req.Response
			args[i] = reflect.ValueOf(&w).Elem()
		case httpRequestType:
			args[i] = reflect.ValueOf(req.HTTP.WithContext(ctx))
		case modelType:
			if model == nil {
				model = mvc.NewModel()
			}
			args[i] = reflect.ValueOf(model)
		case pathVariablesType:
			vars := PathVariablesOf(req)
			if vars == nil {
				vars = PathVariables{}
			}
			args[i] = reflect.ValueOf(vars)
		case queryType:
			args[i] = reflect.ValueOf(req.HTTP.URL.Query())
		}
	}

	out := reflect.ValueOf(handler).Call(args)

	if sig.hasError {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}

	if sig.result == nil {
		if model.Len() > 0 {
			return mvc.NewModelAndView("", model), nil
		}
		return nil, nil
	}

	res := out[0]
	switch sig.result {
	case stringType:
		return mvc.NewModelAndView(res.String(), model), nil
	case modelAndViewType:
		if res.IsNil() {
			return nil, nil
		}
		mv := res.Interface().(*mvc.ModelAndView)
		if model.Len() > 0 {
			mv.Model().Merge(model)
		}
		return mv, nil
	case modelType:
		m, _ := res.Interface().(*mvc.Model)
		return mvc.NewModelAndView("", model, m), nil
	}
	return nil, fmt.Errorf("неподдерживаемый тип результата %s", sig.result)
}

// LastModified возвращает время изменения, если обработчик его сообщает.
func (a *ReflectAdapter) LastModified(req *mvc.Request, handler any) (time.Time, bool) {
	return lastModified(req, handler)
}

func (a *ReflectAdapter) signature(handler any) (*signature, error) {
	if handler == nil {
		return nil, fmt.Errorf("обработчик не может быть nil")
	}
	t := reflect.TypeOf(handler)
	if cached, ok := a.signatures.Load(t); ok {
		return cached.(*signature), nil
	}
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("обработчик %s не является функцией", t)
	}
	if t.IsVariadic() {
		return nil, fmt.Errorf("вариативная функция %s не поддерживается", t)
	}

	sig := &signature{params: make([]reflect.Type, t.NumIn())}
	for i := 0; i < t.NumIn(); i++ {
		in := t.In(i)
		if !injectable(in) {
			return nil, fmt.Errorf("аргумент %d типа %s функции %s не может быть внедрен", i, in, t)
		}
		sig.params[i] = in
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			sig.hasError = true
		} else {
			sig.result = t.Out(0)
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("второй результат функции %s должен быть error", t)
		}
		sig.result = t.Out(0)
		sig.hasError = true
	default:
		return nil, fmt.Errorf("функция %s возвращает слишком много значений", t)
	}
	if sig.result != nil && sig.result != stringType && sig.result != modelAndViewType && sig.result != modelType {
		return nil, fmt.Errorf("неподдерживаемый тип результата %s функции %s", sig.result, t)
	}

	a.signatures.Store(t, sig)
	return sig, nil
}

func injectable(t reflect.Type) bool {
	switch t {
	case contextType, requestType, responseWriterType, httpRequestType, modelType, pathVariablesType, queryType:
		return true
	}
	return false
}
