package mvc

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"go.uber.org/multierr"
)

// HandlerExecutionChain — неизменяемая пара из обработчика и упорядоченного
// списка его перехватчиков. Создается маршрутизатором при сопоставлении.
type HandlerExecutionChain struct {
	handler      any
	interceptors []Interceptor
}

// NewHandlerExecutionChain создает цепочку выполнения. Если handler сам является
// цепочкой, ее перехватчики предшествуют переданным.
func NewHandlerExecutionChain(handler any, interceptors ...Interceptor) *HandlerExecutionChain {
	if inner, ok := handler.(*HandlerExecutionChain); ok {
		return &HandlerExecutionChain{
			handler:      inner.handler,
			interceptors: append(slices.Clone(inner.interceptors), interceptors...),
		}
	}
	return &HandlerExecutionChain{
		handler:      handler,
		interceptors: slices.Clone(interceptors),
	}
}

// Handler возвращает обработчик.
func (c *HandlerExecutionChain) Handler() any {
	return c.handler
}

// Interceptors возвращает копию списка перехватчиков.
func (c *HandlerExecutionChain) Interceptors() []Interceptor {
	return slices.Clone(c.interceptors)
}

func (c *HandlerExecutionChain) String() string {
	return fmt.Sprintf("HandlerExecutionChain с обработчиком [%s] и %d перехватчиками", HandlerName(c.handler), len(c.interceptors))
}

// ChainState — состояние выполнения цепочки перехватчиков для одного запроса.
type ChainState int

const (
	StateNotStarted ChainState = iota
	StatePreHandleRunning
	StateShortCircuited
	StateHandlerRunning
	StatePostHandleRunning
	StateCompleted
)

func (s ChainState) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StatePreHandleRunning:
		return "PRE_HANDLE_RUNNING"
	case StateShortCircuited:
		return "SHORT_CIRCUITED"
	case StateHandlerRunning:
		return "HANDLER_RUNNING"
	case StatePostHandleRunning:
		return "POST_HANDLE_RUNNING"
	case StateCompleted:
		return "COMPLETED"
	}
	return fmt.Sprintf("ChainState(%d)", int(s))
}

// execution — изменяемое состояние прохождения цепочки для одного запроса.
// Вызов PreHandle считается захватом ресурса, AfterCompletion — его освобождением
// в обратном порядке, ровно один раз.
type execution struct {
	chain  *HandlerExecutionChain
	logger *slog.Logger
	state  ChainState
	// acquired — количество перехватчиков, у которых был вызван PreHandle.
	acquired  int
	completed bool
}

func newExecution(chain *HandlerExecutionChain, logger *slog.Logger) *execution {
	return &execution{chain: chain, logger: logger}
}

// applyPreHandle вызывает PreHandle в порядке регистрации. При отказе одного
// из перехватчиков сразу вызывает AfterCompletion для уже захваченных.
func (x *execution) applyPreHandle(ctx context.Context, req *Request) (bool, error) {
	x.state = StatePreHandleRunning
	for i, ic := range x.chain.interceptors {
		x.acquired = i + 1
		ok, err := ic.PreHandle(ctx, req, x.chain.handler)
		if err != nil {
			return false, err
		}
		if !ok {
			x.state = StateShortCircuited
			if aerr := x.triggerAfterCompletion(ctx, req, nil); aerr != nil {
				x.logger.Error("ошибка AfterCompletion после прерывания обработки",
					slog.String("request_id", req.ID.String()),
					slog.Any("error", aerr),
				)
			}
			return false, nil
		}
	}
	x.state = StateHandlerRunning
	return true, nil
}

// applyPostHandle вызывает PostHandle в обратном порядке регистрации.
func (x *execution) applyPostHandle(ctx context.Context, req *Request, mv *ModelAndView) error {
	x.state = StatePostHandleRunning
	for i := len(x.chain.interceptors) - 1; i >= 0; i-- {
		if err := x.chain.interceptors[i].PostHandle(ctx, req, x.chain.handler, mv); err != nil {
			return err
		}
	}
	return nil
}

// triggerAfterCompletion вызывает AfterCompletion в обратном порядке для всех
// перехватчиков, чей PreHandle был вызван. Срабатывает не более одного раза.
// Ошибки отдельных перехватчиков не прерывают обход и возвращаются вместе.
func (x *execution) triggerAfterCompletion(ctx context.Context, req *Request, cause error) (errs error) {
	if x.completed {
		return nil
	}
	x.completed = true
	if x.state != StateShortCircuited {
		x.state = StateCompleted
	}

	for i := x.acquired - 1; i >= 0; i-- {
		errs = multierr.Append(errs, x.afterCompletion(ctx, req, x.chain.interceptors[i], cause))
	}
	return errs
}

func (x *execution) afterCompletion(ctx context.Context, req *Request, ic Interceptor, cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в AfterCompletion перехватчика %T: %v", ic, r)
		}
	}()
	return ic.AfterCompletion(ctx, req, x.chain.handler, cause)
}

// applyAfterConcurrentHandlingStarted уведомляет асинхронные перехватчики о
// переходе обработчика в асинхронный режим, в обратном порядке регистрации.
func (x *execution) applyAfterConcurrentHandlingStarted(ctx context.Context, req *Request) {
	for i := len(x.chain.interceptors) - 1; i >= 0; i-- {
		ai, ok := x.chain.interceptors[i].(AsyncInterceptor)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					x.logger.Error("паника в AfterConcurrentHandlingStarted",
						slog.String("interceptor", fmt.Sprintf("%T", ai)),
						slog.Any("panic", r),
					)
				}
			}()
			ai.AfterConcurrentHandlingStarted(ctx, req, x.chain.handler)
		}()
	}
}
