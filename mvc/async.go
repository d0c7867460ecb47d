package mvc

import (
	"context"
	"fmt"
	"sync"
)

// AsyncState — модель завершения запроса из трех состояний.
type AsyncState int

const (
	// AsyncNone — обычное синхронное завершение.
	AsyncNone AsyncState = iota
	// AsyncStarted — обработчик запустил асинхронную обработку, синхронный путь еще не вернулся.
	AsyncStarted
	// AsyncSuspended — синхронный путь вернулся, ожидается результат.
	AsyncSuspended
	// AsyncResumed — результат получен, выполнен путь асинхронного завершения.
	AsyncResumed
)

func (s AsyncState) String() string {
	switch s {
	case AsyncNone:
		return "none"
	case AsyncStarted:
		return "started"
	case AsyncSuspended:
		return "suspended"
	case AsyncResumed:
		return "resumed"
	}
	return fmt.Sprintf("AsyncState(%d)", int(s))
}

// AsyncTask — задача, вычисляющая результат асинхронного обработчика.
type AsyncTask func(ctx context.Context) (*ModelAndView, error)

// resumeFunc повторно входит в отрисовку и завершение запроса.
type resumeFunc func(mv *ModelAndView, err error) error

// executor запускает задачу вне текущей горутины. false означает отказ.
type executor func(task func()) bool

type asyncResult struct {
	mv  *ModelAndView
	err error
}

// AsyncManager управляет асинхронной обработкой одного запроса и гарантирует,
// что путь асинхронного завершения выполнится ровно один раз.
type AsyncManager struct {
	mu      sync.Mutex
	state   AsyncState
	resume  resumeFunc
	pending *asyncResult
	exec    executor
	done    chan struct{}
	err     error
}

func newAsyncManager() *AsyncManager {
	return &AsyncManager{done: make(chan struct{})}
}

// State возвращает текущее состояние.
func (m *AsyncManager) State() AsyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConcurrentHandlingStarted сообщает, что обработчик перешел в асинхронный режим.
func (m *AsyncManager) IsConcurrentHandlingStarted() bool {
	s := m.State()
	return s == AsyncStarted || s == AsyncSuspended
}

// Done закрывается после завершения асинхронного пути.
func (m *AsyncManager) Done() <-chan struct{} {
	return m.done
}

// Err возвращает ошибку асинхронного пути завершения. Имеет смысл после закрытия Done.
func (m *AsyncManager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *AsyncManager) bind(exec executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exec = exec
}

func (m *AsyncManager) start() (*AsyncContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != AsyncNone {
		return nil, ErrAsyncStarted
	}
	m.state = AsyncStarted
	return &AsyncContext{m: m}, nil
}

func (m *AsyncManager) startTask(ctx context.Context, task AsyncTask) error {
	actx, err := m.start()
	if err != nil {
		return err
	}

	m.mu.Lock()
	exec := m.exec
	m.mu.Unlock()

	run := func() {
		var (
			mv  *ModelAndView
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("паника в асинхронной задаче: %v", r)
				}
			}()
			mv, err = task(ctx)
		}()
		actx.Complete(mv, err)
	}

	if exec == nil {
		go run()
		return nil
	}
	if !exec(run) {
		actx.Complete(nil, ErrAsyncRejected)
	}
	return nil
}

// suspend вызывается диспетчером после возврата синхронного пути. Если результат
// уже получен, путь завершения запускается немедленно в отдельной горутине.
func (m *AsyncManager) suspend(resume resumeFunc) {
	m.mu.Lock()
	m.state = AsyncSuspended
	m.resume = resume
	pending := m.pending
	m.pending = nil
	if pending != nil {
		m.state = AsyncResumed
	}
	m.mu.Unlock()

	if pending != nil {
		go m.finish(resume, pending)
	}
}

// complete передает результат. Возвращает false, если результат уже был передан.
func (m *AsyncManager) complete(mv *ModelAndView, err error) bool {
	m.mu.Lock()
	switch {
	case m.state == AsyncStarted && m.pending == nil:
		m.pending = &asyncResult{mv: mv, err: err}
		m.mu.Unlock()
		return true
	case m.state == AsyncSuspended:
		m.state = AsyncResumed
		resume := m.resume
		m.mu.Unlock()
		m.finish(resume, &asyncResult{mv: mv, err: err})
		return true
	}
	m.mu.Unlock()
	return false
}

func (m *AsyncManager) finish(resume resumeFunc, res *asyncResult) {
	err := resume(res.mv, res.err)
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	close(m.done)
}

// AsyncContext — дескриптор асинхронной обработки, через который обработчик
// передает результат.
type AsyncContext struct {
	m *AsyncManager
}

// Complete передает результат асинхронной обработки. Повторные вызовы игнорируются
// и возвращают false.
func (a *AsyncContext) Complete(mv *ModelAndView, err error) bool {
	return a.m.complete(mv, err)
}

// Done закрывается после завершения обработки запроса.
func (a *AsyncContext) Done() <-chan struct{} {
	return a.m.done
}
