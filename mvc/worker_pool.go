package mvc

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// workerPool — пул горутин для асинхронных обработчиков.
// Запускает minWorkers воркеров и добавляет новые до maxWorkers, когда очередь не пуста.
type workerPool struct {
	minWorkers int
	maxWorkers int
	tasks      chan func()
	running    atomic.Int32
	wg         sync.WaitGroup
	stopCh     chan struct{}
	logger     *slog.Logger

	// mu упорядочивает постановку задач и запуск воркеров относительно
	// остановки: после stop wg.Add не вызывается и задачи не принимаются.
	mu       sync.Mutex
	stopping bool
}

// newWorkerPool создает новый пул воркеров.
func newWorkerPool(minWorkers, maxWorkers, queueSize int, logger *slog.Logger) *workerPool {
	if minWorkers <= 0 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &workerPool{
		minWorkers: minWorkers,
		maxWorkers: maxWorkers,
		tasks:      make(chan func(), queueSize),
		stopCh:     make(chan struct{}),
		logger:     logger,
	}
}

// run запускает минимальное количество воркеров.
func (p *workerPool) run() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < p.minWorkers; i++ {
		p.spawn()
	}
}

// spawn запускает воркер. Вызывается под mu до начала остановки.
func (p *workerPool) spawn() {
	p.running.Add(1)
	p.wg.Add(1)
	go p.worker()
}

// stop останавливает всех воркеров и дожидается их завершения. Задачи,
// оставшиеся в очереди, выполняются в вызывающей горутине.
func (p *workerPool) stop() {
	p.mu.Lock()
	if !p.stopping {
		p.stopping = true
		close(p.stopCh)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.drain()
}

func (p *workerPool) drain() {
	for {
		select {
		case task := <-p.tasks:
			p.execute(task)
		default:
			return
		}
	}
}

// submit добавляет задачу в очередь. false означает, что пул остановлен или
// очередь переполнена. Блокируется только на передаче задачи только что
// запущенному воркеру.
func (p *workerPool) submit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return false
	}

	select {
	case p.tasks <- task:
	default:
		if int(p.running.Load()) >= p.maxWorkers {
			p.logger.Warn("очередь пула воркеров переполнена")
			return false
		}
		p.spawn()
		p.tasks <- task
	}

	if len(p.tasks) > 0 && int(p.running.Load()) < p.maxWorkers {
		p.spawn()
	}
	return true
}

// worker - это основная функция горутины-воркера.
func (p *workerPool) worker() {
	defer func() {
		p.running.Add(-1)
		p.wg.Done()
	}()
	for {
		select {
		case task := <-p.tasks:
			p.execute(task)
		case <-p.stopCh:
			// Дорабатываем уже принятые задачи, чтобы ни один запрос не остался без завершения.
			p.drain()
			return
		}
	}
}

func (p *workerPool) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("паника в задаче пула воркеров", slog.Any("panic", r))
		}
	}()
	task()
}
