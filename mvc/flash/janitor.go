package flash

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Purger реализуется хранилищами, умеющими удалять истекшие FlashMap всех сессий.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// JanitorOption определяет функцию для конфигурации Janitor.
type JanitorOption func(*Janitor)

// WithInterval устанавливает интервал очистки.
func WithInterval(interval time.Duration) JanitorOption {
	return func(j *Janitor) {
		j.interval = interval
	}
}

// WithJanitorLogger устанавливает логгер.
func WithJanitorLogger(logger *slog.Logger) JanitorOption {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// WithJanitorClock подменяет часы.
func WithJanitorClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) {
		j.now = now
	}
}

// Janitor — фоновый процесс, периодически удаляющий истекшие FlashMap.
// Take удаляет истекшие FlashMap только той сессии, которая вернулась за
// атрибутами; Janitor убирает остальные.
type Janitor struct {
	storage  Purger
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor создает новый экземпляр Janitor.
func NewJanitor(storage Purger, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		storage:  storage,
		interval: time.Minute,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.interval <= 0 {
		j.interval = time.Minute
	}
	return j
}

// Start запускает фоновый процесс. Повторный вызов ничего не делает.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.logger.Info("очистка flash-атрибутов запущена", slog.Duration("interval", j.interval))
		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-ctx.Done():
				j.logger.Info("очистка flash-атрибутов остановлена")
				return
			}
		}
	}()
}

// RunOnce выполняет один цикл очистки и возвращает количество удаленных FlashMap.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	n, err := j.storage.Purge(ctx, j.now())
	if err != nil {
		j.logger.Error("не удалось удалить истекшие flash-атрибуты", slog.Any("error", err))
		return 0
	}
	if n > 0 {
		j.logger.Debug("истекшие flash-атрибуты удалены", slog.Int64("count", n))
	}
	return n
}

// Stop останавливает фоновый процесс и дожидается его завершения.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel = nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
