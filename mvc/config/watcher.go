package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// Refresher — диспетчер, поддерживающий полную замену стратегий.
type Refresher interface {
	Refresh(opts ...mvc.Option) error
}

// WatcherOption настраивает Watcher.
type WatcherOption func(*Watcher)

// WithDebounce задает интервал, в течение которого серия событий файла
// объединяется в одно обновление.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger устанавливает логгер.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithOnReload задает функцию, вызываемую после каждой попытки обновления.
func WithOnReload(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watcher отслеживает файл настроек и при его изменении перечитывает
// настройки и вызывает Refresh у диспетчера.
type Watcher struct {
	path     string
	target   Refresher
	debounce time.Duration
	logger   *slog.Logger
	onReload func(error)
	watcher  *fsnotify.Watcher
}

// NewWatcher создает наблюдателя за файлом path. Отслеживается каталог файла,
// чтобы замена файла редактором тоже приводила к обновлению.
func NewWatcher(path string, target Refresher, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить путь к файлу настроек '%s': %w", path, err)
	}

	w := &Watcher{
		path:     abs,
		target:   target,
		debounce: 100 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("не удалось создать наблюдатель файловой системы: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("не удалось начать наблюдение за '%s': %w", filepath.Dir(abs), err)
	}
	w.watcher = fsw
	return w, nil
}

// Run обрабатывает события до отмены контекста и закрывает наблюдатель.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("ошибка наблюдения за файлом настроек",
				slog.String("path", w.path),
				slog.Any("error", err),
			)
		}
	}
}

// reload перечитывает файл и применяет настройки. При ошибке текущие
// стратегии диспетчера остаются в силе.
func (w *Watcher) reload() {
	err := w.apply()
	if err != nil {
		w.logger.Error("не удалось применить файл настроек",
			slog.String("path", w.path),
			slog.Any("error", err),
		)
	} else {
		w.logger.Info("настройки диспетчера перечитаны", slog.String("path", w.path))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

func (w *Watcher) apply() error {
	s, err := Load(w.path)
	if err != nil {
		return err
	}
	opts, err := s.Options()
	if err != nil {
		return err
	}
	return w.target.Refresh(opts...)
}
