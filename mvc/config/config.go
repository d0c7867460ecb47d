// Package config загружает настройки диспетчера из файла YAML или TOML и
// применяет их при изменении файла.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/x-research-team/dtx-webmvc/mvc"
	"github.com/x-research-team/dtx-webmvc/mvc/builtin"
)

// ErrUnsupportedFormat означает неизвестное расширение файла настроек.
var ErrUnsupportedFormat = errors.New("неподдерживаемый формат файла настроек")

// WorkerPool — настройки пула воркеров для асинхронных обработчиков.
type WorkerPool struct {
	Min   int `yaml:"min" toml:"min"`
	Max   int `yaml:"max" toml:"max"`
	Queue int `yaml:"queue" toml:"queue"`
}

// Settings — настройки диспетчера, читаемые из файла.
type Settings struct {
	Name                  string              `yaml:"name" toml:"name"`
	ThrowIfNoHandlerFound bool                `yaml:"throw_if_no_handler_found" toml:"throw_if_no_handler_found"`
	CleanupAfterInclude   *bool               `yaml:"cleanup_after_include" toml:"cleanup_after_include"`
	DetectAll             map[string]bool     `yaml:"detect_all" toml:"detect_all"`
	BeanNames             map[string]string   `yaml:"bean_names" toml:"bean_names"`
	Defaults              map[string][]string `yaml:"defaults" toml:"defaults"`
	WorkerPool            *WorkerPool         `yaml:"worker_pool" toml:"worker_pool"`
}

// Load читает настройки из файла. Формат определяется по расширению:
// .yaml, .yml или .toml.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл настроек '%s': %w", path, err)
	}
	return Parse(filepath.Ext(path), data)
}

// Parse разбирает настройки в формате, заданном расширением файла.
func Parse(ext string, data []byte) (*Settings, error) {
	var s Settings
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("не удалось разобрать YAML-настройки: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("не удалось разобрать TOML-настройки: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedFormat, ext)
	}
	return &s, nil
}

// Options преобразует настройки в опции диспетчера. Таблица Defaults
// дополняет встроенную таблицу, заменяя списки для указанных видов стратегий.
func (s *Settings) Options() ([]mvc.Option, error) {
	var opts []mvc.Option

	if s.Name != "" {
		opts = append(opts, mvc.WithName(s.Name))
	}
	opts = append(opts, mvc.WithThrowIfNoHandlerFound(s.ThrowIfNoHandlerFound))
	if s.CleanupAfterInclude != nil {
		opts = append(opts, mvc.WithCleanupAfterInclude(*s.CleanupAfterInclude))
	}

	for name, detect := range s.DetectAll {
		c, err := mvc.ParseCapability(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mvc.WithDetectAll(c, detect))
	}
	for name, bean := range s.BeanNames {
		c, err := mvc.ParseCapability(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mvc.WithBeanName(c, bean))
	}

	if len(s.Defaults) > 0 {
		table, err := s.mergedDefaults()
		if err != nil {
			return nil, err
		}
		opts = append(opts, mvc.WithDefaultStrategies(table))
	}

	if s.WorkerPool != nil {
		opts = append(opts, mvc.WithWorkerPool(s.WorkerPool.Min, s.WorkerPool.Max, s.WorkerPool.Queue))
	}
	return opts, nil
}

func (s *Settings) mergedDefaults() (mvc.DefaultStrategies, error) {
	base, err := builtin.Defaults()
	if err != nil {
		return mvc.DefaultStrategies{}, err
	}
	merged := make(map[string][]string)
	for _, c := range mvc.Capabilities() {
		if names := base.Names(c); len(names) > 0 {
			merged[c.String()] = names
		}
	}
	for name, types := range s.Defaults {
		merged[name] = types
	}
	return builtin.TableFromNames(merged)
}
