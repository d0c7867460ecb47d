package flash

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// MemoryStorage — потокобезопасное хранилище FlashMap в памяти процесса.
type MemoryStorage struct {
	mu       sync.Mutex
	sessions map[string][]*mvc.FlashMap
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Purger  = (*MemoryStorage)(nil)
)

// NewMemoryStorage создает пустое хранилище в памяти.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{sessions: make(map[string][]*mvc.FlashMap)}
}

// Save сохраняет FlashMap для сессии.
func (m *MemoryStorage) Save(_ context.Context, sessionID string, fm *mvc.FlashMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = append(m.sessions[sessionID], fm)
	return nil
}

// Take извлекает самую точно адресованную подходящую FlashMap и удаляет истекшие.
func (m *MemoryStorage) Take(_ context.Context, sessionID string, match func(*mvc.FlashMap) bool, now time.Time) (*mvc.FlashMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := slices.DeleteFunc(slices.Clone(m.sessions[sessionID]), func(fm *mvc.FlashMap) bool {
		return fm.IsExpired(now)
	})

	var taken *mvc.FlashMap
	if i := Pick(live, match); i >= 0 {
		taken = live[i]
		live = slices.Delete(live, i, i+1)
	}
	if len(live) == 0 {
		delete(m.sessions, sessionID)
	} else {
		m.sessions[sessionID] = live
	}
	return taken, nil
}

// Purge удаляет истекшие FlashMap всех сессий и возвращает их количество.
func (m *MemoryStorage) Purge(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, maps := range m.sessions {
		live := slices.DeleteFunc(maps, func(fm *mvc.FlashMap) bool {
			return fm.IsExpired(now)
		})
		purged += int64(len(maps) - len(live))
		if len(live) == 0 {
			delete(m.sessions, id)
		} else {
			m.sessions[id] = live
		}
	}
	return purged, nil
}

// Len возвращает количество хранимых FlashMap сессии.
func (m *MemoryStorage) Len(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions[sessionID])
}
