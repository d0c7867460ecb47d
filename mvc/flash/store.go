// Package flash реализует хранилище FlashMap поверх сменного Storage.
// Сессия клиента определяется cookie; атрибуты выдаются не более одного раза.
package flash

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// DefaultCookieName — имя cookie с идентификатором flash-сессии по умолчанию.
const DefaultCookieName = "DTX_FLASH"

// sessionAttribute хранит идентификатор сессии, выданный в рамках текущего запроса.
const sessionAttribute = "dtx.webmvc.flash.SESSION_ID"

// Storage — хранилище FlashMap, сгруппированных по сессии.
type Storage interface {
	// Save сохраняет FlashMap для сессии.
	Save(ctx context.Context, sessionID string, fm *mvc.FlashMap) error

	// Take атомарно извлекает и удаляет самую точно адресованную FlashMap
	// сессии, удовлетворяющую match и не истекшую к моменту now. Истекшие
	// FlashMap удаляются. Две одновременные операции Take никогда не
	// возвращают одну и ту же FlashMap.
	Take(ctx context.Context, sessionID string, match func(*mvc.FlashMap) bool, now time.Time) (*mvc.FlashMap, error)
}

// Option настраивает Store.
type Option func(*Store)

// WithCookieName задает имя cookie сессии.
func WithCookieName(name string) Option {
	return func(s *Store) {
		s.cookieName = name
	}
}

// WithCookiePath задает путь cookie сессии.
func WithCookiePath(path string) Option {
	return func(s *Store) {
		s.cookiePath = path
	}
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger устанавливает логгер.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store реализует mvc.FlashMapStore.
type Store struct {
	storage    Storage
	cookieName string
	cookiePath string
	now        func() time.Time
	logger     *slog.Logger
}

var _ mvc.FlashMapStore = (*Store)(nil)

// NewStore создает хранилище flash-атрибутов поверх storage.
func NewStore(storage Storage, opts ...Option) *Store {
	s := &Store{
		storage:    storage,
		cookieName: DefaultCookieName,
		cookiePath: "/",
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RetrieveAndUpdate извлекает FlashMap, адресованную текущему запросу.
// Извлеченная FlashMap удаляется из хранилища и не будет выдана повторно.
func (s *Store) RetrieveAndUpdate(ctx context.Context, req *mvc.Request) (*mvc.FlashMap, error) {
	sessionID, ok := s.sessionID(req)
	if !ok {
		return nil, nil
	}

	path, query := req.Path(), req.HTTP.URL.Query()
	fm, err := s.storage.Take(ctx, sessionID, func(fm *mvc.FlashMap) bool {
		return fm.Matches(path, query)
	}, s.now())
	if err != nil {
		return nil, fmt.Errorf("не удалось извлечь flash-атрибуты сессии '%s': %w", sessionID, err)
	}
	if fm != nil {
		s.logger.Debug("flash-атрибуты выданы запросу",
			slog.String("request_id", req.ID.String()),
			slog.String("flash_id", fm.ID.String()),
		)
	}
	return fm, nil
}

// SaveOutputFlashMap сохраняет непустую FlashMap. Если у клиента еще нет
// flash-сессии, выдается новая cookie.
func (s *Store) SaveOutputFlashMap(ctx context.Context, fm *mvc.FlashMap, req *mvc.Request) error {
	if fm == nil || fm.IsEmpty() {
		return nil
	}
	if fm.ExpiresAt.IsZero() {
		fm.StartExpirationPeriod(s.now(), mvc.DefaultFlashMapTimeout)
	}

	sessionID, ok := s.sessionID(req)
	if !ok {
		sessionID = uuid.NewString()
		req.Attributes().Set(sessionAttribute, sessionID)
		http.SetCookie(req.Response, &http.Cookie{
			Name:     s.cookieName,
			Value:    sessionID,
			Path:     s.cookiePath,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	if err := s.storage.Save(ctx, sessionID, fm); err != nil {
		return fmt.Errorf("не удалось сохранить flash-атрибуты сессии '%s': %w", sessionID, err)
	}
	return nil
}

func (s *Store) sessionID(req *mvc.Request) (string, bool) {
	if id, ok := req.Attributes().Get(sessionAttribute).(string); ok {
		return id, true
	}
	c, err := req.HTTP.Cookie(s.cookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Pick возвращает индекс самой точно адресованной FlashMap, удовлетворяющей
// match, или -1. При равной точности выбирается сохраненная раньше.
func Pick(maps []*mvc.FlashMap, match func(*mvc.FlashMap) bool) int {
	best := -1
	for i, fm := range maps {
		if !match(fm) {
			continue
		}
		if best < 0 || fm.Specificity() > maps[best].Specificity() {
			best = i
		}
	}
	return best
}
