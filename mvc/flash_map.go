package mvc

import (
	"net/url"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DefaultFlashMapTimeout — время жизни FlashMap по умолчанию.
const DefaultFlashMapTimeout = 180 * time.Second

// FlashMap — одноразовый набор атрибутов, передаваемый следующему запросу,
// обычно через перенаправление.
type FlashMap struct {
	ID uuid.UUID
	// TargetPath — путь запроса, которому предназначены атрибуты. Пустой путь подходит любому запросу.
	TargetPath string
	// TargetParams — параметры запроса, которые должны присутствовать у получателя.
	TargetParams url.Values
	// ExpiresAt — момент истечения. Нулевое значение означает, что срок не задан.
	ExpiresAt time.Time

	attrs orderedMap
}

// NewFlashMap создает пустую FlashMap.
func NewFlashMap() *FlashMap {
	return &FlashMap{ID: uuid.New(), TargetParams: url.Values{}}
}

// Set добавляет атрибут.
func (f *FlashMap) Set(key string, value any) *FlashMap {
	f.attrs.set(key, value)
	return f
}

// Get возвращает значение атрибута или nil.
func (f *FlashMap) Get(key string) any {
	v, _ := f.attrs.get(key)
	return v
}

// Keys возвращает ключи атрибутов в порядке добавления.
func (f *FlashMap) Keys() []string {
	return f.attrs.names()
}

// Len возвращает количество атрибутов.
func (f *FlashMap) Len() int {
	return len(f.attrs.keys)
}

// IsEmpty сообщает, что FlashMap не содержит атрибутов.
func (f *FlashMap) IsEmpty() bool {
	return f.Len() == 0
}

// Attributes возвращает копию атрибутов.
func (f *FlashMap) Attributes() map[string]any {
	out := make(map[string]any, f.Len())
	for _, k := range f.attrs.keys {
		out[k] = f.attrs.values[k]
	}
	return out
}

// StartExpirationPeriod задает срок жизни, отсчитываемый от now.
func (f *FlashMap) StartExpirationPeriod(now time.Time, timeout time.Duration) {
	f.ExpiresAt = now.Add(timeout)
}

// IsExpired сообщает, истек ли срок жизни к моменту now.
func (f *FlashMap) IsExpired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && !now.Before(f.ExpiresAt)
}

// Matches сообщает, предназначена ли FlashMap запросу с данным путем и параметрами.
func (f *FlashMap) Matches(path string, query url.Values) bool {
	if f.TargetPath != "" && f.TargetPath != path {
		return false
	}
	for name, expected := range f.TargetParams {
		actual := query[name]
		for _, v := range expected {
			if !slices.Contains(actual, v) {
				return false
			}
		}
	}
	return true
}

// Specificity возвращает меру точности адресации: больше — точнее.
func (f *FlashMap) Specificity() int {
	n := len(f.TargetParams)
	if f.TargetPath != "" {
		n += 1 << 16
	}
	return n
}
