package mvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const attributePrefix = "dtx.webmvc."

// Имена служебных атрибутов запроса, выставляемых диспетчером.
const (
	LocaleResolverAttribute = attributePrefix + "LOCALE_RESOLVER"
	InputFlashMapAttribute  = attributePrefix + "INPUT_FLASH_MAP"
	OutputFlashMapAttribute = attributePrefix + "OUTPUT_FLASH_MAP"
	FlashMapStoreAttribute  = attributePrefix + "FLASH_MAP_STORE"
	ExceptionAttribute      = attributePrefix + "EXCEPTION"
	PathVariablesAttribute  = attributePrefix + "PATH_VARIABLES"
	DispatcherNameAttribute = attributePrefix + "DISPATCHER_NAME"
)

// Атрибуты, существующие только на время отрисовки представления ошибки.
const (
	ErrorExceptionAttribute  = "dtx.error.exception"
	ErrorStatusCodeAttribute = "dtx.error.status_code"
	ErrorRequestURIAttribute = "dtx.error.request_uri"
	ErrorDispatcherAttribute = "dtx.error.dispatcher_name"
)

// orderedMap — упорядоченное отображение строковых ключей на значения.
type orderedMap struct {
	keys   []string
	values map[string]any
}

func (m *orderedMap) set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *orderedMap) get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *orderedMap) remove(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *orderedMap) names() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Attributes — упорядоченный набор атрибутов запроса.
// Принадлежит одному вызову диспетчеризации и не синхронизирован.
type Attributes struct {
	m orderedMap
}

// NewAttributes создает пустой набор атрибутов.
func NewAttributes() *Attributes {
	return &Attributes{}
}

// Set устанавливает атрибут. Значение nil удаляет атрибут.
func (a *Attributes) Set(name string, value any) {
	if value == nil {
		a.m.remove(name)
		return
	}
	a.m.set(name, value)
}

// Get возвращает значение атрибута или nil.
func (a *Attributes) Get(name string) any {
	v, _ := a.m.get(name)
	return v
}

// Lookup возвращает значение атрибута и признак его наличия.
func (a *Attributes) Lookup(name string) (any, bool) {
	return a.m.get(name)
}

// Remove удаляет атрибут.
func (a *Attributes) Remove(name string) {
	a.m.remove(name)
}

// Names возвращает имена атрибутов в порядке добавления.
func (a *Attributes) Names() []string {
	return a.m.names()
}

// Len возвращает количество атрибутов.
func (a *Attributes) Len() int {
	return len(a.m.keys)
}

// Snapshot копирует атрибуты, имена которых удовлетворяют фильтру.
func (a *Attributes) Snapshot(keep func(name string) bool) *Attributes {
	snap := NewAttributes()
	for _, k := range a.m.keys {
		if keep == nil || keep(k) {
			snap.m.set(k, a.m.values[k])
		}
	}
	return snap
}

// Restore возвращает атрибуты к состоянию снимка: атрибуты, удовлетворяющие
// фильтру и отсутствующие в снимке, удаляются, остальные восстанавливаются.
func (a *Attributes) Restore(snap *Attributes, managed func(name string) bool) {
	for _, k := range a.m.names() {
		if managed != nil && !managed(k) {
			continue
		}
		if _, ok := snap.m.get(k); !ok {
			a.m.remove(k)
		}
	}
	for _, k := range snap.m.keys {
		a.m.set(k, snap.m.values[k])
	}
}

// Model — упорядоченная модель, передаваемая представлению.
type Model struct {
	m orderedMap
}

// NewModel создает модель из пар ключ-значение.
func NewModel(pairs ...any) *Model {
	model := &Model{}
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			key = fmt.Sprint(pairs[i])
		}
		model.Set(key, pairs[i+1])
	}
	return model
}

// Set добавляет или заменяет значение модели.
func (m *Model) Set(key string, value any) *Model {
	m.m.set(key, value)
	return m
}

// Get возвращает значение модели или nil.
func (m *Model) Get(key string) any {
	if m == nil {
		return nil
	}
	v, _ := m.m.get(key)
	return v
}

// Lookup возвращает значение модели и признак его наличия.
func (m *Model) Lookup(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	return m.m.get(key)
}

// Remove удаляет значение модели.
func (m *Model) Remove(key string) {
	m.m.remove(key)
}

// Keys возвращает ключи модели в порядке добавления.
func (m *Model) Keys() []string {
	if m == nil {
		return nil
	}
	return m.m.names()
}

// Len возвращает количество значений модели.
func (m *Model) Len() int {
	if m == nil {
		return 0
	}
	return len(m.m.keys)
}

// Merge добавляет в модель значения другой модели.
func (m *Model) Merge(other *Model) *Model {
	if other == nil {
		return m
	}
	for _, k := range other.m.keys {
		m.m.set(k, other.m.values[k])
	}
	return m
}

// Map возвращает копию модели в виде обычного отображения.
func (m *Model) Map() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for _, k := range m.m.keys {
		out[k] = m.m.values[k]
	}
	return out
}

// MarshalJSON сериализует модель с сохранением порядка ключей.
func (m *Model) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(m.m.values[k])
		if err != nil {
			return nil, fmt.Errorf("не удалось сериализовать значение модели '%s': %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *Model) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", k, m.m.values[k])
	}
	sb.WriteByte('}')
	return sb.String()
}
