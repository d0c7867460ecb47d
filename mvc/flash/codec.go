package flash

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

type encodedAttribute struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type encodedFlashMap struct {
	ID           uuid.UUID          `json:"id"`
	TargetPath   string             `json:"target_path,omitempty"`
	TargetParams url.Values         `json:"target_params,omitempty"`
	ExpiresAt    time.Time          `json:"expires_at"`
	Attributes   []encodedAttribute `json:"attributes"`
}

// Encode сериализует FlashMap в JSON с сохранением порядка атрибутов.
// Значения атрибутов должны сериализоваться через encoding/json.
func Encode(fm *mvc.FlashMap) ([]byte, error) {
	enc := encodedFlashMap{
		ID:           fm.ID,
		TargetPath:   fm.TargetPath,
		TargetParams: fm.TargetParams,
		ExpiresAt:    fm.ExpiresAt,
		Attributes:   make([]encodedAttribute, 0, fm.Len()),
	}
	for _, k := range fm.Keys() {
		raw, err := json.Marshal(fm.Get(k))
		if err != nil {
			return nil, fmt.Errorf("не удалось сериализовать flash-атрибут '%s': %w", k, err)
		}
		enc.Attributes = append(enc.Attributes, encodedAttribute{Key: k, Value: raw})
	}
	return json.Marshal(enc)
}

// Decode восстанавливает FlashMap из JSON. Значения атрибутов получают
// обобщенные типы encoding/json.
func Decode(data []byte) (*mvc.FlashMap, error) {
	var enc encodedFlashMap
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("не удалось разобрать FlashMap: %w", err)
	}
	fm := mvc.NewFlashMap()
	fm.ID = enc.ID
	fm.TargetPath = enc.TargetPath
	if enc.TargetParams != nil {
		fm.TargetParams = enc.TargetParams
	}
	fm.ExpiresAt = enc.ExpiresAt
	for _, a := range enc.Attributes {
		var v any
		if err := json.Unmarshal(a.Value, &v); err != nil {
			return nil, fmt.Errorf("не удалось разобрать flash-атрибут '%s': %w", a.Key, err)
		}
		fm.Set(a.Key, v)
	}
	return fm, nil
}
