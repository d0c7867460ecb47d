// Package view содержит встроенные представления, разрешатели представлений
// и транслятор имени представления по умолчанию.
package view

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// Ключи модели, которые шаблон получает помимо значений модели.
const (
	ModelKey      = "Model"
	RequestKey    = "Request"
	FlashKey      = "Flash"
	ErrorKey      = "Error"
	StatusCodeKey = "StatusCode"
)

// TemplateView отрисовывает html/template. Шаблон получает значения модели,
// входящие flash-атрибуты и атрибуты ошибки, если они выставлены.
type TemplateView struct {
	Template    *template.Template
	ContentType string
}

var _ mvc.View = (*TemplateView)(nil)

// Render исполняет шаблон в буфер и записывает результат только при успехе,
// чтобы ошибка шаблона не оставляла частично записанный ответ.
func (v *TemplateView) Render(_ context.Context, model *mvc.Model, req *mvc.Request) error {
	data := model.Map()
	data[ModelKey] = model
	data[RequestKey] = req.HTTP
	if in, ok := req.Attributes().Get(mvc.InputFlashMapAttribute).(*mvc.FlashMap); ok {
		data[FlashKey] = in.Attributes()
	}
	if err := req.Attributes().Get(mvc.ErrorExceptionAttribute); err != nil {
		data[ErrorKey] = err
		data[StatusCodeKey] = req.Attributes().Get(mvc.ErrorStatusCodeAttribute)
	}

	var buf bytes.Buffer
	if err := v.Template.Execute(&buf, data); err != nil {
		return fmt.Errorf("ошибка исполнения шаблона '%s': %w", v.Template.Name(), err)
	}

	contentType := v.ContentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	req.Response.Header().Set("Content-Type", contentType)
	_, err := buf.WriteTo(req.Response)
	return err
}

// JSONView сериализует модель в JSON с сохранением порядка ключей.
// Если задан Key, сериализуется только значение модели под этим ключом.
type JSONView struct {
	Key    string
	Indent string
}

var _ mvc.View = (*JSONView)(nil)

// Render записывает модель в формате JSON.
func (v *JSONView) Render(_ context.Context, model *mvc.Model, req *mvc.Request) error {
	var payload any = model
	if v.Key != "" {
		payload = model.Get(v.Key)
	}

	var (
		body []byte
		err  error
	)
	if v.Indent != "" {
		body, err = json.MarshalIndent(payload, "", v.Indent)
	} else {
		body, err = json.Marshal(payload)
	}
	if err != nil {
		return fmt.Errorf("не удалось сериализовать модель в JSON: %w", err)
	}

	req.Response.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, err = req.Response.Write(append(body, '\n'))
	return err
}

// ProtoView сериализует модель через protojson. Значение под ключом Key,
// реализующее proto.Message, сериализуется как есть; иначе модель
// преобразуется в google.protobuf.Struct.
type ProtoView struct {
	Key     string
	Options protojson.MarshalOptions
}

var _ mvc.View = (*ProtoView)(nil)

// Render записывает модель в формате protojson.
func (v *ProtoView) Render(_ context.Context, model *mvc.Model, req *mvc.Request) error {
	msg, err := v.message(model)
	if err != nil {
		return err
	}
	body, err := v.Options.Marshal(msg)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать модель в protojson: %w", err)
	}
	req.Response.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, err = req.Response.Write(body)
	return err
}

func (v *ProtoView) message(model *mvc.Model) (proto.Message, error) {
	if v.Key != "" {
		if msg, ok := model.Get(v.Key).(proto.Message); ok {
			return msg, nil
		}
	}
	// structpb принимает только JSON-совместимые значения, поэтому модель
	// сначала проходит через encoding/json.
	raw, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("не удалось подготовить модель для protojson: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("не удалось подготовить модель для protojson: %w", err)
	}
	s, err := structpb.NewStruct(generic)
	if err != nil {
		return nil, fmt.Errorf("модель не может быть представлена как google.protobuf.Struct: %w", err)
	}
	return s, nil
}

// RedirectView перенаправляет клиента. Перед перенаправлением исходящая
// FlashMap запроса адресуется цели перенаправления и сохраняется в хранилище.
type RedirectView struct {
	URL string
	// Status — код перенаправления, по умолчанию 303 See Other.
	Status int
	// FlashTimeout — срок жизни flash-атрибутов, по умолчанию mvc.DefaultFlashMapTimeout.
	FlashTimeout time.Duration
	// Now позволяет подменить часы в тестах.
	Now func() time.Time
}

var _ mvc.View = (*RedirectView)(nil)

// Render сохраняет исходящую FlashMap и отправляет перенаправление.
func (v *RedirectView) Render(ctx context.Context, _ *mvc.Model, req *mvc.Request) error {
	target, err := url.Parse(v.URL)
	if err != nil {
		return fmt.Errorf("некорректный адрес перенаправления '%s': %w", v.URL, err)
	}
	if err := v.saveFlashMap(ctx, target, req); err != nil {
		return err
	}

	status := v.Status
	if status == 0 {
		status = http.StatusSeeOther
	}
	http.Redirect(req.Response, req.HTTP, v.URL, status)
	return nil
}

func (v *RedirectView) saveFlashMap(ctx context.Context, target *url.URL, req *mvc.Request) error {
	out, ok := req.Attributes().Get(mvc.OutputFlashMapAttribute).(*mvc.FlashMap)
	if !ok || out.IsEmpty() {
		return nil
	}
	store, ok := req.Attributes().Get(mvc.FlashMapStoreAttribute).(mvc.FlashMapStore)
	if !ok {
		return nil
	}

	path := target.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		base := req.Path()
		path = base[:strings.LastIndex(base, "/")+1] + path
	}
	out.TargetPath = path
	for name, values := range target.Query() {
		out.TargetParams[name] = append(out.TargetParams[name], values...)
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	timeout := v.FlashTimeout
	if timeout == 0 {
		timeout = mvc.DefaultFlashMapTimeout
	}
	out.StartExpirationPeriod(now(), timeout)

	if err := store.SaveOutputFlashMap(ctx, out, req); err != nil {
		return fmt.Errorf("не удалось сохранить flash-атрибуты: %w", err)
	}
	return nil
}
