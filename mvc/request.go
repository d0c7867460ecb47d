package mvc

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"
)

// Request — контекст одного запроса на время диспетчеризации.
// Не разделяется между запросами и не требует синхронизации.
type Request struct {
	// ID — уникальный идентификатор запроса для логирования и трассировки.
	ID uuid.UUID
	// HTTP — исходный HTTP-запрос.
	HTTP *http.Request
	// Response — приемник ответа.
	Response *Response

	attrs         *Attributes
	form          *multipart.Form
	include       bool
	async         *AsyncManager
	rewrittenFrom *Request
}

// NewRequest создает контекст запроса поверх HTTP-запроса и приемника ответа.
func NewRequest(w http.ResponseWriter, r *http.Request) *Request {
	resp, ok := w.(*Response)
	if !ok {
		resp = NewResponse(w)
	}
	return &Request{
		ID:       uuid.New(),
		HTTP:     r,
		Response: resp,
		attrs:    NewAttributes(),
		async:    newAsyncManager(),
	}
}

// Context возвращает контекст HTTP-запроса.
func (r *Request) Context() context.Context {
	return r.HTTP.Context()
}

// Method возвращает HTTP-метод запроса.
func (r *Request) Method() string {
	return r.HTTP.Method
}

// Path возвращает путь запроса.
func (r *Request) Path() string {
	return r.HTTP.URL.Path
}

// Header возвращает заголовки запроса.
func (r *Request) Header() http.Header {
	return r.HTTP.Header
}

// Attributes возвращает атрибуты запроса.
func (r *Request) Attributes() *Attributes {
	return r.attrs
}

// Async возвращает менеджер асинхронной обработки запроса.
func (r *Request) Async() *AsyncManager {
	return r.async
}

// SetInclude помечает запрос как включение (include) в другой запрос.
// Для таких запросов диспетчер сохраняет и восстанавливает снимок атрибутов.
func (r *Request) SetInclude(include bool) {
	r.include = include
}

// IsInclude сообщает, является ли запрос включением.
func (r *Request) IsInclude() bool {
	return r.include
}

// WithMultipart возвращает переписанный запрос с разобранной multipart-формой.
// Атрибуты, ответ и состояние асинхронной обработки разделяются с исходным запросом.
func (r *Request) WithMultipart(form *multipart.Form) *Request {
	cp := *r
	cp.form = form
	cp.rewrittenFrom = r
	return &cp
}

// MultipartForm возвращает разобранную multipart-форму или nil.
func (r *Request) MultipartForm() *multipart.Form {
	return r.form
}

// Original возвращает запрос, из которого был получен переписанный запрос, или сам запрос.
func (r *Request) Original() *Request {
	if r.rewrittenFrom != nil {
		return r.rewrittenFrom.Original()
	}
	return r
}

// StartAsync переводит запрос в асинхронный режим. Результат передается позже
// через AsyncContext.Complete.
func (r *Request) StartAsync() (*AsyncContext, error) {
	return r.async.start()
}

// StartAsyncTask переводит запрос в асинхронный режим и выполняет задачу в пуле
// воркеров диспетчера. Результат задачи завершает обработку запроса.
func (r *Request) StartAsyncTask(task AsyncTask) error {
	return r.async.startTask(r.Context(), task)
}

// Response — приемник ответа, откладывающий запись статуса до первой записи тела.
type Response struct {
	w         http.ResponseWriter
	status    int
	committed bool
	written   int64
}

// NewResponse оборачивает http.ResponseWriter.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// Header возвращает заголовки ответа.
func (r *Response) Header() http.Header {
	return r.w.Header()
}

// SetStatus задает код статуса, который будет записан вместе с телом ответа.
// Не действует после фиксации ответа.
func (r *Response) SetStatus(status int) {
	if !r.committed {
		r.status = status
	}
}

// WriteHeader фиксирует ответ с указанным статусом.
func (r *Response) WriteHeader(status int) {
	if r.committed {
		return
	}
	r.status = status
	r.committed = true
	r.w.WriteHeader(status)
}

// Write записывает тело ответа, фиксируя ответ при первой записи.
func (r *Response) Write(b []byte) (int, error) {
	if !r.committed {
		status := r.status
		if status == 0 {
			status = http.StatusOK
		}
		r.WriteHeader(status)
	}
	n, err := r.w.Write(b)
	r.written += int64(n)
	return n, err
}

// SendError фиксирует ответ с кодом ошибки и коротким текстовым телом.
func (r *Response) SendError(status int, message string) {
	if r.committed {
		return
	}
	if message == "" {
		message = http.StatusText(status)
	}
	h := r.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	r.WriteHeader(status)
	_, _ = r.Write([]byte(message + "\n"))
}

// Status возвращает записанный или запланированный код статуса.
func (r *Response) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Committed сообщает, был ли уже записан статус ответа.
func (r *Response) Committed() bool {
	return r.committed
}

// Written возвращает количество записанных байт тела.
func (r *Response) Written() int64 {
	return r.written
}

// Unwrap возвращает исходный http.ResponseWriter для http.ResponseController.
func (r *Response) Unwrap() http.ResponseWriter {
	return r.w
}
