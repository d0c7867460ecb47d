// Package multipart реализует разбор multipart/form-data запросов с
// гарантированным удалением временных файлов.
package multipart

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// DefaultMaxMemory — объем частей, хранимых в памяти; остальное пишется во временные файлы.
const DefaultMaxMemory = 32 << 20

// Option настраивает Resolver.
type Option func(*Resolver)

// WithMaxMemory задает объем частей, хранимых в памяти.
func WithMaxMemory(n int64) Option {
	return func(r *Resolver) {
		r.maxMemory = n
	}
}

// WithMaxRequestSize ограничивает размер тела запроса. 0 означает без ограничения.
func WithMaxRequestSize(n int64) Option {
	return func(r *Resolver) {
		r.maxRequestSize = n
	}
}

// WithLogger устанавливает логгер.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver реализует mvc.MultipartResolver поверх mime/multipart.
type Resolver struct {
	maxMemory      int64
	maxRequestSize int64
	logger         *slog.Logger
}

var _ mvc.MultipartResolver = (*Resolver)(nil)

// NewResolver создает multipart-разрешатель.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		maxMemory: DefaultMaxMemory,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsMultipart сообщает, что запрос имеет тип multipart/*.
func (r *Resolver) IsMultipart(req *mvc.Request) bool {
	ct := req.Header().Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

// ResolveMultipart разбирает тело запроса и возвращает переписанный запрос.
func (r *Resolver) ResolveMultipart(_ context.Context, req *mvc.Request) (*mvc.Request, error) {
	if r.maxRequestSize > 0 {
		req.HTTP.Body = http.MaxBytesReader(req.Response, req.HTTP.Body, r.maxRequestSize)
	}
	reader, err := req.HTTP.MultipartReader()
	if err != nil {
		return nil, &mvc.MultipartError{Err: err}
	}
	form, err := reader.ReadForm(r.maxMemory)
	if err != nil {
		return nil, &mvc.MultipartError{Err: fmt.Errorf("не удалось прочитать multipart-форму: %w", err)}
	}
	req.HTTP.MultipartForm = form
	return req.WithMultipart(form), nil
}

// Cleanup удаляет временные файлы формы.
func (r *Resolver) Cleanup(req *mvc.Request) error {
	form := req.MultipartForm()
	if form == nil {
		return nil
	}
	if err := form.RemoveAll(); err != nil {
		r.logger.Warn("не удалось удалить временные файлы multipart-формы",
			slog.String("request_id", req.ID.String()),
			slog.Any("error", err),
		)
		return fmt.Errorf("не удалось удалить временные файлы multipart-формы: %w", err)
	}
	return nil
}
