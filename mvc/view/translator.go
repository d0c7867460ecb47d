package view

import (
	"path"
	"strings"

	"github.com/x-research-team/dtx-webmvc/mvc"
)

// DefaultViewNameTranslator выводит имя представления из пути запроса:
// "/users/list.html" превращается в "users/list".
type DefaultViewNameTranslator struct {
	Prefix string
	Suffix string
	// KeepExtension сохраняет расширение файла в имени.
	KeepExtension bool
	// Separator заменяет "/" в имени, если задан.
	Separator string
}

var _ mvc.ViewNameTranslator = (*DefaultViewNameTranslator)(nil)

// ViewName возвращает имя представления или пустую строку для корневого пути.
func (t *DefaultViewNameTranslator) ViewName(req *mvc.Request) (string, error) {
	p := strings.Trim(req.Path(), "/")
	if !t.KeepExtension {
		if ext := path.Ext(p); ext != "" {
			p = strings.TrimSuffix(p, ext)
		}
	}
	if p == "" {
		return "", nil
	}
	if t.Separator != "" && t.Separator != "/" {
		p = strings.ReplaceAll(p, "/", t.Separator)
	}
	return t.Prefix + p + t.Suffix, nil
}
