package mvc

import "fmt"

// ModelAndView — результат обработчика: имя представления либо готовое
// представление (взаимоисключающие), модель и необязательный код статуса.
type ModelAndView struct {
	viewName string
	view     View
	model    *Model
	status   int
	cleared  bool
}

// NewModelAndView создает результат со ссылкой на представление по имени.
func NewModelAndView(viewName string, model ...*Model) *ModelAndView {
	mv := &ModelAndView{viewName: viewName}
	for _, m := range model {
		mv.Model().Merge(m)
	}
	return mv
}

// NewModelAndViewWithView создает результат с готовым объектом представления.
func NewModelAndViewWithView(view View, model ...*Model) *ModelAndView {
	mv := &ModelAndView{view: view}
	for _, m := range model {
		mv.Model().Merge(m)
	}
	return mv
}

// ViewName возвращает имя представления или пустую строку.
func (mv *ModelAndView) ViewName() string {
	return mv.viewName
}

// SetViewName устанавливает имя представления и сбрасывает объект представления.
func (mv *ModelAndView) SetViewName(name string) *ModelAndView {
	mv.viewName = name
	mv.view = nil
	mv.cleared = false
	return mv
}

// View возвращает готовый объект представления или nil.
func (mv *ModelAndView) View() View {
	return mv.view
}

// SetView устанавливает объект представления и сбрасывает имя представления.
func (mv *ModelAndView) SetView(view View) *ModelAndView {
	mv.view = view
	mv.viewName = ""
	mv.cleared = false
	return mv
}

// HasView сообщает, задано ли имя или объект представления.
func (mv *ModelAndView) HasView() bool {
	return mv.viewName != "" || mv.view != nil
}

// IsReference сообщает, задано ли представление по имени.
func (mv *ModelAndView) IsReference() bool {
	return mv.viewName != ""
}

// Model возвращает модель, создавая ее при первом обращении.
func (mv *ModelAndView) Model() *Model {
	if mv.model == nil {
		mv.model = &Model{}
	}
	return mv.model
}

// AddObject добавляет значение в модель.
func (mv *ModelAndView) AddObject(key string, value any) *ModelAndView {
	mv.Model().Set(key, value)
	mv.cleared = false
	return mv
}

// Status возвращает код статуса ответа или 0, если он не задан.
func (mv *ModelAndView) Status() int {
	return mv.status
}

// SetStatus задает код статуса ответа.
func (mv *ModelAndView) SetStatus(status int) *ModelAndView {
	mv.status = status
	return mv
}

// Clear очищает результат. Очищенный результат не отрисовывается.
func (mv *ModelAndView) Clear() {
	mv.viewName = ""
	mv.view = nil
	mv.model = nil
	mv.cleared = true
}

// IsEmpty сообщает, что результат не содержит ни представления, ни модели.
func (mv *ModelAndView) IsEmpty() bool {
	return !mv.HasView() && mv.model.Len() == 0
}

// WasCleared сообщает, что результат был очищен и остается пустым.
func (mv *ModelAndView) WasCleared() bool {
	return mv.cleared && mv.IsEmpty()
}

func (mv *ModelAndView) String() string {
	view := "[" + mv.viewName + "]"
	if !mv.IsReference() {
		view = fmt.Sprintf("[%T]", mv.view)
	}
	return fmt.Sprintf("ModelAndView: view %s; model %s", view, mv.model)
}
