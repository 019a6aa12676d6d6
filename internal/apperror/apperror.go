package apperror

import "errors"

// Kind - категория ошибки сервиса. Обработчики HTTP выбирают по ней статус ответа.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	// KindConfirmationRequired - операция ждёт явного выбора администратора,
	// например у пользователя уже есть действующий код.
	KindConfirmationRequired Kind = "confirmation_required"
	// KindUnavailable - временно недоступна внешняя зависимость (Redis, брокер).
	KindUnavailable Kind = "unavailable"
)

// Error - ошибка с категорией. Msg можно отдавать клиенту, Err остаётся во внутренних логах.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(msg string, err error) error    { return New(KindNotFound, msg, err) }
func Validation(msg string, err error) error  { return New(KindValidation, msg, err) }
func Conflict(msg string, err error) error    { return New(KindConflict, msg, err) }
func Unavailable(msg string, err error) error { return New(KindUnavailable, msg, err) }

func ConfirmationRequired(msg string, err error) error {
	return New(KindConfirmationRequired, msg, err)
}

// KindOf возвращает категорию первой *Error в цепочке или пустую строку.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return kind != "" && KindOf(err) == kind
}
