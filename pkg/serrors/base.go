package serrors

// BaseError is a coded error shared by cross-cutting packages. Code is a
// stable machine-readable identifier; LocaleKey points at a translation
// entry for user-facing rendering and may be empty for internal errors.
type BaseError struct {
	Code      string
	Message   string
	LocaleKey string
}

func (e *BaseError) Error() string {
	return e.Message
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}
