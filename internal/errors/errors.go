package errors

import (
	stderrors "errors"
	"fmt"
)

// FsError is an error with a stable code. Category, severity and
// retryability follow from the code; see codes.go.
type FsError struct {
	Code       string // ERR_<nnn>_<NAME>
	Message    string
	Category   Category
	Severity   Severity
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string // shown to CLI users under the message
}

func (e *FsError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FsError) Unwrap() error {
	return e.Cause
}

// Is matches any *FsError carrying the same code, so package-level
// sentinels such as locker.ErrLockState work with errors.Is.
func (e *FsError) Is(target error) bool {
	t, ok := target.(*FsError)
	return ok && t.Code == e.Code
}

// WithDetail attaches a key/value pair and returns e.
func (e *FsError) WithDetail(key, value string) *FsError {
	if e.Details == nil {
		e.Details = make(map[string]string, 1)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the hint printed by FormatForCLI and returns e.
func (e *FsError) WithSuggestion(suggestion string) *FsError {
	e.Suggestion = suggestion
	return e
}

// New builds an FsError for code.
func New(code, message string, cause error) *FsError {
	return &FsError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap uses err's text as the message. A nil err yields nil.
func Wrap(code string, err error) *FsError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError reports an invalid configuration.
func ConfigError(message string, cause error) *FsError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError reports a failed write to the content cache.
func StorageError(message string, cause error) *FsError {
	return New(ErrCodeStorageWrite, message, cause)
}

// TransportError reports an unreachable daemon. It is retryable.
func TransportError(message string, cause error) *FsError {
	return New(ErrCodeDaemonUnavailable, message, cause)
}

// ValidationError reports bad request input.
func ValidationError(message string, cause error) *FsError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError reports a broken invariant.
func InternalError(message string, cause error) *FsError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first FsError in err's chain.
func As(err error) (*FsError, bool) {
	var fe *FsError
	if stderrors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable code.
func IsRetryable(err error) bool {
	fe, ok := As(err)
	return ok && fe.Retryable
}

// IsFatal reports whether err is fatal. Fatal errors end the operation
// that raised them; the daemon keeps serving.
func IsFatal(err error) bool {
	fe, ok := As(err)
	return ok && fe.Severity == SeverityFatal
}

// GetCode returns err's code, or "" when err is not an FsError.
func GetCode(err error) string {
	if fe, ok := As(err); ok {
		return fe.Code
	}
	return ""
}

// GetCategory returns err's category, or "" when err is not an FsError.
func GetCategory(err error) Category {
	if fe, ok := As(err); ok {
		return fe.Category
	}
	return ""
}
