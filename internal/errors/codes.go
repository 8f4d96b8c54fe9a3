// Package errors provides structured error handling for fsindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, content storage)
//   - 3XX: Transport errors (daemon socket)
//   - 4XX: Validation errors
//   - 5XX: Internal errors and broken invariants
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryTransport indicates daemon transport errors.
	CategoryTransport Category = "TRANSPORT"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the current operation must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull       = "ERR_203_DISK_FULL"
	ErrCodeStorageRead    = "ERR_204_STORAGE_READ"
	ErrCodeStorageWrite   = "ERR_205_STORAGE_WRITE"
	ErrCodeStorageLocked  = "ERR_206_STORAGE_LOCKED"
	ErrCodeWatchFailed    = "ERR_207_WATCH_FAILED"

	// Transport errors (300-399)
	ErrCodeDaemonUnavailable = "ERR_301_DAEMON_UNAVAILABLE"
	ErrCodeDaemonTimeout     = "ERR_302_DAEMON_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidTerm  = "ERR_402_INVALID_TERM"
	ErrCodeInvalidPath  = "ERR_403_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIndexFailed  = "ERR_505_INDEX_FAILED"
	ErrCodeSearchFailed = "ERR_506_SEARCH_FAILED"
	ErrCodeUnknownID    = "ERR_507_UNKNOWN_ID"
	ErrCodeLockState    = "ERR_508_LOCK_STATE"
	ErrCodeNoMapper     = "ERR_509_NO_MAPPER"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryTransport
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDiskFull, ErrCodeUnknownID, ErrCodeLockState, ErrCodeNoMapper:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeDaemonUnavailable, ErrCodeDaemonTimeout, ErrCodeStorageLocked:
		return true
	default:
		return false
	}
}
