// Package errors provides structured error handling for searchsync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Search engine errors
//   - 3XX: Content repository errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryEngine indicates search-engine errors.
	CategoryEngine Category = "ENGINE"
	// CategoryRepository indicates content-repository errors.
	CategoryRepository Category = "REPOSITORY"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Search engine errors (200-299)
	ErrCodeEngineUnavailable  = "ERR_201_ENGINE_UNAVAILABLE"
	ErrCodeEngineForbidden    = "ERR_202_ENGINE_FORBIDDEN"
	ErrCodeProvisioningFailed = "ERR_203_PROVISIONING_FAILED"
	ErrCodeTaskTimeout        = "ERR_204_TASK_TIMEOUT"
	ErrCodeIndexFailed        = "ERR_205_INDEX_FAILED"
	ErrCodeSearchFailed       = "ERR_206_SEARCH_FAILED"

	// Content repository errors (300-399)
	ErrCodeRepoUnavailable    = "ERR_301_REPO_UNAVAILABLE"
	ErrCodeRenditionPending   = "ERR_302_RENDITION_PENDING"
	ErrCodeContentUnavailable = "ERR_303_CONTENT_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeUnknownChangeKind = "ERR_402_UNKNOWN_CHANGE_KIND"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
	ErrCodeSyncBusy = "ERR_502_SYNC_BUSY"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryEngine
	case '3':
		return CategoryRepository
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeProvisioningFailed, ErrCodeTaskTimeout, ErrCodeConfigInvalid, ErrCodeConfigNotFound:
		return SeverityFatal
	case ErrCodeIndexFailed, ErrCodeRenditionPending, ErrCodeSyncBusy:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code are worth
// retrying. Transient transport failures and the model access-control
// propagation window are retryable; contract violations are not.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEngineUnavailable, ErrCodeEngineForbidden, ErrCodeRepoUnavailable, ErrCodeRenditionPending:
		return true
	default:
		return false
	}
}
