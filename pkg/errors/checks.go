package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether the first *Error in err's chain has code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

func hasCategory(err error, category string) bool {
	e, ok := AsError(err)
	return ok && e.Code.Category() == category
}

// IsValidation reports a VAL_xxx error.
func IsValidation(err error) bool { return hasCategory(err, "VAL") }

// IsAuthentication reports an AUTH_xxx error.
func IsAuthentication(err error) bool { return hasCategory(err, "AUTH") }

// IsNotFound reports an NF_xxx error.
func IsNotFound(err error) bool { return hasCategory(err, "NF") }

// IsConflict reports a CONF_xxx error.
func IsConflict(err error) bool { return hasCategory(err, "CONF") }

// IsInternal reports an INT_xxx error.
func IsInternal(err error) bool { return hasCategory(err, "INT") }

// IsTimeout reports a TIMEOUT_xxx error.
func IsTimeout(err error) bool { return hasCategory(err, "TIMEOUT") }

// IsQuotaExceeded reports a daily quota rejection.
func IsQuotaExceeded(err error) bool { return HasCode(err, CodeQuotaExceeded) }

// IsPhaseModelMismatch reports a role-separation violation.
func IsPhaseModelMismatch(err error) bool { return HasCode(err, CodePhaseModelMismatch) }

// IsExecutor reports a phase executor failure.
func IsExecutor(err error) bool { return hasCategory(err, "UPSTREAM") }

// IsRetryable reports whether the failure is transient. Quota rejections
// and executor failures are deliberately not retryable: the engine never
// retries within a workflow run.
func IsRetryable(err error) bool {
	return hasCategory(err, "TIMEOUT") || hasCategory(err, "UNAVAIL")
}
