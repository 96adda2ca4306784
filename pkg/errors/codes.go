package errors

// Code is a machine-readable error identifier of the form CATEGORY_NNN.
// Codes are stable once assigned and are safe to match on in callers,
// dashboards, and alert rules.
type Code string

const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside its accepted range.
	CodeValidationRange Code = "VAL_004"

	// CodeUnknownPhase indicates a phase name that is not registered.
	CodeUnknownPhase Code = "VAL_005"

	// CodeAuthentication indicates missing or invalid credentials.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates an expired bearer token.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates a malformed or unverifiable token.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthorization indicates the caller lacks permission.
	CodeAuthorization Code = "AUTHZ_001"

	// CodeNotFound indicates a record does not exist.
	CodeNotFound Code = "NF_001"

	// CodeConflict indicates a general state conflict.
	CodeConflict Code = "CONF_001"

	// CodeInvalidTransition indicates a workflow status change that the
	// state machine does not allow, such as leaving a terminal state.
	CodeInvalidTransition Code = "CONF_004"

	// CodeQuotaExceeded indicates the daily execution budget would be
	// overrun. Never retried automatically.
	CodeQuotaExceeded Code = "RATE_001"

	// CodeRateLimited indicates a caller exceeded the request rate.
	CodeRateLimited Code = "RATE_002"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a key-value store operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodePhaseModelMismatch indicates a phase was about to run on an
	// agent other than the one the registry designates. This is a wiring
	// defect, not a transient fault.
	CodePhaseModelMismatch Code = "INT_004"

	// CodeExecutor indicates the phase executor reported a failure
	// (upstream timeout, remote rejection, malformed output).
	CodeExecutor Code = "UPSTREAM_001"

	// CodeUnavailable indicates a service is temporarily unavailable.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependency cannot be reached.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeTimeout indicates a general timeout.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a store operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the code as a plain string.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("VAL",
// "RATE", ...). A code without an underscore is its own category.
func (c Code) Category() string {
	s := string(c)
	for i := 0; i < len(s); i++ {
		if s[i] == '_' {
			return s[:i]
		}
	}
	return s
}
