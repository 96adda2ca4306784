// Package errors defines the structured error type shared by every
// contentflow package. An [Error] carries a stable machine-readable
// [Code], a message that is safe to show to API callers, an optional
// cause, and optional structured details.
//
// # Codes
//
// Codes follow the CATEGORY_NNN pattern. The category decides the HTTP
// status returned by the admin surface and whether a failure is worth
// retrying:
//
//   - VAL: request or configuration input is invalid
//   - AUTH / AUTHZ: the caller is not authenticated or not allowed
//   - NF: a record does not exist
//   - CONF: the operation conflicts with the current state
//   - RATE: a daily quota or request rate was exceeded
//   - INT: an internal defect or store failure
//   - UPSTREAM: a phase executor failed
//   - UNAVAIL / TIMEOUT: a dependency is down or slow
//
// # Usage
//
//	err := errors.Wrap(err, errors.CodeInternalDatabase, "workflow: failed to read entry")
//
//	if errors.IsQuotaExceeded(err) {
//	    // reject with 429, never retry automatically
//	}
package errors
