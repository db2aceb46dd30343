package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidQuery    = 1003
	ErrCodeInvalidID       = 1004
	ErrCodeInvalidTags     = 1005
	ErrCodeMissingRequired = 1006
	ErrCodeInvalidUpload   = 1007

	// Domain state (2xxx)
	ErrCodeImageNotFound = 2001

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal              = 4001
	ErrCodeStoreFailure          = 4002
	ErrCodeInconsistentState     = 4003
	ErrCodeDuplicateID           = 4004
	ErrCodeClassifierFailure     = 4005
	ErrCodeClassifierUnavailable = 4006
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeImageNotFound
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 502:
		return ErrCodeClassifierFailure
	case 503:
		return ErrCodeClassifierUnavailable
	default:
		return 0
	}
}
