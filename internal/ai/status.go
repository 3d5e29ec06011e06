package ai

import "fmt"

// StatusCategory is a short human-readable class for a provider HTTP status.
// Consulted only when logging errors, never for control flow.
type StatusCategory string

const (
	CategoryBadRequest    StatusCategory = "bad request"
	CategoryUnauthorized  StatusCategory = "invalid credentials"
	CategoryQuotaExceeded StatusCategory = "quota exhausted"
	CategoryUnprocessable StatusCategory = "unprocessable input"
	CategoryRateLimited   StatusCategory = "rate limited"
	CategoryServerError   StatusCategory = "provider internal error"
	CategoryUnavailable   StatusCategory = "provider unavailable"
	CategoryUnknown       StatusCategory = "unexpected status"
)

var statusCategories = map[int]StatusCategory{
	400: CategoryBadRequest,
	401: CategoryUnauthorized,
	402: CategoryQuotaExceeded,
	422: CategoryUnprocessable,
	429: CategoryRateLimited,
	500: CategoryServerError,
	503: CategoryUnavailable,
}

// CategoryForStatus maps an HTTP status code to its category.
func CategoryForStatus(code int) StatusCategory {
	if c, ok := statusCategories[code]; ok {
		return c
	}
	return CategoryUnknown
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider status %d (%s): %s", e.Code, CategoryForStatus(e.Code), e.Body)
}

// Category returns the logging category for the failed status.
func (e *StatusError) Category() StatusCategory {
	return CategoryForStatus(e.Code)
}
