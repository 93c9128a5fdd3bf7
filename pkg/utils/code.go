package utils

import "net/http"

// ResponseCode business response code
type ResponseCode int

const (
	CodeSuccess ResponseCode = 0

	// Caller errors
	CodeInvalidParam      ResponseCode = 1001
	CodeUnauthorized      ResponseCode = 1002
	CodeForbidden         ResponseCode = 1003
	CodeNotFound          ResponseCode = 1004
	CodeInvalidTransition ResponseCode = 1005
	CodeConflict          ResponseCode = 1006
	CodeRateLimit         ResponseCode = 1007

	// Domain errors
	CodeOrderNotFound        ResponseCode = 2001
	CodeVendorNotFound       ResponseCode = 2101
	CodeVendorExists         ResponseCode = 2102
	CodeVendorInactive       ResponseCode = 2103
	CodeConversationNotFound ResponseCode = 2201
	CodeTicketNotFound       ResponseCode = 2301

	// System errors
	CodeInternalError         ResponseCode = 5000
	CodeDependencyUnavailable ResponseCode = 5001
	CodeDatabaseError         ResponseCode = 5002
	CodeRedisError            ResponseCode = 5003
)

// HTTPStatus maps a response code onto the HTTP status used to return it
func (c ResponseCode) HTTPStatus() int {
	switch c {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeOrderNotFound, CodeVendorNotFound, CodeConversationNotFound, CodeTicketNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case CodeConflict, CodeVendorExists:
		return http.StatusConflict
	case CodeVendorInactive:
		return http.StatusUnprocessableEntity
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeDependencyUnavailable, CodeDatabaseError, CodeRedisError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the failed operation
func (c ResponseCode) Retryable() bool {
	switch c {
	case CodeConflict, CodeDependencyUnavailable, CodeDatabaseError, CodeRedisError:
		return true
	default:
		return false
	}
}
