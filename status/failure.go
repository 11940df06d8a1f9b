package status

import (
	"fmt"
	"net/http"
)

// FailureReason describes why a sensor could not be fetched
type FailureReason string

const (
	AuthFailure      FailureReason = "auth"
	NotFoundFailure  FailureReason = "not_found"
	HTTPFailure      FailureReason = "http"
	TransportFailure FailureReason = "transport"
)

// ReasonForStatusCode buckets an HTTP status code into a failure reason
func ReasonForStatusCode(code int) FailureReason {
	switch code {
	case http.StatusForbidden:
		return AuthFailure
	case http.StatusNotFound:
		return NotFoundFailure
	default:
		return HTTPFailure
	}
}

// HTTPError labels a sensor whose API call returned a non-success status
func HTTPError(code int) Result {
	label := fmt.Sprintf("❌ HTTP %d", code)
	switch ReasonForStatusCode(code) {
	case AuthFailure:
		label += " (Invalid API Key?)"
	case NotFoundFailure:
		label += " (Not Found)"
	}
	return newResult(FetchError, label)
}

// RequestError labels a sensor whose API call got no usable response
func RequestError() Result {
	return newResult(FetchError, "❌ Request Error")
}
