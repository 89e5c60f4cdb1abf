package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the auth gateway. Detail carries
// the human readable message from the response body when the gateway
// provided one.
type APIError struct {
	Status int
	Detail string
	Raw    []byte
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("auth gateway: %s (status %d)", e.Detail, e.Status)
	}
	return fmt.Sprintf("auth gateway: request rejected with status %d %s", e.Status, http.StatusText(e.Status))
}

// StatusCode returns the HTTP status of the rejected request.
func (e *APIError) StatusCode() int {
	return e.Status
}

// ErrorDetail returns the detail message extracted from the response
// body, empty when the body carried none.
func (e *APIError) ErrorDetail() string {
	return e.Detail
}

// newAPIError extracts the {"detail": "..."} shape the gateway uses for
// rejections. Bodies in any other shape are kept raw.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		payload.Detail = ""
	}

	return &APIError{
		Status: status,
		Detail: payload.Detail,
		Raw:    body,
	}
}
