package testutil

import (
	"net/http"

	"kyb/pkg/requestcontext"
)

// WithRequestID attaches a correlation id as the request middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
