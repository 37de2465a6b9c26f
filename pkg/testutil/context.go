package testutil

import (
	"net/http"

	id "esocial/pkg/domain"
	"esocial/pkg/requestcontext"
)

// WithEmployerID adds an employer ID to the request context, as the auth
// middleware would for an authenticated request.
func WithEmployerID(req *http.Request, employerID id.EmployerID) *http.Request {
	return req.WithContext(requestcontext.WithEmployerID(req.Context(), employerID))
}
