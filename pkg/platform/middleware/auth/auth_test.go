package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "esocial/pkg/domain"
	"esocial/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) { return s.claims, s.err }

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	employer := id.EmployerID(uuid.New())

	var seen id.EmployerID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.EmployerID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name      string
		header    string
		validator JWTValidator
		status    int
	}{
		{"missing header", "", stubValidator{}, http.StatusUnauthorized},
		{"not bearer", "Basic abc", stubValidator{}, http.StatusUnauthorized},
		{"invalid token", "Bearer bad", stubValidator{err: errors.New("bad")}, http.StatusUnauthorized},
		{"subject not uuid", "Bearer ok", stubValidator{claims: &JWTClaims{EmployerID: "alice"}}, http.StatusUnauthorized},
		{"valid", "Bearer ok", stubValidator{claims: &JWTClaims{EmployerID: employer.String()}}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = id.EmployerID{}
			r := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			RequireAuth(tt.validator, logger)(next).ServeHTTP(w, r)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, employer, seen)
			}
		})
	}
}
