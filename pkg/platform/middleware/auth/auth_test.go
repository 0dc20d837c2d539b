package auth

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "electa/pkg/domain"
	"electa/pkg/requestcontext"
)

type stubValidator struct {
	tokens map[string]id.MemberID
}

func (v stubValidator) ValidateMemberToken(token string) (id.MemberID, error) {
	if memberID, ok := v.tokens[token]; ok {
		return memberID, nil
	}
	return id.MemberID{}, errors.New("invalid token")
}

func TestRequireMember(t *testing.T) {
	memberID := id.MemberID(uuid.New())
	validator := stubValidator{tokens: map[string]id.MemberID{"good": memberID}}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	var seen id.MemberID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.MemberID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireMember(validator, logger)(next)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid bearer token", header: "Bearer good", status: http.StatusOK},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", status: http.StatusUnauthorized},
		{name: "rejected token", header: "Bearer bad", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = id.MemberID{}
			req := httptest.NewRequest(http.MethodGet, "/elections", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, memberID, seen)
			} else {
				assert.True(t, seen.IsNil())
				assert.JSONEq(t, `{"error":"unauthorized","error_description":"`+descriptionFor(tt.header)+`"}`, rec.Body.String())
			}
		})
	}
}

func descriptionFor(header string) string {
	if header == "Bearer bad" {
		return "Invalid or expired token"
	}
	return "Missing or invalid Authorization header"
}
