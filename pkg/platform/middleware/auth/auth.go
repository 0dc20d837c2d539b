package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "electa/pkg/domain"
	request "electa/pkg/platform/middleware/request"
	"electa/pkg/requestcontext"
)

// MemberTokenValidator validates a bearer token and returns the member it was
// issued to.
type MemberTokenValidator interface {
	ValidateMemberToken(tokenString string) (id.MemberID, error)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireMember authenticates the calling member and stores their ID in the
// request context.
func RequireMember(validator MemberTokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			memberID, err := validator.ValidateMemberToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithMemberID(ctx, memberID)))
		})
	}
}
