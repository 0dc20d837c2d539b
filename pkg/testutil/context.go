package testutil

import (
	"net/http"

	id "electa/pkg/domain"
	"electa/pkg/requestcontext"
)

// WithMember adds a member ID to the request context, simulating what the
// member auth middleware does for authenticated requests.
func WithMember(req *http.Request, memberID id.MemberID) *http.Request {
	return req.WithContext(requestcontext.WithMemberID(req.Context(), memberID))
}

// WithAdmin marks the request as having passed the admin token check.
func WithAdmin(req *http.Request) *http.Request {
	return req.WithContext(requestcontext.WithAdmin(req.Context()))
}
