// Package member adapts the external member directory. The election core only
// needs existence checks; display attributes are passed through for callers.
package member

import (
	"context"

	id "electa/pkg/domain"
)

// Member is the directory's view of an organization member.
type Member struct {
	ID          id.MemberID `json:"id"`
	DisplayName string      `json:"display_name"`
	YearOfStudy int         `json:"year_of_study,omitempty"`
	Course      string      `json:"course,omitempty"`
}

// Directory resolves member identities. Implementations return
// sentinel.ErrNotFound for unknown members and sentinel.ErrUnavailable when the
// directory cannot be reached.
type Directory interface {
	Resolve(ctx context.Context, memberID id.MemberID) (*Member, error)
}
