package models

import (
	"strings"
	"time"

	id "electa/pkg/domain"
	dErrors "electa/pkg/domain-errors"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 4000
	maxReasonLen      = 1000
)

type CreateElectionRequest struct {
	Title                   string    `json:"title"`
	Description             string    `json:"description"`
	StartsAt                time.Time `json:"starts_at"`
	EndsAt                  time.Time `json:"ends_at"`
	MaxNominationsPerMember int       `json:"max_nominations_per_member"`
}

func (r *CreateElectionRequest) Normalize() {
	if r == nil {
		return
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
}

// Follows validation order: Size -> Required -> Semantic.
func (r *CreateElectionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.Title) > maxTitleLen {
		return dErrors.New(dErrors.CodeValidation, "title must be 200 characters or less")
	}
	if len(r.Description) > maxDescriptionLen {
		return dErrors.New(dErrors.CodeValidation, "description must be 4000 characters or less")
	}
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if r.StartsAt.IsZero() || r.EndsAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "starts_at and ends_at are required")
	}
	if !r.StartsAt.Before(r.EndsAt) {
		return dErrors.New(dErrors.CodeValidation, "starts_at must be before ends_at")
	}
	if r.MaxNominationsPerMember < 1 {
		return dErrors.New(dErrors.CodeValidation, "max_nominations_per_member must be at least 1")
	}
	return nil
}

// UpdateElectionRequest is a partial update; nil fields are left unchanged.
type UpdateElectionRequest struct {
	Title                   *string    `json:"title,omitempty"`
	Description             *string    `json:"description,omitempty"`
	StartsAt                *time.Time `json:"starts_at,omitempty"`
	EndsAt                  *time.Time `json:"ends_at,omitempty"`
	MaxNominationsPerMember *int       `json:"max_nominations_per_member,omitempty"`
}

func (r *UpdateElectionRequest) Normalize() {
	if r == nil {
		return
	}
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		r.Description = &d
	}
}

func (r *UpdateElectionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Title != nil && len(*r.Title) > maxTitleLen {
		return dErrors.New(dErrors.CodeValidation, "title must be 200 characters or less")
	}
	if r.Description != nil && len(*r.Description) > maxDescriptionLen {
		return dErrors.New(dErrors.CodeValidation, "description must be 4000 characters or less")
	}
	if r.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "at least one field must be provided")
	}
	return nil
}

func (r *UpdateElectionRequest) IsEmpty() bool {
	return r.Title == nil && r.Description == nil && !r.HasStructuralChanges()
}

// HasStructuralChanges reports whether dates or quota are touched; those are
// frozen once the election leaves draft.
func (r *UpdateElectionRequest) HasStructuralChanges() bool {
	return r.StartsAt != nil || r.EndsAt != nil || r.MaxNominationsPerMember != nil
}

// Apply copies the set fields onto e. The caller re-validates e.
func (r *UpdateElectionRequest) Apply(e *Election) {
	if r.Title != nil {
		e.Title = *r.Title
	}
	if r.Description != nil {
		e.Description = *r.Description
	}
	if r.StartsAt != nil {
		e.StartsAt = r.StartsAt.UTC()
	}
	if r.EndsAt != nil {
		e.EndsAt = r.EndsAt.UTC()
	}
	if r.MaxNominationsPerMember != nil {
		e.MaxNominationsPerMember = *r.MaxNominationsPerMember
	}
}

type TransitionRequest struct {
	Status string `json:"status"`
}

func (r *TransitionRequest) Normalize() {
	if r == nil {
		return
	}
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

type AddPositionRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	DisplayOrder int    `json:"display_order"`
}

func (r *AddPositionRequest) Normalize() {
	if r == nil {
		return
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *AddPositionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.Title) > maxTitleLen {
		return dErrors.New(dErrors.CodeValidation, "title must be 200 characters or less")
	}
	if len(r.Description) > maxDescriptionLen {
		return dErrors.New(dErrors.CodeValidation, "description must be 4000 characters or less")
	}
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	return nil
}

type UpdatePositionRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	DisplayOrder *int    `json:"display_order,omitempty"`
}

func (r *UpdatePositionRequest) Normalize() {
	if r == nil {
		return
	}
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		r.Title = &t
	}
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		r.Description = &d
	}
}

func (r *UpdatePositionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Title != nil {
		if len(*r.Title) > maxTitleLen {
			return dErrors.New(dErrors.CodeValidation, "title must be 200 characters or less")
		}
		if *r.Title == "" {
			return dErrors.New(dErrors.CodeValidation, "title must not be empty")
		}
	}
	if r.Description != nil && len(*r.Description) > maxDescriptionLen {
		return dErrors.New(dErrors.CodeValidation, "description must be 4000 characters or less")
	}
	if r.Title == nil && r.Description == nil && r.DisplayOrder == nil {
		return dErrors.New(dErrors.CodeValidation, "at least one field must be provided")
	}
	return nil
}

func (r *UpdatePositionRequest) Apply(p *Position) {
	if r.Title != nil {
		p.Title = *r.Title
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.DisplayOrder != nil {
		p.DisplayOrder = *r.DisplayOrder
	}
}

// SubmitNominationRequest is the member's input. The nominator always comes
// from the authenticated context, never the body.
type SubmitNominationRequest struct {
	NomineeID string `json:"nominee_id"`
	Position  string `json:"position"`
	Reason    string `json:"reason"`

	nominee id.MemberID
}

func (r *SubmitNominationRequest) Normalize() {
	if r == nil {
		return
	}
	r.NomineeID = strings.TrimSpace(r.NomineeID)
	r.Position = strings.TrimSpace(r.Position)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *SubmitNominationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if len(r.Position) > maxTitleLen {
		return dErrors.New(dErrors.CodeValidation, "position must be 200 characters or less")
	}
	if len(r.Reason) > maxReasonLen {
		return dErrors.New(dErrors.CodeValidation, "reason must be 1000 characters or less")
	}
	if r.Position == "" {
		return dErrors.New(dErrors.CodeValidation, "position is required")
	}
	if r.NomineeID == "" {
		return dErrors.New(dErrors.CodeValidation, "nominee_id is required")
	}
	nominee, err := id.ParseMemberID(r.NomineeID)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "invalid nominee_id")
	}
	r.nominee = nominee
	return nil
}

// Nominee is valid only after Validate succeeds.
func (r *SubmitNominationRequest) Nominee() id.MemberID {
	return r.nominee
}
