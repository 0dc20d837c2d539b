package models

import (
	"time"

	id "electa/pkg/domain"
	dErrors "electa/pkg/domain-errors"
)

// Status is the stored lifecycle state of an election.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusOpen     Status = "open"
	StatusClosed   Status = "closed"
	StatusArchived Status = "archived"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusOpen, StatusClosed, StatusArchived:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus validates a status coming from untrusted input.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "status is required")
	}
	status := Status(s)
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "status must be one of draft, open, closed, archived")
	}
	return status, nil
}

// CanTransitionTo reports whether the state machine permits s -> target.
// Only draft->open, open->closed and closed->archived are legal.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusDraft:
		return target == StatusOpen
	case StatusOpen:
		return target == StatusClosed
	case StatusClosed:
		return target == StatusArchived
	default:
		return false
	}
}

// IsTerminal reports whether no transition or edit may follow.
func (s Status) IsTerminal() bool {
	return s == StatusArchived
}

// Election is the root aggregate; positions and nominations belong to it.
type Election struct {
	ID                      id.ElectionID `json:"id"`
	Title                   string        `json:"title"`
	Description             string        `json:"description"`
	StartsAt                time.Time     `json:"starts_at"`
	EndsAt                  time.Time     `json:"ends_at"`
	MaxNominationsPerMember int           `json:"max_nominations_per_member"`
	Status                  Status        `json:"status"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
}

// NewElection builds a draft election after checking its configuration.
func NewElection(electionID id.ElectionID, title, description string, startsAt, endsAt time.Time, maxPerMember int, now time.Time) (*Election, error) {
	e := &Election{
		ID:                      electionID,
		Title:                   title,
		Description:             description,
		StartsAt:                startsAt.UTC(),
		EndsAt:                  endsAt.UTC(),
		MaxNominationsPerMember: maxPerMember,
		Status:                  StatusDraft,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the configuration invariants that must hold at rest.
func (e *Election) Validate() error {
	if e.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if e.StartsAt.IsZero() || e.EndsAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "starts_at and ends_at are required")
	}
	if !e.StartsAt.Before(e.EndsAt) {
		return dErrors.New(dErrors.CodeValidation, "starts_at must be before ends_at")
	}
	if e.MaxNominationsPerMember < 1 {
		return dErrors.New(dErrors.CodeValidation, "max_nominations_per_member must be at least 1")
	}
	if !e.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	return nil
}

// EffectiveStatus is what readers should see: an open election past its end
// reads as closed even if no transition has been recorded.
func (e *Election) EffectiveStatus(now time.Time) Status {
	if e.Status == StatusOpen && now.After(e.EndsAt) {
		return StatusClosed
	}
	return e.Status
}

// AcceptsNominations is the write gate: stored status open AND now within
// [StartsAt, EndsAt]. Both checks are required.
func (e *Election) AcceptsNominations(now time.Time) bool {
	if e.Status != StatusOpen {
		return false
	}
	return !now.Before(e.StartsAt) && !now.After(e.EndsAt)
}

// RemainingQuota clamps at zero so a lowered quota never reads negative.
func (e *Election) RemainingQuota(used int) int {
	remaining := e.MaxNominationsPerMember - used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ElectionView is the read model returned to callers.
type ElectionView struct {
	*Election
	EffectiveStatus      Status `json:"effective_status"`
	AcceptingNominations bool   `json:"accepting_nominations"`
	RemainingQuota       *int   `json:"remaining_quota,omitempty"`
}

func NewElectionView(e *Election, now time.Time) *ElectionView {
	return &ElectionView{
		Election:             e,
		EffectiveStatus:      e.EffectiveStatus(now),
		AcceptingNominations: e.AcceptsNominations(now),
	}
}
