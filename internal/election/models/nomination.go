package models

import (
	"time"

	id "electa/pkg/domain"
)

// Nomination is an immutable ledger fact. Position holds the title as
// submitted-and-matched, not a foreign key, so it survives position deletion.
type Nomination struct {
	ID          id.NominationID `json:"id"`
	ElectionID  id.ElectionID   `json:"election_id"`
	NominatorID id.MemberID     `json:"nominator_id"`
	NomineeID   id.MemberID     `json:"nominee_id"`
	Position    string          `json:"position"`
	Reason      string          `json:"reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SubmitResult is returned by a successful submission.
type SubmitResult struct {
	Nomination     *Nomination `json:"nomination"`
	RemainingQuota int         `json:"remaining_quota"`
}

// Quota is the advisory remaining-quota view for one nominator.
type Quota struct {
	ElectionID id.ElectionID `json:"election_id"`
	Max        int           `json:"max"`
	Used       int           `json:"used"`
	Remaining  int           `json:"remaining"`
}

// Summary is the read-only completion tally for one nominator.
type Summary struct {
	ElectionID        id.ElectionID `json:"election_id"`
	NominatorID       id.MemberID   `json:"nominator_id"`
	DistinctPositions int           `json:"distinct_positions"`
	TotalNominations  int           `json:"total_nominations"`
}

// Export is the bulk, read-only view handed to the reporting collaborator.
type Export struct {
	ElectionID  id.ElectionID    `json:"election_id"`
	Title       string           `json:"title"`
	Status      Status           `json:"status"`
	GeneratedAt time.Time        `json:"generated_at"`
	Positions   []PositionExport `json:"positions"`
	Total       int              `json:"total"`
}

// PositionExport groups nominations for one title. PositionID is nil and
// Removed is true when the title no longer exists in the registry.
type PositionExport struct {
	PositionID  *id.PositionID `json:"position_id,omitempty"`
	Title       string         `json:"title"`
	Removed     bool           `json:"removed"`
	Nominations []*Nomination  `json:"nominations"`
}
