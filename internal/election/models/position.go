package models

import (
	"strings"
	"time"

	id "electa/pkg/domain"
)

// Position is a nominable role scoped to one election.
type Position struct {
	ID           id.PositionID `json:"id"`
	ElectionID   id.ElectionID `json:"election_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	DisplayOrder int           `json:"display_order"`
	CreatedAt    time.Time     `json:"created_at"`
}

// TitleKey is the case-insensitive comparison key for position titles. The
// ledger stores titles as values, so every match goes through this.
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// LessPosition orders by display order, then id for determinism.
func LessPosition(a, b *Position) bool {
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder < b.DisplayOrder
	}
	return a.ID.String() < b.ID.String()
}
