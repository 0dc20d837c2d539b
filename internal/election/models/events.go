package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "electa/pkg/domain"
)

const (
	EventNominationSubmitted  = "nomination.submitted"
	EventElectionTransitioned = "election.transitioned"
	EventElectionDeleted      = "election.deleted"
)

// OutboxEvent is written in the same transaction as the change it describes
// and relayed to the broker afterwards.
type OutboxEvent struct {
	ID          uuid.UUID
	EventType   string
	ElectionID  id.ElectionID
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// NewOutboxEvent marshals payload into an event keyed by the election.
func NewOutboxEvent(eventType string, electionID id.ElectionID, payload any, now time.Time) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:         uuid.New(),
		EventType:  eventType,
		ElectionID: electionID,
		Payload:    body,
		CreatedAt:  now,
	}, nil
}

type TransitionedPayload struct {
	ElectionID id.ElectionID `json:"election_id"`
	From       Status        `json:"from"`
	To         Status        `json:"to"`
	At         time.Time     `json:"at"`
}

type DeletedPayload struct {
	ElectionID           id.ElectionID `json:"election_id"`
	DiscardedNominations int           `json:"discarded_nominations"`
	At                   time.Time     `json:"at"`
}
