// Package domain holds typed identifiers shared across modules.
//
// Each aggregate gets its own ID type over uuid.UUID so an ElectionID can never
// be passed where a MemberID is expected. Parse functions are the only way IDs
// enter the system from untrusted input.
package domain

import (
	"github.com/google/uuid"

	dErrors "electa/pkg/domain-errors"
)

type (
	ElectionID   uuid.UUID
	PositionID   uuid.UUID
	NominationID uuid.UUID
	MemberID     uuid.UUID
)

func (id ElectionID) String() string   { return uuid.UUID(id).String() }
func (id PositionID) String() string   { return uuid.UUID(id).String() }
func (id NominationID) String() string { return uuid.UUID(id).String() }
func (id MemberID) String() string     { return uuid.UUID(id).String() }

func (id ElectionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id PositionID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id NominationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MemberID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func (id ElectionID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id PositionID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id NominationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id MemberID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *ElectionID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PositionID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *NominationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MemberID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }

func NewElectionID() ElectionID     { return ElectionID(uuid.New()) }
func NewPositionID() PositionID     { return PositionID(uuid.New()) }
func NewNominationID() NominationID { return NominationID(uuid.New()) }

func ParseElectionID(s string) (ElectionID, error) {
	u, err := parseUUID(s, "election_id")
	return ElectionID(u), err
}

func ParsePositionID(s string) (PositionID, error) {
	u, err := parseUUID(s, "position_id")
	return PositionID(u), err
}

func ParseNominationID(s string) (NominationID, error) {
	u, err := parseUUID(s, "nomination_id")
	return NominationID(u), err
}

func ParseMemberID(s string) (MemberID, error) {
	u, err := parseUUID(s, "member_id")
	return MemberID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "invalid "+field)
	}
	return u, nil
}
