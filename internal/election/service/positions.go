package service

import (
	"context"
	"errors"

	"electa/internal/election/models"
	id "electa/pkg/domain"
	dErrors "electa/pkg/domain-errors"
	"electa/pkg/platform/sentinel"
)

func positionStoreError(err error, op string) error {
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "a position with this title already exists in the election")
	}
	return translateStoreError(err, "position not found", op)
}

// editableElection locks the owning election and refuses archived ones.
func (s *Service) editableElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	e, err := s.lockElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if e.Status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "positions of an archived election cannot be changed")
	}
	return e, nil
}

// AddPosition registers a position; titles are unique per election ignoring case.
func (s *Service) AddPosition(ctx context.Context, electionID id.ElectionID, req *models.AddPositionRequest) (*models.Position, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p := &models.Position{
		ID:           id.NewPositionID(),
		ElectionID:   electionID,
		Title:        req.Title,
		Description:  req.Description,
		DisplayOrder: req.DisplayOrder,
		CreatedAt:    s.clock(),
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.editableElection(ctx, electionID); err != nil {
			return err
		}
		if err := s.store.CreatePosition(ctx, p); err != nil {
			return positionStoreError(err, "add position")
		}
		return nil
	})
	if err != nil {
		return nil, positionStoreError(err, "add position")
	}
	s.logAudit(ctx, "position_added",
		"election_id", electionID,
		"position_id", p.ID,
		"title", p.Title,
	)
	return p, nil
}

// lockedPosition locks the position's election, then re-reads the position so
// a concurrent delete is seen.
func (s *Service) lockedPosition(ctx context.Context, positionID id.PositionID) (*models.Position, error) {
	p, err := s.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, positionStoreError(err, "load position")
	}
	if _, err := s.editableElection(ctx, p.ElectionID); err != nil {
		return nil, err
	}
	p, err = s.store.GetPosition(ctx, positionID)
	if err != nil {
		return nil, positionStoreError(err, "load position")
	}
	return p, nil
}

// UpdatePosition edits title, description or order. Nominations already
// recorded keep the title they were submitted under.
func (s *Service) UpdatePosition(ctx context.Context, positionID id.PositionID, req *models.UpdatePositionRequest) (*models.Position, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var updated *models.Position
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.lockedPosition(ctx, positionID)
		if err != nil {
			return err
		}
		req.Apply(p)
		if err := s.store.UpdatePosition(ctx, p); err != nil {
			return positionStoreError(err, "update position")
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, positionStoreError(err, "update position")
	}
	s.logAudit(ctx, "position_updated",
		"election_id", updated.ElectionID,
		"position_id", positionID,
	)
	return updated, nil
}

// DeletePosition removes a position from the registry. Ledger entries against
// its title are kept and show up as removed in exports; new submissions for
// the title are rejected as not found.
func (s *Service) DeletePosition(ctx context.Context, positionID id.PositionID) error {
	var electionID id.ElectionID
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.lockedPosition(ctx, positionID)
		if err != nil {
			return err
		}
		if err := s.store.DeletePosition(ctx, positionID); err != nil {
			return positionStoreError(err, "delete position")
		}
		electionID = p.ElectionID
		return nil
	})
	if err != nil {
		return positionStoreError(err, "delete position")
	}
	s.logAudit(ctx, "position_deleted",
		"election_id", electionID,
		"position_id", positionID,
	)
	return nil
}

// ListPositions returns the registry ordered by display order, then id.
func (s *Service) ListPositions(ctx context.Context, electionID id.ElectionID) ([]*models.Position, error) {
	if _, err := s.getElection(ctx, electionID); err != nil {
		return nil, err
	}
	return s.listPositions(ctx, electionID)
}

// ListMemberPositions is ListPositions for the member surface, where drafts
// do not exist.
func (s *Service) ListMemberPositions(ctx context.Context, electionID id.ElectionID) ([]*models.Position, error) {
	if _, err := s.getVisibleElection(ctx, electionID); err != nil {
		return nil, err
	}
	return s.listPositions(ctx, electionID)
}

func (s *Service) listPositions(ctx context.Context, electionID id.ElectionID) ([]*models.Position, error) {
	positions, err := s.store.ListPositions(ctx, electionID)
	if err != nil {
		return nil, translateStoreError(err, "election not found", "list positions")
	}
	return positions, nil
}
