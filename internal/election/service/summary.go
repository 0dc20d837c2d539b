package service

import (
	"context"
	"sort"

	"electa/internal/election/models"
	id "electa/pkg/domain"
	dErrors "electa/pkg/domain-errors"
)

// CompleteNomination returns the caller's tally. It writes nothing, so
// repeated calls with no intervening submissions return identical results.
func (s *Service) CompleteNomination(ctx context.Context, electionID id.ElectionID, memberID id.MemberID) (*models.Summary, error) {
	if _, err := s.getVisibleElection(ctx, electionID); err != nil {
		return nil, err
	}
	nominations, err := s.store.ListNominations(ctx, electionID, memberID)
	if err != nil {
		return nil, translateStoreError(err, "election not found", "list nominations")
	}
	if len(nominations) == 0 {
		return nil, dErrors.New(dErrors.CodeNoNominationsYet, "you have not submitted any nominations in this election")
	}

	distinct := make(map[string]struct{}, len(nominations))
	for _, n := range nominations {
		distinct[models.TitleKey(n.Position)] = struct{}{}
	}
	return &models.Summary{
		ElectionID:        electionID,
		NominatorID:       memberID,
		DistinctPositions: len(distinct),
		TotalNominations:  len(nominations),
	}, nil
}

// ExportNominations groups the whole ledger by position for the reporting
// collaborator. Registry positions come first in registry order (including
// those with no nominations); titles no longer in the registry follow
// alphabetically, flagged as removed.
func (s *Service) ExportNominations(ctx context.Context, electionID id.ElectionID) (*models.Export, error) {
	e, err := s.getElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	positions, err := s.listPositions(ctx, electionID)
	if err != nil {
		return nil, err
	}
	nominations, err := s.store.ListElectionNominations(ctx, electionID)
	if err != nil {
		return nil, translateStoreError(err, "election not found", "list nominations")
	}

	byTitle := make(map[string][]*models.Nomination)
	removedTitles := make(map[string]string)
	for _, n := range nominations {
		key := models.TitleKey(n.Position)
		byTitle[key] = append(byTitle[key], n)
		if _, ok := removedTitles[key]; !ok {
			removedTitles[key] = n.Position
		}
	}

	groups := make([]models.PositionExport, 0, len(positions)+len(removedTitles))
	for _, p := range positions {
		key := models.TitleKey(p.Title)
		positionID := p.ID
		groups = append(groups, models.PositionExport{
			PositionID:  &positionID,
			Title:       p.Title,
			Nominations: nonNil(byTitle[key]),
		})
		delete(removedTitles, key)
	}

	removedKeys := make([]string, 0, len(removedTitles))
	for key := range removedTitles {
		removedKeys = append(removedKeys, key)
	}
	sort.Strings(removedKeys)
	for _, key := range removedKeys {
		groups = append(groups, models.PositionExport{
			Title:       removedTitles[key],
			Removed:     true,
			Nominations: byTitle[key],
		})
	}

	s.logAudit(ctx, "nominations_exported",
		"election_id", electionID,
		"total", len(nominations),
	)
	return &models.Export{
		ElectionID:  electionID,
		Title:       e.Title,
		Status:      e.EffectiveStatus(s.clock()),
		GeneratedAt: s.clock(),
		Positions:   groups,
		Total:       len(nominations),
	}, nil
}

func nonNil(nominations []*models.Nomination) []*models.Nomination {
	if nominations == nil {
		return []*models.Nomination{}
	}
	return nominations
}
