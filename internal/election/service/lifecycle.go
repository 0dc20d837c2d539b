package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"electa/internal/election/models"
	id "electa/pkg/domain"
	dErrors "electa/pkg/domain-errors"
)

// CreateElection creates a draft election.
func (s *Service) CreateElection(ctx context.Context, req *models.CreateElectionRequest) (*models.ElectionView, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.clock()
	e, err := models.NewElection(id.NewElectionID(), req.Title, req.Description, req.StartsAt, req.EndsAt, req.MaxNominationsPerMember, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateElection(ctx, e); err != nil {
		return nil, translateStoreError(err, "election not found", "create election")
	}
	s.logAudit(ctx, "election_created",
		"election_id", e.ID,
		"max_nominations_per_member", e.MaxNominationsPerMember,
	)
	return models.NewElectionView(e, now), nil
}

// UpdateElection applies a partial update. Dates and quota are frozen once the
// election leaves draft; nothing is editable once archived.
func (s *Service) UpdateElection(ctx context.Context, electionID id.ElectionID, req *models.UpdateElectionRequest) (*models.ElectionView, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var updated *models.Election
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.lockElection(ctx, electionID)
		if err != nil {
			return err
		}
		if e.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeInvalidTransition, "archived elections cannot be edited")
		}
		if req.HasStructuralChanges() && e.Status != models.StatusDraft {
			return dErrors.New(dErrors.CodeInvalidTransition, "dates and quota can only be changed while the election is in draft")
		}
		req.Apply(e)
		e.UpdatedAt = s.clock()
		if err := e.Validate(); err != nil {
			return err
		}
		if err := s.store.UpdateElection(ctx, e); err != nil {
			return translateStoreError(err, "election not found", "update election")
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, translateStoreError(err, "election not found", "update election")
	}
	s.logAudit(ctx, "election_updated",
		"election_id", electionID,
		"structural", req.HasStructuralChanges(),
	)
	return models.NewElectionView(updated, s.clock()), nil
}

// Transition moves the election along draft -> open -> closed -> archived.
// Opening requires at least one position.
func (s *Service) Transition(ctx context.Context, electionID id.ElectionID, target string) (_ *models.ElectionView, err error) {
	ctx, span := s.tracer.Start(ctx, "election.Transition", trace.WithAttributes(
		attribute.String("election_id", electionID.String()),
		attribute.String("target", target),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	to, err := models.ParseStatus(target)
	if err != nil {
		return nil, err
	}

	var from models.Status
	var updated *models.Election
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.lockElection(ctx, electionID)
		if err != nil {
			return err
		}
		from = e.Status
		if !from.CanTransitionTo(to) {
			return dErrors.New(dErrors.CodeInvalidTransition,
				fmt.Sprintf("cannot transition election from %s to %s", from, to))
		}
		if to == models.StatusOpen {
			count, err := s.store.CountPositions(ctx, electionID)
			if err != nil {
				return translateStoreError(err, "election not found", "count positions")
			}
			if count == 0 {
				return dErrors.New(dErrors.CodeValidation, "an election needs at least one position before it can open")
			}
		}

		now := s.clock()
		e.Status = to
		e.UpdatedAt = now
		if err := s.store.UpdateElection(ctx, e); err != nil {
			return translateStoreError(err, "election not found", "transition election")
		}
		event, err := models.NewOutboxEvent(models.EventElectionTransitioned, electionID, models.TransitionedPayload{
			ElectionID: electionID,
			From:       from,
			To:         to,
			At:         now,
		}, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record transition")
		}
		if err := s.store.AppendOutbox(ctx, event); err != nil {
			return translateStoreError(err, "election not found", "record transition")
		}
		updated = e
		return nil
	})
	if err != nil {
		err = translateStoreError(err, "election not found", "transition election")
		if dErrors.HasCode(err, dErrors.CodeInvalidTransition) || dErrors.HasCode(err, dErrors.CodeValidation) {
			s.logRejection(ctx, "election_transition_rejected", string(dErrors.CodeOf(err)),
				"election_id", electionID, "from", from, "to", to)
		}
		return nil, err
	}

	s.metrics.IncrementTransition(string(from), string(to))
	s.logAudit(ctx, "election_transitioned",
		"election_id", electionID,
		"from", from,
		"to", to,
	)
	return models.NewElectionView(updated, s.clock()), nil
}

// DeleteElection removes the election with its positions and nominations.
// Without confirm it fails and reports how many nominations would be lost.
func (s *Service) DeleteElection(ctx context.Context, electionID id.ElectionID, confirm bool) (err error) {
	ctx, span := s.tracer.Start(ctx, "election.Delete", trace.WithAttributes(
		attribute.String("election_id", electionID.String()),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var discarded int
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.lockElection(ctx, electionID); err != nil {
			return err
		}
		count, err := s.store.CountElectionNominations(ctx, electionID)
		if err != nil {
			return translateStoreError(err, "election not found", "count nominations")
		}
		if !confirm {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("deleting this election discards %d nomination(s); confirmation is required", count))
		}
		if err := s.store.DeleteElection(ctx, electionID); err != nil {
			return translateStoreError(err, "election not found", "delete election")
		}
		now := s.clock()
		event, err := models.NewOutboxEvent(models.EventElectionDeleted, electionID, models.DeletedPayload{
			ElectionID:           electionID,
			DiscardedNominations: count,
			At:                   now,
		}, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record deletion")
		}
		if err := s.store.AppendOutbox(ctx, event); err != nil {
			return translateStoreError(err, "election not found", "record deletion")
		}
		discarded = count
		return nil
	})
	if err != nil {
		return translateStoreError(err, "election not found", "delete election")
	}

	s.metrics.IncrementDeleted()
	s.logAudit(ctx, "election_deleted",
		"election_id", electionID,
		"discarded_nominations", discarded,
	)
	return nil
}

// GetElection is the admin read; drafts are visible.
func (s *Service) GetElection(ctx context.Context, electionID id.ElectionID) (*models.ElectionView, error) {
	e, err := s.getElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	return models.NewElectionView(e, s.clock()), nil
}

// ListElections is the admin listing across all statuses.
func (s *Service) ListElections(ctx context.Context) ([]*models.ElectionView, error) {
	elections, err := s.store.ListElections(ctx)
	if err != nil {
		return nil, translateStoreError(err, "election not found", "list elections")
	}
	now := s.clock()
	views := make([]*models.ElectionView, 0, len(elections))
	for _, e := range elections {
		views = append(views, models.NewElectionView(e, now))
	}
	return views, nil
}
