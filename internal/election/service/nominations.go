package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"electa/internal/election/models"
	id "electa/pkg/domain"
	dErrors "electa/pkg/domain-errors"
	"electa/pkg/platform/sentinel"
)

// SubmitNomination is the single atomic gate for the ledger. The election
// window, position existence, position exclusivity and the quota are all
// re-checked inside one unit of work while the (election, nominator) lock is
// held, so a pre-read "remaining = 1" can never admit two writes.
//
// On an unavailable error (including timeout) the caller cannot know whether
// the write landed and must re-read quota or its nominations before retrying.
func (s *Service) SubmitNomination(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID, req *models.SubmitNominationRequest) (_ *models.SubmitResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "nomination.Submit", trace.WithAttributes(
		attribute.String("election_id", electionID.String()),
		attribute.String("nominator_id", nominatorID.String()),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.ObserveSubmitDuration(time.Since(start).Seconds())
	}()

	if nominatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "nominator is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	nomineeID := req.Nominee()
	if nomineeID == nominatorID && !s.policy.AllowSelfNomination {
		s.logRejection(ctx, "nomination_rejected", "self_nomination",
			"election_id", electionID, "nominator_id", nominatorID)
		return nil, dErrors.New(dErrors.CodeValidation, "self-nomination is not allowed in this election")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.submitTimeout)
		defer cancel()
	}

	// Cheap pre-checks give early, specific errors; all of them are repeated
	// under the lock below.
	election, err := s.getElection(ctx, electionID)
	if err != nil {
		return nil, s.submitError(ctx, err, electionID, nominatorID)
	}
	if err := s.checkAcceptsNominations(election); err != nil {
		return nil, s.submitError(ctx, err, electionID, nominatorID)
	}
	if _, err := s.findPosition(ctx, electionID, req.Position); err != nil {
		return nil, s.submitError(ctx, err, electionID, nominatorID)
	}
	if err := s.resolveNominee(ctx, nomineeID); err != nil {
		return nil, s.submitError(ctx, err, electionID, nominatorID)
	}

	var (
		nomination *models.Nomination
		used       int
		limit      int
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockNominator(ctx, electionID, nominatorID); err != nil {
			return translateStoreError(err, "election not found", "lock nominator")
		}
		e, err := s.store.LockElection(ctx, electionID)
		if err != nil {
			return translateStoreError(err, "election not found", "load election")
		}
		if err := s.checkAcceptsNominations(e); err != nil {
			return err
		}
		position, err := s.findPosition(ctx, electionID, req.Position)
		if err != nil {
			return err
		}

		exists, err := s.store.HasNomination(ctx, electionID, nominatorID, position.Title)
		if err != nil {
			return translateStoreError(err, "election not found", "check nomination")
		}
		if exists {
			return duplicatePosition(position.Title)
		}
		count, err := s.store.CountNominations(ctx, electionID, nominatorID)
		if err != nil {
			return translateStoreError(err, "election not found", "count nominations")
		}
		if count >= e.MaxNominationsPerMember {
			return dErrors.New(dErrors.CodeQuotaExceeded,
				fmt.Sprintf("nomination quota of %d reached for this election", e.MaxNominationsPerMember))
		}

		now := s.clock()
		n := &models.Nomination{
			ID:          id.NewNominationID(),
			ElectionID:  electionID,
			NominatorID: nominatorID,
			NomineeID:   nomineeID,
			Position:    position.Title,
			Reason:      req.Reason,
			CreatedAt:   now,
		}
		event, err := models.NewOutboxEvent(models.EventNominationSubmitted, electionID, n, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record nomination")
		}
		if err := s.store.AppendOutbox(ctx, event); err != nil {
			return translateStoreError(err, "election not found", "record nomination")
		}
		// The ledger insert goes last; the unique index is the backstop for
		// position exclusivity.
		if err := s.store.CreateNomination(ctx, n); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return duplicatePosition(position.Title)
			}
			return translateStoreError(err, "election not found", "create nomination")
		}
		nomination = n
		used = count + 1
		limit = e.MaxNominationsPerMember
		return nil
	})
	if err != nil {
		return nil, s.submitError(ctx, err, electionID, nominatorID)
	}

	s.rememberUsed(ctx, electionID, nominatorID, used)
	s.metrics.IncrementSubmitted()
	remaining := limit - used
	s.logAudit(ctx, "nomination_submitted",
		"election_id", electionID,
		"nominator_id", nominatorID,
		"nomination_id", nomination.ID,
		"position", nomination.Position,
		"remaining_quota", remaining,
	)
	return &models.SubmitResult{Nomination: nomination, RemainingQuota: remaining}, nil
}

func duplicatePosition(title string) error {
	return dErrors.New(dErrors.CodeDuplicatePosition,
		fmt.Sprintf("you have already submitted a nomination for %s in this election", title))
}

// checkAcceptsNominations is the dual gate: stored status and the live clock.
func (s *Service) checkAcceptsNominations(e *models.Election) error {
	now := s.clock()
	if e.AcceptsNominations(now) {
		return nil
	}
	switch {
	case e.Status != models.StatusOpen:
		return dErrors.New(dErrors.CodeElectionNotOpen, fmt.Sprintf("election is %s", e.EffectiveStatus(now)))
	case now.Before(e.StartsAt):
		return dErrors.New(dErrors.CodeElectionNotOpen, "nominations have not started yet")
	default:
		return dErrors.New(dErrors.CodeElectionNotOpen, "the nomination window has ended")
	}
}

func (s *Service) findPosition(ctx context.Context, electionID id.ElectionID, title string) (*models.Position, error) {
	p, err := s.store.FindPositionByTitle(ctx, electionID, title)
	if err != nil {
		return nil, translateStoreError(err, fmt.Sprintf("position %q is not registered for this election", title), "find position")
	}
	return p, nil
}

func (s *Service) resolveNominee(ctx context.Context, nomineeID id.MemberID) error {
	if _, err := s.directory.Resolve(ctx, nomineeID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "nominee not found")
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "member directory timed out")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "member directory unavailable")
	}
	return nil
}

// submitError normalises the error and records business rejections.
func (s *Service) submitError(ctx context.Context, err error, electionID id.ElectionID, nominatorID id.MemberID) error {
	err = translateStoreError(err, "election not found", "submit nomination")
	code := dErrors.CodeOf(err)
	switch code {
	case dErrors.CodeUnavailable, dErrors.CodeInternal:
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "nomination submit failed",
				"event", "nomination_submit_failed",
				"election_id", electionID,
				"nominator_id", nominatorID,
				"error", err,
			)
		}
		s.metrics.IncrementRejected(string(code))
	default:
		s.logRejection(ctx, "nomination_rejected", string(code),
			"election_id", electionID, "nominator_id", nominatorID)
	}
	return err
}

// RemainingQuota is advisory: it may be served from the cache and concurrent
// misses for the same pair share one ledger count.
func (s *Service) RemainingQuota(ctx context.Context, electionID id.ElectionID, memberID id.MemberID) (*models.Quota, error) {
	e, err := s.getVisibleElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	used, err := s.usedQuota(ctx, electionID, memberID)
	if err != nil {
		return nil, err
	}
	return &models.Quota{
		ElectionID: electionID,
		Max:        e.MaxNominationsPerMember,
		Used:       used,
		Remaining:  e.RemainingQuota(used),
	}, nil
}

func (s *Service) usedQuota(ctx context.Context, electionID id.ElectionID, memberID id.MemberID) (int, error) {
	if s.cache != nil {
		used, ok, err := s.cache.GetUsed(ctx, electionID, memberID)
		switch {
		case err != nil:
			s.metrics.IncrementCacheLookup("error")
			if s.logger != nil {
				s.logger.WarnContext(ctx, "quota cache read failed",
					"event", "quota_cache_read_failed",
					"election_id", electionID,
					"error", err,
				)
			}
		case ok:
			s.metrics.IncrementCacheLookup("hit")
			return used, nil
		default:
			s.metrics.IncrementCacheLookup("miss")
		}
	}

	key := electionID.String() + ":" + memberID.String()
	v, err, _ := s.quotaLoads.Do(key, func() (any, error) {
		return s.store.CountNominations(ctx, electionID, memberID)
	})
	if err != nil {
		return 0, translateStoreError(err, "election not found", "count nominations")
	}
	used := v.(int)
	s.rememberUsed(ctx, electionID, memberID, used)
	return used, nil
}

func (s *Service) rememberUsed(ctx context.Context, electionID id.ElectionID, memberID id.MemberID, used int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetUsed(ctx, electionID, memberID, used); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "quota cache write failed",
			"event", "quota_cache_write_failed",
			"election_id", electionID,
			"error", err,
		)
	}
}

// ListMyNominations returns the caller's ledger entries for the election.
func (s *Service) ListMyNominations(ctx context.Context, electionID id.ElectionID, memberID id.MemberID) ([]*models.Nomination, error) {
	if _, err := s.getVisibleElection(ctx, electionID); err != nil {
		return nil, err
	}
	nominations, err := s.store.ListNominations(ctx, electionID, memberID)
	if err != nil {
		return nil, translateStoreError(err, "election not found", "list nominations")
	}
	return nominations, nil
}

// ListOpenElections returns open elections whose window has not ended, each
// with the caller's remaining quota.
func (s *Service) ListOpenElections(ctx context.Context, memberID id.MemberID) ([]*models.ElectionView, error) {
	elections, err := s.store.ListElections(ctx, models.StatusOpen)
	if err != nil {
		return nil, translateStoreError(err, "election not found", "list elections")
	}
	now := s.clock()
	views := make([]*models.ElectionView, 0, len(elections))
	for _, e := range elections {
		if e.EffectiveStatus(now) != models.StatusOpen {
			continue
		}
		used, err := s.usedQuota(ctx, e.ID, memberID)
		if err != nil {
			return nil, err
		}
		remaining := e.RemainingQuota(used)
		view := models.NewElectionView(e, now)
		view.RemainingQuota = &remaining
		views = append(views, view)
	}
	return views, nil
}
