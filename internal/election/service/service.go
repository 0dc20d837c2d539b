package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"electa/internal/election/metrics"
	"electa/internal/election/models"
	"electa/internal/member"
	id "electa/pkg/domain"
	dErrors "electa/pkg/domain-errors"
	"electa/pkg/platform/sentinel"
)

const defaultSubmitTimeout = 5 * time.Second

// ElectionStore persists election aggregates.
type ElectionStore interface {
	CreateElection(ctx context.Context, e *models.Election) error
	UpdateElection(ctx context.Context, e *models.Election) error
	GetElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error)
	LockElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error)
	LockElectionForUpdate(ctx context.Context, electionID id.ElectionID) (*models.Election, error)
	ListElections(ctx context.Context, statuses ...models.Status) ([]*models.Election, error)
	DeleteElection(ctx context.Context, electionID id.ElectionID) error
}

// PositionStore is the position registry's persistence.
type PositionStore interface {
	CreatePosition(ctx context.Context, p *models.Position) error
	UpdatePosition(ctx context.Context, p *models.Position) error
	GetPosition(ctx context.Context, positionID id.PositionID) (*models.Position, error)
	DeletePosition(ctx context.Context, positionID id.PositionID) error
	ListPositions(ctx context.Context, electionID id.ElectionID) ([]*models.Position, error)
	CountPositions(ctx context.Context, electionID id.ElectionID) (int, error)
	FindPositionByTitle(ctx context.Context, electionID id.ElectionID, title string) (*models.Position, error)
}

// NominationLedger is the append-only source of truth for quota counting.
type NominationLedger interface {
	CreateNomination(ctx context.Context, n *models.Nomination) error
	CountNominations(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID) (int, error)
	CountElectionNominations(ctx context.Context, electionID id.ElectionID) (int, error)
	HasNomination(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID, position string) (bool, error)
	ListNominations(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID) ([]*models.Nomination, error)
	ListElectionNominations(ctx context.Context, electionID id.ElectionID) ([]*models.Nomination, error)
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, event *models.OutboxEvent) error
}

// Store is everything the service needs, plus a transactional boundary.
// LockNominator and LockElectionForUpdate must be called inside RunInTx and
// are held until fn returns.
type Store interface {
	ElectionStore
	PositionStore
	NominationLedger
	OutboxWriter
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockNominator(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID) error
}

// QuotaCache holds advisory used-nomination counts. It is never consulted by
// the submit gate. SetUsed must not lower a cached count: a count read on a
// cache miss can land after a newer submit has cached its own.
type QuotaCache interface {
	GetUsed(ctx context.Context, electionID id.ElectionID, memberID id.MemberID) (used int, ok bool, err error)
	SetUsed(ctx context.Context, electionID id.ElectionID, memberID id.MemberID, used int) error
}

// Policy holds product decisions that are configuration, not code.
type Policy struct {
	AllowSelfNomination bool
}

func DefaultPolicy() Policy {
	return Policy{AllowSelfNomination: true}
}

// Service implements the election lifecycle, the position registry, the
// nomination quota engine and the read-only summary and export views.
type Service struct {
	store         Store
	directory     member.Directory
	cache         QuotaCache
	metrics       *metrics.Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
	policy        Policy
	submitTimeout time.Duration
	now           func() time.Time
	quotaLoads    singleflight.Group
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithQuotaCache(cache QuotaCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithPolicy(policy Policy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

func WithSubmitTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.submitTimeout = timeout
		}
	}
}

// WithClock sets the time source used for window checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func New(store Store, directory member.Directory, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("election store is required")
	}
	if directory == nil {
		return nil, fmt.Errorf("member directory is required")
	}
	svc := &Service{
		store:         store,
		directory:     directory,
		logger:        slog.Default(),
		tracer:        otel.Tracer("electa/internal/election/service"),
		policy:        DefaultPolicy(),
		submitTimeout: defaultSubmitTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// translateStoreError maps storage facts to domain errors. Domain errors pass
// through untouched so codes raised inside RunInTx survive.
func translateStoreError(err error, notFoundMsg, op string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFoundMsg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, op+" timed out")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "storage unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
	}
}

func (s *Service) getElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	e, err := s.store.GetElection(ctx, electionID)
	if err != nil {
		return nil, translateStoreError(err, "election not found", "load election")
	}
	return e, nil
}

// lockElection loads the election for an admin mutation. The lock is held
// until the enclosing RunInTx returns, so the checks made on the returned copy
// still hold when it is written back.
func (s *Service) lockElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	e, err := s.store.LockElectionForUpdate(ctx, electionID)
	if err != nil {
		return nil, translateStoreError(err, "election not found", "lock election")
	}
	return e, nil
}

// getVisibleElection hides drafts from the member surface.
func (s *Service) getVisibleElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	e, err := s.getElection(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if e.Status == models.StatusDraft {
		return nil, dErrors.New(dErrors.CodeNotFound, "election not found")
	}
	return e, nil
}
