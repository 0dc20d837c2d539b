package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"electa/internal/election/metrics"
	"electa/internal/election/models"
	id "electa/pkg/domain"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = 2 * time.Second
)

// Store is the outbox side of the election store.
type Store interface {
	FetchPendingOutbox(ctx context.Context, limit int) ([]*models.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, eventID uuid.UUID, at time.Time) error
}

// Publisher delivers one keyed message to the event bus.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// Envelope is the message body consumers of the nominations topic receive.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	EventType  string          `json:"event_type"`
	ElectionID id.ElectionID   `json:"election_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Relay moves committed outbox rows to the event bus. Delivery is at least
// once: a row is marked only after the broker acknowledged it.
type Relay struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRelay(store Store, publisher Publisher, opts ...Option) (*Relay, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	if publisher == nil {
		return nil, errors.New("outbox publisher is required")
	}
	r := &Relay{
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		batchSize: defaultBatchSize,
		interval:  defaultPollInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run polls until ctx is cancelled. A failed cycle is logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = r.RunOnce(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// RunOnce publishes one batch of pending rows in creation order and stops at
// the first failure so the remaining rows keep their order on retry.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.store.FetchPendingOutbox(ctx, r.batchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "election outbox list failed",
			"event", "election_outbox_list_failed",
			"error", err,
		)
		r.metrics.IncrementOutboxFailures()
		return 0, err
	}
	if len(pending) == 0 {
		r.logger.DebugContext(ctx, "election outbox relay found no pending rows",
			"event", "election_outbox_relay_noop",
		)
		return 0, nil
	}

	published := 0
	defer func() { r.metrics.AddOutboxPublished(published) }()
	for _, row := range pending {
		if err := r.publish(ctx, row); err != nil {
			r.logger.ErrorContext(ctx, "election outbox publish failed",
				"event", "election_outbox_publish_failed",
				"outbox_id", row.ID,
				"event_type", row.EventType,
				"election_id", row.ElectionID,
				"error", err,
			)
			r.metrics.IncrementOutboxFailures()
			return published, err
		}
		if err := r.store.MarkOutboxPublished(ctx, row.ID, r.now().UTC()); err != nil {
			r.logger.ErrorContext(ctx, "election outbox mark published failed",
				"event", "election_outbox_mark_published_failed",
				"outbox_id", row.ID,
				"error", err,
			)
			r.metrics.IncrementOutboxFailures()
			return published, err
		}
		published++
	}

	r.logger.InfoContext(ctx, "election outbox relay cycle completed",
		"event", "election_outbox_relay_completed",
		"published_count", published,
	)
	return published, nil
}

func (r *Relay) publish(ctx context.Context, row *models.OutboxEvent) error {
	body, err := json.Marshal(Envelope{
		ID:         row.ID,
		EventType:  row.EventType,
		ElectionID: row.ElectionID,
		OccurredAt: row.CreatedAt,
		Payload:    row.Payload,
	})
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, row.ElectionID.String(), body, map[string]string{
		"event_id":   row.ID.String(),
		"event_type": row.EventType,
	})
}
