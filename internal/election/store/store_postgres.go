package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"electa/internal/election/models"
	"electa/internal/platform/postgres"
	id "electa/pkg/domain"
	"electa/pkg/platform/sentinel"
	"electa/pkg/platform/tx"
)

// maxTxAttempts bounds retries of serialization failures and deadlocks.
const maxTxAttempts = 3

// PostgresStore persists elections, positions, the nomination ledger and the
// outbox in PostgreSQL. Methods join the transaction on ctx when present.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply election schema: %w", err)
	}
	return nil
}

// RunInTx runs fn in a READ COMMITTED transaction and retries it from the top
// on serialization failure or deadlock. Quota correctness does not rely on the
// isolation level; LockNominator serializes the count-then-insert.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = postgres.RunInTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
		if err == nil || !postgres.IsRetryable(err) {
			return translate(err)
		}
	}
	return fmt.Errorf("%w: transaction retries exhausted: %w", sentinel.ErrUnavailable, err)
}

// LockNominator takes a transaction-scoped advisory lock on the
// (election, nominator) pair so concurrent submissions from one member queue
// behind each other and each sees the previous one's insert in its re-count.
func (s *PostgresStore) LockNominator(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID) error {
	if _, ok := tx.From(ctx); !ok {
		return errNoTx
	}
	_, err := tx.Or(ctx, s.db).ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`,
		electionID.String(), nominatorID.String(),
	)
	if err != nil {
		return fmt.Errorf("lock nominator: %w", translate(err))
	}
	return nil
}

const electionColumns = `id, title, description, starts_at, ends_at, max_nominations_per_member, status, created_at, updated_at`

func (s *PostgresStore) CreateElection(ctx context.Context, e *models.Election) error {
	_, err := tx.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO elections (`+electionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.UUID(e.ID), e.Title, e.Description, e.StartsAt, e.EndsAt,
		e.MaxNominationsPerMember, string(e.Status), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create election: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) UpdateElection(ctx context.Context, e *models.Election) error {
	res, err := tx.Or(ctx, s.db).ExecContext(ctx, `
		UPDATE elections
		SET title = $2, description = $3, starts_at = $4, ends_at = $5,
		    max_nominations_per_member = $6, status = $7, updated_at = $8
		WHERE id = $1
	`, uuid.UUID(e.ID), e.Title, e.Description, e.StartsAt, e.EndsAt,
		e.MaxNominationsPerMember, string(e.Status), e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update election: %w", translate(err))
	}
	return requireRow(res, "update election")
}

func (s *PostgresStore) GetElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	row := tx.Or(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+electionColumns+` FROM elections WHERE id = $1`, uuid.UUID(electionID))
	e, err := scanElection(row)
	if err != nil {
		return nil, fmt.Errorf("get election: %w", err)
	}
	return e, nil
}

// LockElection reads the election FOR SHARE: concurrent submissions proceed
// together while a transition or delete waits for them to commit.
func (s *PostgresStore) LockElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	row := tx.Or(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+electionColumns+` FROM elections WHERE id = $1 FOR SHARE`, uuid.UUID(electionID))
	e, err := scanElection(row)
	if err != nil {
		return nil, fmt.Errorf("lock election: %w", err)
	}
	return e, nil
}

// LockElectionForUpdate reads the election FOR UPDATE so admin mutations
// serialize against each other and against in-flight submissions.
func (s *PostgresStore) LockElectionForUpdate(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	if _, ok := tx.From(ctx); !ok {
		return nil, errNoTx
	}
	row := tx.Or(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+electionColumns+` FROM elections WHERE id = $1 FOR UPDATE`, uuid.UUID(electionID))
	e, err := scanElection(row)
	if err != nil {
		return nil, fmt.Errorf("lock election for update: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListElections(ctx context.Context, statuses ...models.Status) ([]*models.Election, error) {
	query := `SELECT ` + electionColumns + ` FROM elections`
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY starts_at, id`

	rows, err := tx.Or(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list elections: %w", translate(err))
	}
	defer rows.Close()

	var out []*models.Election
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, fmt.Errorf("list elections: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list elections: %w", translate(err))
	}
	return out, nil
}

// DeleteElection relies on ON DELETE CASCADE for positions and nominations.
func (s *PostgresStore) DeleteElection(ctx context.Context, electionID id.ElectionID) error {
	res, err := tx.Or(ctx, s.db).ExecContext(ctx, `DELETE FROM elections WHERE id = $1`, uuid.UUID(electionID))
	if err != nil {
		return fmt.Errorf("delete election: %w", translate(err))
	}
	return requireRow(res, "delete election")
}

const positionColumns = `id, election_id, title, description, display_order, created_at`

func (s *PostgresStore) CreatePosition(ctx context.Context, p *models.Position) error {
	_, err := tx.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO positions (`+positionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(p.ID), uuid.UUID(p.ElectionID), p.Title, p.Description, p.DisplayOrder, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create position: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, p *models.Position) error {
	res, err := tx.Or(ctx, s.db).ExecContext(ctx, `
		UPDATE positions SET title = $2, description = $3, display_order = $4
		WHERE id = $1
	`, uuid.UUID(p.ID), p.Title, p.Description, p.DisplayOrder)
	if err != nil {
		return fmt.Errorf("update position: %w", translate(err))
	}
	return requireRow(res, "update position")
}

func (s *PostgresStore) GetPosition(ctx context.Context, positionID id.PositionID) (*models.Position, error) {
	row := tx.Or(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = $1`, uuid.UUID(positionID))
	p, err := scanPosition(row)
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) DeletePosition(ctx context.Context, positionID id.PositionID) error {
	res, err := tx.Or(ctx, s.db).ExecContext(ctx, `DELETE FROM positions WHERE id = $1`, uuid.UUID(positionID))
	if err != nil {
		return fmt.Errorf("delete position: %w", translate(err))
	}
	return requireRow(res, "delete position")
}

func (s *PostgresStore) ListPositions(ctx context.Context, electionID id.ElectionID) ([]*models.Position, error) {
	rows, err := tx.Or(ctx, s.db).QueryContext(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE election_id = $1
		ORDER BY display_order, id
	`, uuid.UUID(electionID))
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", translate(err))
	}
	defer rows.Close()

	out := make([]*models.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("list positions: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list positions: %w", translate(err))
	}
	return out, nil
}

func (s *PostgresStore) CountPositions(ctx context.Context, electionID id.ElectionID) (int, error) {
	var n int
	err := tx.Or(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE election_id = $1`, uuid.UUID(electionID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count positions: %w", translate(err))
	}
	return n, nil
}

func (s *PostgresStore) FindPositionByTitle(ctx context.Context, electionID id.ElectionID, title string) (*models.Position, error) {
	row := tx.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE election_id = $1 AND lower(title) = lower($2)
	`, uuid.UUID(electionID), strings.TrimSpace(title))
	p, err := scanPosition(row)
	if err != nil {
		return nil, fmt.Errorf("find position: %w", err)
	}
	return p, nil
}

const nominationColumns = `id, election_id, nominator_id, nominee_id, position, reason, created_at`

// CreateNomination returns sentinel.ErrConflict when the
// (election, nominator, lower(position)) unique index rejects the row.
func (s *PostgresStore) CreateNomination(ctx context.Context, n *models.Nomination) error {
	_, err := tx.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO nominations (`+nominationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(n.ID), uuid.UUID(n.ElectionID), uuid.UUID(n.NominatorID), uuid.UUID(n.NomineeID),
		n.Position, n.Reason, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create nomination: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) CountNominations(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID) (int, error) {
	var n int
	err := tx.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM nominations WHERE election_id = $1 AND nominator_id = $2
	`, uuid.UUID(electionID), uuid.UUID(nominatorID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count nominations: %w", translate(err))
	}
	return n, nil
}

func (s *PostgresStore) CountElectionNominations(ctx context.Context, electionID id.ElectionID) (int, error) {
	var n int
	err := tx.Or(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nominations WHERE election_id = $1`, uuid.UUID(electionID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count election nominations: %w", translate(err))
	}
	return n, nil
}

func (s *PostgresStore) HasNomination(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID, position string) (bool, error) {
	var exists bool
	err := tx.Or(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM nominations
			WHERE election_id = $1 AND nominator_id = $2 AND lower(position) = lower($3)
		)
	`, uuid.UUID(electionID), uuid.UUID(nominatorID), strings.TrimSpace(position)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check nomination: %w", translate(err))
	}
	return exists, nil
}

func (s *PostgresStore) ListNominations(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID) ([]*models.Nomination, error) {
	return s.queryNominations(ctx, `
		SELECT `+nominationColumns+` FROM nominations
		WHERE election_id = $1 AND nominator_id = $2
		ORDER BY created_at, id
	`, uuid.UUID(electionID), uuid.UUID(nominatorID))
}

func (s *PostgresStore) ListElectionNominations(ctx context.Context, electionID id.ElectionID) ([]*models.Nomination, error) {
	return s.queryNominations(ctx, `
		SELECT `+nominationColumns+` FROM nominations
		WHERE election_id = $1
		ORDER BY created_at, id
	`, uuid.UUID(electionID))
}

func (s *PostgresStore) queryNominations(ctx context.Context, query string, args ...any) ([]*models.Nomination, error) {
	rows, err := tx.Or(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nominations: %w", translate(err))
	}
	defer rows.Close()

	out := make([]*models.Nomination, 0)
	for rows.Next() {
		var n models.Nomination
		if err := rows.Scan(
			(*uuid.UUID)(&n.ID), (*uuid.UUID)(&n.ElectionID), (*uuid.UUID)(&n.NominatorID),
			(*uuid.UUID)(&n.NomineeID), &n.Position, &n.Reason, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan nomination: %w", err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list nominations: %w", translate(err))
	}
	return out, nil
}

func (s *PostgresStore) AppendOutbox(ctx context.Context, event *models.OutboxEvent) error {
	_, err := tx.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO election_outbox (id, event_type, election_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.EventType, uuid.UUID(event.ElectionID), string(event.Payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("append outbox: %w", translate(err))
	}
	return nil
}

func (s *PostgresStore) FetchPendingOutbox(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	rows, err := tx.Or(ctx, s.db).QueryContext(ctx, `
		SELECT id, event_type, election_id, payload, created_at
		FROM election_outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", translate(err))
	}
	defer rows.Close()

	out := make([]*models.OutboxEvent, 0, limit)
	for rows.Next() {
		var e models.OutboxEvent
		if err := rows.Scan(&e.ID, &e.EventType, (*uuid.UUID)(&e.ElectionID), &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", translate(err))
	}
	return out, nil
}

func (s *PostgresStore) MarkOutboxPublished(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	res, err := tx.Or(ctx, s.db).ExecContext(ctx,
		`UPDATE election_outbox SET published_at = $2 WHERE id = $1`, eventID, at)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", translate(err))
	}
	return requireRow(res, "mark outbox published")
}

// Ping is used by the health endpoint.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElection(row rowScanner) (*models.Election, error) {
	var e models.Election
	var status string
	err := row.Scan((*uuid.UUID)(&e.ID), &e.Title, &e.Description, &e.StartsAt, &e.EndsAt,
		&e.MaxNominationsPerMember, &status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	e.Status = models.Status(status)
	e.StartsAt = e.StartsAt.UTC()
	e.EndsAt = e.EndsAt.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	err := row.Scan((*uuid.UUID)(&p.ID), (*uuid.UUID)(&p.ElectionID), &p.Title, &p.Description,
		&p.DisplayOrder, &p.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// translate normalises driver errors into sentinels, leaving other errors
// intact so callers can still inspect them.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return sentinel.ErrNotFound
	case postgres.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", sentinel.ErrConflict, err)
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	default:
		return err
	}
}
