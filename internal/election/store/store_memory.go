package store

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"electa/internal/election/models"
	id "electa/pkg/domain"
	"electa/pkg/platform/sentinel"
)

const (
	// numNominatorShards bounds the lock table used to serialize submissions
	// per (election, nominator) pair.
	numNominatorShards = 128
	numElectionShards  = 64
)

var (
	errNoTx        = errors.New("lock requires an active transaction")
	errLockUpgrade = errors.New("cannot upgrade a shared election lock")
)

type memTxKey struct{}

// memTx tracks the locks taken inside one RunInTx call; they are all released
// when the unit of work ends, like transaction-scoped row and advisory locks.
type memTx struct {
	nominators map[int]struct{}
	// elections maps a shard to true when held exclusively.
	elections map[int]bool
}

// InMemoryStore keeps elections, positions, the nomination ledger and the
// outbox in maps. Writes are not rolled back on error, so services perform the
// ledger insert as the final fallible step of a unit of work.
type InMemoryStore struct {
	nominatorShards [numNominatorShards]sync.Mutex
	electionShards  [numElectionShards]sync.RWMutex

	mu          sync.RWMutex
	elections   map[id.ElectionID]*models.Election
	positions   map[id.PositionID]*models.Position
	nominations map[id.ElectionID][]*models.Nomination
	outbox      []*models.OutboxEvent
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		elections:   make(map[id.ElectionID]*models.Election),
		positions:   make(map[id.PositionID]*models.Position),
		nominations: make(map[id.ElectionID][]*models.Nomination),
	}
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}
	t := &memTx{
		nominators: make(map[int]struct{}),
		elections:  make(map[int]bool),
	}
	defer func() {
		for shard := range t.nominators {
			s.nominatorShards[shard].Unlock()
		}
		for shard, exclusive := range t.elections {
			if exclusive {
				s.electionShards[shard].Unlock()
			} else {
				s.electionShards[shard].RUnlock()
			}
		}
	}()
	return fn(context.WithValue(ctx, memTxKey{}, t))
}

// acquire runs lock while respecting cancellation. A lock obtained after ctx
// is done is handed back with unlock.
func acquire(ctx context.Context, lock, unlock func()) error {
	acquired := make(chan struct{})
	go func() {
		lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		go func() {
			<-acquired
			unlock()
		}()
		return ctx.Err()
	}
}

// LockNominator blocks until no other unit of work holds the lock for the pair.
func (s *InMemoryStore) LockNominator(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID) error {
	t, ok := ctx.Value(memTxKey{}).(*memTx)
	if !ok {
		return errNoTx
	}
	shard := nominatorShard(electionID, nominatorID)
	if _, held := t.nominators[shard]; held {
		return nil
	}
	mu := &s.nominatorShards[shard]
	if err := acquire(ctx, mu.Lock, mu.Unlock); err != nil {
		return err
	}
	t.nominators[shard] = struct{}{}
	return nil
}

func (s *InMemoryStore) lockElection(ctx context.Context, electionID id.ElectionID, exclusive bool) error {
	t, ok := ctx.Value(memTxKey{}).(*memTx)
	if !ok {
		return errNoTx
	}
	shard := electionShard(electionID)
	if held, ok := t.elections[shard]; ok {
		if exclusive && !held {
			return errLockUpgrade
		}
		return nil
	}
	mu := &s.electionShards[shard]
	lock, unlock := mu.RLock, mu.RUnlock
	if exclusive {
		lock, unlock = mu.Lock, mu.Unlock
	}
	if err := acquire(ctx, lock, unlock); err != nil {
		return err
	}
	t.elections[shard] = exclusive
	return nil
}

func nominatorShard(electionID id.ElectionID, nominatorID id.MemberID) int {
	h := fnv.New32a()
	e := uuid.UUID(electionID)
	m := uuid.UUID(nominatorID)
	_, _ = h.Write(e[:])
	_, _ = h.Write(m[:])
	return int(h.Sum32() % numNominatorShards)
}

func electionShard(electionID id.ElectionID) int {
	h := fnv.New32a()
	e := uuid.UUID(electionID)
	_, _ = h.Write(e[:])
	return int(h.Sum32() % numElectionShards)
}

// Elections

func (s *InMemoryStore) CreateElection(_ context.Context, e *models.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[e.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *e
	s.elections[e.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateElection(_ context.Context, e *models.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[e.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *e
	s.elections[e.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetElection(_ context.Context, electionID id.ElectionID) (*models.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.elections[electionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// LockElection reads the election under a shared lock held until the unit of
// work ends. Submissions share it; LockElectionForUpdate excludes them.
func (s *InMemoryStore) LockElection(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	if err := s.lockElection(ctx, electionID, false); err != nil {
		return nil, err
	}
	return s.GetElection(ctx, electionID)
}

// LockElectionForUpdate reads the election under an exclusive lock held until
// the unit of work ends.
func (s *InMemoryStore) LockElectionForUpdate(ctx context.Context, electionID id.ElectionID) (*models.Election, error) {
	if err := s.lockElection(ctx, electionID, true); err != nil {
		return nil, err
	}
	return s.GetElection(ctx, electionID)
}

func (s *InMemoryStore) ListElections(_ context.Context, statuses ...models.Status) ([]*models.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Election, 0, len(s.elections))
	for _, e := range s.elections {
		if len(statuses) > 0 && !containsStatus(statuses, e.Status) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func containsStatus(statuses []models.Status, s models.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// DeleteElection cascades to positions and nominations.
func (s *InMemoryStore) DeleteElection(_ context.Context, electionID id.ElectionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[electionID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.elections, electionID)
	delete(s.nominations, electionID)
	for pid, p := range s.positions {
		if p.ElectionID == electionID {
			delete(s.positions, pid)
		}
	}
	return nil
}

// Positions

func (s *InMemoryStore) CreatePosition(_ context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.titleTakenLocked(p.ElectionID, p.Title, p.ID) {
		return sentinel.ErrConflict
	}
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdatePosition(_ context.Context, p *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.titleTakenLocked(p.ElectionID, p.Title, p.ID) {
		return sentinel.ErrConflict
	}
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) titleTakenLocked(electionID id.ElectionID, title string, except id.PositionID) bool {
	key := models.TitleKey(title)
	for _, existing := range s.positions {
		if existing.ElectionID == electionID && existing.ID != except && models.TitleKey(existing.Title) == key {
			return true
		}
	}
	return false
}

func (s *InMemoryStore) GetPosition(_ context.Context, positionID id.PositionID) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) DeletePosition(_ context.Context, positionID id.PositionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[positionID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.positions, positionID)
	return nil
}

func (s *InMemoryStore) ListPositions(_ context.Context, electionID id.ElectionID) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Position, 0)
	for _, p := range s.positions {
		if p.ElectionID == electionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return models.LessPosition(out[i], out[j]) })
	return out, nil
}

func (s *InMemoryStore) CountPositions(_ context.Context, electionID id.ElectionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.positions {
		if p.ElectionID == electionID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) FindPositionByTitle(_ context.Context, electionID id.ElectionID, title string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := models.TitleKey(title)
	for _, p := range s.positions {
		if p.ElectionID == electionID && models.TitleKey(p.Title) == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Nomination ledger

// CreateNomination appends to the ledger. The (election, nominator, position)
// uniqueness check runs under the write lock, so two racing duplicates can
// never both land.
func (s *InMemoryStore) CreateNomination(_ context.Context, n *models.Nomination) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[n.ElectionID]; !ok {
		return sentinel.ErrNotFound
	}
	key := models.TitleKey(n.Position)
	for _, existing := range s.nominations[n.ElectionID] {
		if existing.NominatorID == n.NominatorID && models.TitleKey(existing.Position) == key {
			return sentinel.ErrConflict
		}
	}
	cp := *n
	s.nominations[n.ElectionID] = append(s.nominations[n.ElectionID], &cp)
	return nil
}

func (s *InMemoryStore) CountNominations(_ context.Context, electionID id.ElectionID, nominatorID id.MemberID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, existing := range s.nominations[electionID] {
		if existing.NominatorID == nominatorID {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) CountElectionNominations(_ context.Context, electionID id.ElectionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nominations[electionID]), nil
}

func (s *InMemoryStore) HasNomination(_ context.Context, electionID id.ElectionID, nominatorID id.MemberID, position string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := models.TitleKey(position)
	for _, existing := range s.nominations[electionID] {
		if existing.NominatorID == nominatorID && models.TitleKey(existing.Position) == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListNominations(_ context.Context, electionID id.ElectionID, nominatorID id.MemberID) ([]*models.Nomination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Nomination, 0)
	for _, existing := range s.nominations[electionID] {
		if existing.NominatorID == nominatorID {
			cp := *existing
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListElectionNominations(_ context.Context, electionID id.ElectionID) ([]*models.Nomination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Nomination, 0, len(s.nominations[electionID]))
	for _, existing := range s.nominations[electionID] {
		cp := *existing
		out = append(out, &cp)
	}
	return out, nil
}

// Outbox

func (s *InMemoryStore) AppendOutbox(_ context.Context, event *models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.outbox = append(s.outbox, &cp)
	return nil
}

func (s *InMemoryStore) FetchPendingOutbox(_ context.Context, limit int) ([]*models.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.OutboxEvent, 0, limit)
	for _, event := range s.outbox {
		if event.PublishedAt != nil {
			continue
		}
		cp := *event
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkOutboxPublished(_ context.Context, eventID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.outbox {
		if event.ID == eventID {
			published := at
			event.PublishedAt = &published
			return nil
		}
	}
	return sentinel.ErrNotFound
}
