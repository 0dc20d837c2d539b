package member

import (
	"context"
	"sync"

	id "electa/pkg/domain"
	"electa/pkg/platform/sentinel"
)

// StaticDirectory is an in-memory directory for development and tests.
type StaticDirectory struct {
	mu      sync.RWMutex
	members map[id.MemberID]Member
}

func NewStaticDirectory(members ...Member) *StaticDirectory {
	d := &StaticDirectory{members: make(map[id.MemberID]Member, len(members))}
	for _, m := range members {
		d.members[m.ID] = m
	}
	return d
}

func (d *StaticDirectory) Add(m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.ID] = m
}

func (d *StaticDirectory) Resolve(_ context.Context, memberID id.MemberID) (*Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[memberID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &m, nil
}
