//go:build integration

package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"electa/internal/election/cache"
	id "electa/pkg/domain"
	"electa/pkg/testutil/containers"
)

type RedisQuotaCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.RedisQuotaCache
}

func TestRedisQuotaCacheSuite(t *testing.T) {
	suite.Run(t, new(RedisQuotaCacheSuite))
}

func (s *RedisQuotaCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisQuotaCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.cache = cache.NewRedisQuotaCache(s.redis.Client, cache.WithTTL(time.Second))
}

func (s *RedisQuotaCacheSuite) TestGetSet() {
	ctx := context.Background()
	electionID := id.NewElectionID()
	memberID := id.MemberID(uuid.New())

	s.Run("miss before any write", func() {
		_, ok, err := s.cache.GetUsed(ctx, electionID, memberID)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("hit after write", func() {
		s.Require().NoError(s.cache.SetUsed(ctx, electionID, memberID, 2))
		used, ok, err := s.cache.GetUsed(ctx, electionID, memberID)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(2, used)
	})

	s.Run("entries are scoped per member", func() {
		_, ok, err := s.cache.GetUsed(ctx, electionID, id.MemberID(uuid.New()))
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *RedisQuotaCacheSuite) TestExpiry() {
	ctx := context.Background()
	electionID := id.NewElectionID()
	memberID := id.MemberID(uuid.New())

	s.Require().NoError(s.cache.SetUsed(ctx, electionID, memberID, 1))
	s.Eventually(func() bool {
		_, ok, err := s.cache.GetUsed(ctx, electionID, memberID)
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisQuotaCacheSuite) TestSetUsedNeverLowersCount() {
	ctx := context.Background()
	electionID := id.NewElectionID()
	memberID := id.MemberID(uuid.New())

	s.Run("a stale lower count is ignored", func() {
		s.Require().NoError(s.cache.SetUsed(ctx, electionID, memberID, 3))
		s.Require().NoError(s.cache.SetUsed(ctx, electionID, memberID, 2))
		used, ok, err := s.cache.GetUsed(ctx, electionID, memberID)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(3, used)
	})

	s.Run("a higher count replaces the entry", func() {
		s.Require().NoError(s.cache.SetUsed(ctx, electionID, memberID, 4))
		used, _, err := s.cache.GetUsed(ctx, electionID, memberID)
		s.Require().NoError(err)
		s.Equal(4, used)
	})

	s.Run("concurrent writers settle on the highest count", func() {
		other := id.MemberID(uuid.New())
		var wg sync.WaitGroup
		for used := 10; used >= 0; used-- {
			wg.Add(1)
			go func(used int) {
				defer wg.Done()
				s.NoError(s.cache.SetUsed(ctx, electionID, other, used))
			}(used)
		}
		wg.Wait()
		used, ok, err := s.cache.GetUsed(ctx, electionID, other)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal(10, used)
	})
}
