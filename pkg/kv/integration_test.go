//go:build integration

// Integration tests for the Redis and PostgreSQL stores. They start real
// containers through testcontainers-go and run the same contract as the
// in-memory store.
//
//	go test -v -race -tags=integration ./pkg/kv/...
package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/StricklySoft/contentflow/internal/testutil/containers"
	"github.com/StricklySoft/contentflow/pkg/clients/postgres"
	"github.com/StricklySoft/contentflow/pkg/clients/redis"
)

// ===========================================================================
// Redis
// ===========================================================================

type RedisStoreSuite struct {
	suite.Suite
	ctx    context.Context
	result *containers.RedisResult
	client *redis.Client
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	result, err := containers.StartRedis(s.ctx)
	require.NoError(s.T(), err, "failed to start Redis container")
	s.result = result

	client, err := redis.NewClient(s.ctx, redis.Config{URI: result.ConnString})
	require.NoError(s.T(), err, "failed to create Redis client")
	s.client = client
}

func (s *RedisStoreSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.result != nil {
		if err := s.result.Container.Terminate(s.ctx); err != nil {
			s.T().Logf("failed to terminate redis container: %v", err)
		}
	}
}

func (s *RedisStoreSuite) TestContract() {
	runStoreContract(s.T(), NewRedisStore(s.client))
}

func (s *RedisStoreSuite) TestExpiry() {
	store := NewRedisStore(s.client)
	require.NoError(s.T(), store.Put(s.ctx, "abuse:ttl", []byte("{}"), time.Second))

	require.Eventually(s.T(), func() bool {
		_, ok, err := store.Get(s.ctx, "abuse:ttl")
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)
}

func TestRedisStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

// ===========================================================================
// PostgreSQL
// ===========================================================================

type PostgresStoreSuite struct {
	suite.Suite
	ctx    context.Context
	result *containers.PostgresResult
	client *postgres.Client
	store  *PostgresStore
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	result, err := containers.StartPostgres(s.ctx)
	require.NoError(s.T(), err, "failed to start PostgreSQL container")
	s.result = result

	client, err := postgres.NewClient(s.ctx, postgres.Config{URI: result.ConnString})
	require.NoError(s.T(), err, "failed to create PostgreSQL client")
	s.client = client

	s.store = NewPostgresStore(client)
	require.NoError(s.T(), s.store.Migrate(s.ctx))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.result != nil {
		if err := s.result.Container.Terminate(s.ctx); err != nil {
			s.T().Logf("failed to terminate postgres container: %v", err)
		}
	}
}

func (s *PostgresStoreSuite) TestContract() {
	runStoreContract(s.T(), s.store)
}

func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	require.NoError(s.T(), s.store.Migrate(s.ctx))
}

func (s *PostgresStoreSuite) TestExpiryAndPurge() {
	base := time.Now()
	s.store.now = func() time.Time { return base }
	defer func() { s.store.now = time.Now }()

	require.NoError(s.T(), s.store.Put(s.ctx, "abuse:old", []byte("{}"), time.Minute))

	s.store.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok, err := s.store.Get(s.ctx, "abuse:old")
	require.NoError(s.T(), err)
	s.False(ok)

	n, err := s.store.Purge(s.ctx)
	require.NoError(s.T(), err)
	s.GreaterOrEqual(n, int64(1))
}

func TestPostgresStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}
