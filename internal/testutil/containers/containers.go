//go:build integration

// Package containers starts the backing services used by the
// integration tests: Redis and PostgreSQL for the key-value store, and
// MinIO for the artifact archive. Only test files carrying the
// "integration" build tag may import it.
//
//	result, err := containers.StartRedis(ctx)
//	if err != nil { ... }
//	defer result.Container.Terminate(ctx)
package containers

import (
	"context"
	"fmt"

	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// Images and credentials for ephemeral test containers.
const (
	RedisImage    = "docker.io/redis:7-alpine"
	PostgresImage = "docker.io/postgres:16-alpine"
	MinIOImage    = "docker.io/minio/minio:latest"

	PostgresDatabase = "contentflow_test"
	PostgresUser     = "testuser"
	PostgresPassword = "testpassword"

	MinIOAccessKey = "minioadmin"
	MinIOSecretKey = "minioadmin"
)

// RedisResult is a running Redis container and its redis:// URI.
type RedisResult struct {
	Container  *tcredis.RedisContainer
	ConnString string
}

// StartRedis starts a Redis 7 container.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, RedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis: %w", err)
	}
	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: redis connection string: %w", err)
	}
	return &RedisResult{Container: container, ConnString: uri}, nil
}

// PostgresResult is a running PostgreSQL container and a DSN with
// sslmode=disable.
type PostgresResult struct {
	Container  *tcpostgres.PostgresContainer
	ConnString string
}

// StartPostgres starts a PostgreSQL 16 container.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		PostgresImage,
		tcpostgres.WithDatabase(PostgresDatabase),
		tcpostgres.WithUsername(PostgresUser),
		tcpostgres.WithPassword(PostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: postgres connection string: %w", err)
	}
	return &PostgresResult{Container: container, ConnString: dsn}, nil
}

// MinIOResult is a running MinIO container with its host:port endpoint.
type MinIOResult struct {
	Container *tcminio.MinioContainer
	Endpoint  string
	AccessKey string
	SecretKey string
}

// StartMinIO starts a MinIO container with the default root credentials.
func StartMinIO(ctx context.Context) (*MinIOResult, error) {
	container, err := tcminio.Run(ctx,
		MinIOImage,
		tcminio.WithUsername(MinIOAccessKey),
		tcminio.WithPassword(MinIOSecretKey),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start minio: %w", err)
	}
	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: minio endpoint: %w", err)
	}
	return &MinIOResult{
		Container: container,
		Endpoint:  endpoint,
		AccessKey: MinIOAccessKey,
		SecretKey: MinIOSecretKey,
	}, nil
}
