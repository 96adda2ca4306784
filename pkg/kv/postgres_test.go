package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/contentflow/internal/testutil/fixtures"
	"github.com/StricklySoft/contentflow/pkg/clients/postgres"
	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

func newPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := NewPostgresStore(postgres.NewFromPool(mock, nil))
	s.now = func() time.Time { return fixtures.Now }
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectExec(createTableSQL).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectQuery(getSQL).
		WithArgs("workflow:a", fixtures.Now).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`{"id":"a"}`)))

	v, ok, err := s.Get(context.Background(), "workflow:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"a"}`, string(v))
}

func TestPostgresStore_Get_Absent(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectQuery(getSQL).WithArgs("workflow:none", fixtures.Now).WillReturnError(pgx.ErrNoRows)

	_, ok, err := s.Get(context.Background(), "workflow:none")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresStore_Get_Error(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectQuery(getSQL).WithArgs("k", fixtures.Now).WillReturnError(errors.New("connection reset"))

	_, _, err := s.Get(context.Background(), "k")
	assert.True(t, sserr.IsInternal(err))
}

func TestPostgresStore_Put(t *testing.T) {
	s, mock := newPostgresStore(t)
	expires := fixtures.Now.Add(7 * 24 * time.Hour)
	mock.ExpectExec(putSQL).
		WithArgs("alert:1", []byte("{}"), &expires).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Put(context.Background(), "alert:1", []byte("{}"), 7*24*time.Hour))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Put_NoTTL(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectExec(putSQL).
		WithArgs("k", []byte("v"), (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Put(context.Background(), "k", []byte("v"), 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectQuery(listSQL).
		WithArgs(`odd\_%`, fixtures.Now).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow("odd_key"))

	keys, err := s.List(context.Background(), "odd_")
	require.NoError(t, err)
	assert.Equal(t, []string{"odd_key"}, keys)
}

func TestPostgresStore_Purge(t *testing.T) {
	s, mock := newPostgresStore(t)
	mock.ExpectExec(purgeSQL).
		WithArgs(fixtures.Now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.Purge(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, `workflow:%`, likePrefix("workflow:"))
	assert.Equal(t, `a\%b\_c\\%`, likePrefix(`a%b_c\`))
}
