package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/contentflow/pkg/errors"
)

// ===========================================================================
// Mock Implementation
// ===========================================================================

type mockCmdable struct {
	mock.Mock
}

func (m *mockCmdable) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	args := m.Called(ctx, cursor, match, count)
	return args.Get(0).(*redis.ScanCmd)
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Close() error {
	return m.Called().Error(0)
}

// ===========================================================================
// Command Result Helpers
// ===========================================================================

func newStatusCmd(val string, err error) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newStringCmd(val string, err error) *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newIntCmd(val int64, err error) *redis.IntCmd {
	cmd := redis.NewIntCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newScanCmd(page []string, cursor uint64, err error) *redis.ScanCmd {
	cmd := redis.NewScanCmd(context.Background(), nil)
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(page, cursor)
	}
	return cmd
}

// ===========================================================================
// Constructor
// ===========================================================================

func TestNewFromClient(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)

	client := NewFromClient(m, &Config{DB: 3})
	assert.Equal(t, 3, client.dbIndex)
	assert.EqualValues(t, DefaultScanCount, client.scanCount)

	client = NewFromClient(m, nil)
	require.NotNil(t, client.config)
	assert.Equal(t, 0, client.dbIndex)
}

// ===========================================================================
// Set / Get / Del
// ===========================================================================

func TestClient_Set(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Set", mock.Anything, "workflow:abc", []byte("{}"), 7*24*time.Hour).
		Return(newStatusCmd("OK", nil))

	client := NewFromClient(m, nil)
	require.NoError(t, client.Set(context.Background(), "workflow:abc", []byte("{}"), 7*24*time.Hour))
	m.AssertExpectations(t)
}

func TestClient_Set_ErrorClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want sserr.Code
	}{
		{"timeout", context.DeadlineExceeded, sserr.CodeTimeoutDatabase},
		{"canceled", context.Canceled, sserr.CodeInternalDatabase},
		{"readonly", errors.New("READONLY You can't write against a read only replica"), sserr.CodeInternalDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := new(mockCmdable)
			m.On("Set", mock.Anything, "k", "v", time.Duration(0)).Return(newStatusCmd("", tt.err))

			err := NewFromClient(m, nil).Set(context.Background(), "k", "v", 0)
			assert.Equal(t, tt.want, sserr.GetCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClient_Get(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Get", mock.Anything, "quota:2026-03-14").Return(newStringCmd("28000", nil))

	val, err := NewFromClient(m, nil).Get(context.Background(), "quota:2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, "28000", val)
}

func TestClient_Get_MissingKey(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Get", mock.Anything, "abuse:1.2.3.4").Return(newStringCmd("", redis.Nil))

	_, err := NewFromClient(m, nil).Get(context.Background(), "abuse:1.2.3.4")
	require.Error(t, err)
	assert.ErrorIs(t, err, Nil)
	assert.True(t, sserr.IsNotFound(err))
}

func TestClient_Get_Timeout(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Get", mock.Anything, "k").Return(newStringCmd("", context.DeadlineExceeded))

	_, err := NewFromClient(m, nil).Get(context.Background(), "k")
	assert.True(t, sserr.IsTimeout(err))
	assert.True(t, sserr.IsRetryable(err))
}

func TestClient_Del(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Del", mock.Anything, []string{"a", "b"}).Return(newIntCmd(1, nil))

	n, err := NewFromClient(m, nil).Del(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

// ===========================================================================
// ScanPrefix
// ===========================================================================

func TestClient_ScanPrefix_FollowsCursor(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Scan", mock.Anything, uint64(0), "alert:*", int64(DefaultScanCount)).
		Return(newScanCmd([]string{"alert:1", "alert:2"}, 17, nil)).Once()
	m.On("Scan", mock.Anything, uint64(17), "alert:*", int64(DefaultScanCount)).
		Return(newScanCmd([]string{"alert:3"}, 0, nil)).Once()

	keys, err := NewFromClient(m, nil).ScanPrefix(context.Background(), "alert:")
	require.NoError(t, err)
	assert.Equal(t, []string{"alert:1", "alert:2", "alert:3"}, keys)
	m.AssertExpectations(t)
}

func TestClient_ScanPrefix_EscapesGlob(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Scan", mock.Anything, uint64(0), `odd\*\[x\]:*`, int64(DefaultScanCount)).
		Return(newScanCmd(nil, 0, nil))

	keys, err := NewFromClient(m, nil).ScanPrefix(context.Background(), "odd*[x]:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestClient_ScanPrefix_Error(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Scan", mock.Anything, uint64(0), "workflow:*", int64(DefaultScanCount)).
		Return(newScanCmd(nil, 0, errors.New("connection reset")))

	_, err := NewFromClient(m, nil).ScanPrefix(context.Background(), "workflow:")
	assert.Equal(t, sserr.CodeInternalDatabase, sserr.GetCode(err))
}

// ===========================================================================
// Health / Close
// ===========================================================================

func TestClient_Health(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})).Return(newStatusCmd("PONG", nil))

	require.NoError(t, NewFromClient(m, nil).Health(context.Background()))
	m.AssertExpectations(t)
}

func TestClient_Health_Unavailable(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.Anything).Return(newStatusCmd("", errors.New("dial tcp: connection refused")))

	err := NewFromClient(m, nil).Health(context.Background())
	assert.Equal(t, sserr.CodeUnavailableDependency, sserr.GetCode(err))
}

func TestClient_Close(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Close").Return(nil)

	require.NoError(t, NewFromClient(m, nil).Close())
	m.AssertExpectations(t)
}
