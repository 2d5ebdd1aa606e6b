package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	s := NewIdempotencyStore(rdb, time.Hour)
	ctx := context.Background()
	key := KeyIdemClaim(uuid.New(), "member:1", "abc")

	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(true)
	mock.ExpectGet(key).SetVal("LOCK")
	mock.ExpectSet(key, `RES:{"id":"x"}`, time.Hour).SetVal("OK")
	mock.ExpectGet(key).SetVal(`RES:{"id":"x"}`)

	ok, err := s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	locked, err := s.IsLocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, s.SaveResult(ctx, key, `{"id":"x"}`))

	payload, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"id":"x"}`, payload)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyIdemClaimIsScopedToCaller(t *testing.T) {
	ts := uuid.New()
	assert.NotEqual(t, KeyIdemClaim(ts, "member:1", "k"), KeyIdemClaim(ts, "member:2", "k"))
}
