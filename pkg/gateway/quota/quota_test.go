package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC)

func TestKey_IsPerUTCDay(t *testing.T) {
	local := time.Date(2026, 5, 4, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	assert.Equal(t, "{resilios:chats}:u1:2026-05-05", Key("u1", local))
	assert.Equal(t, "{resilios:chats}:u1:2026-05-04", Key("u1", testNow))
}

func TestCounter_UsedMissingKeyIsZero(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectGet(Key("u1", testNow)).RedisNil()

	n, err := c.Used(context.Background(), "u1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCounter_UsedReadsCount(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectGet(Key("u1", testNow)).SetVal("42")

	n, err := c.Used(context.Background(), "u1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCounter_UsedPropagatesErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	mock.ExpectGet(Key("u1", testNow)).SetErr(errors.New("connection refused"))

	_, err := c.Used(context.Background(), "u1", testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read chat count")
}

func TestCounter_RecordRunsScriptWithEndOfDayExpiry(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	expireAt := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC).Unix()
	mock.ExpectEvalSha(recordScript.Hash(), []string{Key("u1", testNow)}, expireAt).SetVal(int64(1))

	require.NoError(t, c.Record(context.Background(), "u1", testNow))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCounter_RecordError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := New(db)

	expireAt := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC).Unix()
	mock.ExpectEvalSha(recordScript.Hash(), []string{Key("u1", testNow)}, expireAt).SetErr(redis.ErrClosed)

	err := c.Record(context.Background(), "u1", testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, redis.ErrClosed)
}
