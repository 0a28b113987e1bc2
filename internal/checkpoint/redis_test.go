package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyAHash = "checkpoint:1:0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestRedisStoreGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")

	mock.ExpectHGetAll(keyAHash).SetVal(map[string]string{
		"block":      "150",
		"version":    "3",
		"updated_at": "2026-10-01T12:00:00Z",
	})

	cp, ok, err := store.Get(context.Background(), keyA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(150), cp.LastProcessedBlock)
	assert.Equal(t, uint64(3), cp.Version)
	assert.Equal(t, 2026, cp.UpdatedAt.Year())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreGetMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")

	mock.ExpectHGetAll(keyAHash).SetVal(map[string]string{})

	cp, ok, err := store.Get(context.Background(), keyA)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, keyA, cp.Key())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStoreGetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")

	mock.ExpectHGetAll(keyAHash).SetErr(errors.New("connection refused"))

	_, _, err := store.Get(context.Background(), keyA)
	assert.Error(t, err)
}

func TestRedisStoreGetCorrupt(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")

	mock.ExpectHGetAll(keyAHash).SetVal(map[string]string{"block": "abc", "version": "1"})

	_, _, err := store.Get(context.Background(), keyA)
	assert.Error(t, err)
}

func TestRedisStoreListAndDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "")

	mock.ExpectSMembers("checkpoint:keys").SetVal([]string{keyA.String()})
	mock.ExpectHGetAll(keyAHash).SetVal(map[string]string{"block": "7", "version": "1"})
	mock.ExpectDel(keyAHash).SetVal(1)
	mock.ExpectSRem("checkpoint:keys", keyA.String()).SetVal(1)

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(7), list[0].LastProcessedBlock)

	require.NoError(t, store.Delete(context.Background(), keyA))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseKey(t *testing.T) {
	key, err := parseKey("56:0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	require.NoError(t, err)
	assert.Equal(t, keyB, key)

	_, err = parseKey("no-separator")
	assert.Error(t, err)
}
