package snapstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(id byte) *Record {
	return &Record{
		MessageID:  []byte{id, 0x02, 0x03},
		MessageBOC: []byte("message"),
		AccountBOC: []byte("account"),
		ConfigBOC:  []byte("config"),
		Addr:       "0:00",
		LT:         12345,
		Now:        1700000000,
		ExpireAt:   1700000060,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	rec := sampleRecord(0x01)
	require.NoError(t, s.Put(rec))
	assert.False(t, rec.CreatedAt.IsZero(), "Put stamps the creation time")

	got, err := s.Get(rec.MessageID)
	require.NoError(t, err)
	assert.Equal(t, rec.MessageID, got.MessageID)
	assert.Equal(t, rec.MessageBOC, got.MessageBOC)
	assert.Equal(t, rec.AccountBOC, got.AccountBOC)
	assert.Equal(t, rec.ConfigBOC, got.ConfigBOC)
	assert.Equal(t, rec.LT, got.LT)
	assert.Equal(t, rec.Now, got.Now)
	assert.Equal(t, rec.ExpireAt, got.ExpireAt)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Second)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get([]byte{0xFF})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutValidation(t *testing.T) {
	s := openTestStore(t)

	require.Error(t, s.Put(nil))
	require.Error(t, s.Put(&Record{}))
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)

	rec := sampleRecord(0x01)
	require.NoError(t, s.Put(rec))
	require.NoError(t, s.Delete(rec.MessageID))

	_, err := s.Get(rec.MessageID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(rec.MessageID))
}

func TestListAndCount(t *testing.T) {
	s := openTestStore(t)

	for i := byte(1); i <= 5; i++ {
		require.NoError(t, s.Put(sampleRecord(i)))
	}

	all, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	two, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
