package session

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return NewStore(adapter, ttl), mr
}

func TestStore_CreateAndGet(t *testing.T) {
	store, _ := setupStore(t, time.Hour)

	sess, err := store.Create(42, model.RoleCustomer, "alice.w")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.SubjectID)
	assert.Equal(t, model.RoleCustomer, got.Role)
	assert.Equal(t, "alice.w", got.Username)
}

func TestStore_IdentifiersAreUnique(t *testing.T) {
	store, _ := setupStore(t, time.Hour)

	a, err := store.Create(1, model.RoleCustomer, "a")
	require.NoError(t, err)
	b, err := store.Create(1, model.RoleCustomer, "a")
	require.NoError(t, err)

	// Same subject, two independent sessions.
	assert.NotEqual(t, a.ID, b.ID)
}

func TestStore_Get_Unknown(t *testing.T) {
	store, _ := setupStore(t, time.Hour)

	_, err := store.Get("never-issued")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Regenerate(t *testing.T) {
	store, _ := setupStore(t, time.Hour)

	old, err := store.Create(7, model.RoleEmployee, "EMP1001")
	require.NoError(t, err)

	fresh, err := store.Regenerate(old.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Equal(t, int64(7), fresh.SubjectID)
	assert.Equal(t, model.RoleEmployee, fresh.Role)

	// The old identifier must be dead; anyone who captured it pre-login
	// holds nothing.
	_, err = store.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.Get(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, "EMP1001", got.Username)
}

func TestStore_Destroy(t *testing.T) {
	store, _ := setupStore(t, time.Hour)

	sess, err := store.Create(7, model.RoleCustomer, "alice.w")
	require.NoError(t, err)

	require.NoError(t, store.Destroy(sess.ID))
	_, err = store.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Destroying twice is a no-op, not an error.
	assert.NoError(t, store.Destroy(sess.ID))
}

func TestStore_ExpiresWithTTL(t *testing.T) {
	store, mr := setupStore(t, 30*time.Minute)

	sess, err := store.Create(7, model.RoleCustomer, "alice.w")
	require.NoError(t, err)

	mr.FastForward(29 * time.Minute)
	_, err = store.Get(sess.ID)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
