package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enrollmentList struct {
	IDs []string `json:"ids"`
}

func exerciseVersioned(t *testing.T, c Cache) {
	ctx := context.Background()
	v := NewVersioned(c, time.Minute)

	key, err := v.Key(ctx, "enrollments", "u1")
	require.NoError(t, err)
	assert.Equal(t, "enrollments:u1:v0", key)

	var out enrollmentList
	hit, err := v.GetJSON(ctx, "enrollments", "u1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, v.SetJSON(ctx, "enrollments", "u1", enrollmentList{IDs: []string{"e1"}}))
	hit, err = v.GetJSON(ctx, "enrollments", "u1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"e1"}, out.IDs)

	require.NoError(t, v.Bump(ctx, "enrollments", "u1"))

	key, err = v.Key(ctx, "enrollments", "u1")
	require.NoError(t, err)
	assert.Equal(t, "enrollments:u1:v1", key)

	hit, err = v.GetJSON(ctx, "enrollments", "u1", &out)
	require.NoError(t, err)
	assert.False(t, hit, "bump must hide the previous version")

	// другой пользователь не затронут
	key, err = v.Key(ctx, "enrollments", "u2")
	require.NoError(t, err)
	assert.Equal(t, "enrollments:u2:v0", key)
}

func TestVersioned_Memory(t *testing.T) {
	exerciseVersioned(t, NewMemoryCache())
}

func TestVersioned_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	defer c.Close()

	exerciseVersioned(t, c)
}

func TestMemoryCache_Expiration(t *testing.T) {
	m := NewMemoryCache()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(context.Background(), "k", "v", time.Second))
	got, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(2 * time.Second)
	_, err = m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
