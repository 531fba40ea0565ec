package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/dentvid-api/pkg/errors"
)

func TestCacheRepositoryRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewCacheRepository(client, "dentvid:", nil)
	ctx := context.Background()

	var out []string
	assert.ErrorIs(t, repo.Get(ctx, "categories", &out), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "categories", []string{"Orthodontics"}, time.Minute))
	assert.True(t, mr.Exists("dentvid:categories"))

	require.NoError(t, repo.Get(ctx, "categories", &out))
	assert.Equal(t, []string{"Orthodontics"}, out)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, repo.Get(ctx, "categories", &out), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, repo.Delete(ctx, "a"))
	assert.False(t, mr.Exists("dentvid:a"))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil, "x:", nil)
	var v int
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &v), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", 1, time.Second))
	assert.NoError(t, repo.Ping(context.Background()))
}
