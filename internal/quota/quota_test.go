package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botrelay/internal/model"
	"botrelay/internal/registry"
	"botrelay/internal/store"
)

func setup(t *testing.T) (*registry.Registry, *Enforcer, model.Session) {
	t.Helper()
	r := registry.New(registry.Options{Store: store.NewMemory(store.MemoryOptions{})})
	sess, err := r.Create(context.Background(), registry.CreateInput{
		OwnerRef:      "owner",
		CredentialRef: "cred",
		Mode:          model.ModeTrial,
	})
	require.NoError(t, err)
	return r, NewEnforcer(r), sess
}

func TestTryConsumeConcurrentNeverExceedsLimit(t *testing.T) {
	r, e, sess := setup(t)
	ctx := context.Background()

	const callers = 100
	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := e.TryConsume(ctx, sess.ID)
			assert.NoError(t, err)
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(model.DefaultQuotaLimit), allowed.Load())
	got, err := r.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, model.DefaultQuotaLimit, got.MessageCount)
}

func TestTryConsumeSequential(t *testing.T) {
	r, e, sess := setup(t)
	ctx := context.Background()

	for i := 1; i <= model.DefaultQuotaLimit; i++ {
		res, err := e.TryConsume(ctx, sess.ID)
		require.NoError(t, err)
		require.True(t, res.Allowed, "send %d should be allowed", i)
		require.Equal(t, i, res.NewCount)
	}

	for i := 0; i < 2; i++ {
		res, err := e.TryConsume(ctx, sess.ID)
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, model.DefaultQuotaLimit, res.NewCount)
	}

	got, _ := r.Get(ctx, sess.ID)
	require.Equal(t, model.DefaultQuotaLimit, got.MessageCount)
}

func TestTryConsumeAuthorizedUntouched(t *testing.T) {
	r, e, sess := setup(t)
	ctx := context.Background()

	exp := time.Now().Add(time.Hour)
	_, _, err := r.SetMode(ctx, sess.ID, model.ModeAuthorized, &exp)
	require.NoError(t, err)

	for i := 0; i < model.DefaultQuotaLimit+5; i++ {
		res, err := e.TryConsume(ctx, sess.ID)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	got, _ := r.Get(ctx, sess.ID)
	require.Equal(t, 0, got.MessageCount)
}

func TestTryConsumeUnknownSession(t *testing.T) {
	_, e, _ := setup(t)
	_, err := e.TryConsume(context.Background(), "nope")
	require.ErrorIs(t, err, model.ErrNotFound)
}
