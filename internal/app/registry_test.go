package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berryBot/internal/domain"
)

func TestRegistryAddRejectsSecondEntry(t *testing.T) {
	r := NewRegistry()
	first := &Bot{channel: "foo"}
	require.NoError(t, r.Add("#Foo", first))

	err := r.Add("foo", &Bot{channel: "foo"})
	require.ErrorIs(t, err, domain.ErrRegistryConflict)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryGetOnlyReturnsRunningBots(t *testing.T) {
	r := NewRegistry()
	bot := &Bot{channel: "foo"}
	require.NoError(t, r.Add("foo", bot))

	_, ok := r.Get("foo")
	assert.False(t, ok, "starting bot must not be handed out")

	require.True(t, r.markRunning("foo", bot))
	got, ok := r.Get("FOO")
	require.True(t, ok)
	assert.Same(t, bot, got)
	assert.Equal(t, []string{"foo"}, r.Channels())

	stopping, ok := r.beginStop("foo")
	require.True(t, ok)
	assert.Same(t, bot, stopping)
	_, ok = r.Get("foo")
	assert.False(t, ok, "stopping bot must not be handed out")

	err := r.Add("foo", &Bot{channel: "foo"})
	assert.ErrorIs(t, err, domain.ErrRegistryConflict)
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("foo", &Bot{channel: "foo"}))

	assert.True(t, r.Remove("#FOO"))
	assert.False(t, r.Remove("foo"))
	assert.False(t, r.Remove("never-added"))
	assert.Equal(t, 0, r.Len())
	require.NoError(t, r.Add("foo", &Bot{channel: "foo"}))
}

func TestRegistryRemoveKeepsBotWithLiveReadLoop(t *testing.T) {
	r := NewRegistry()
	bot := &Bot{channel: "foo", done: make(chan struct{})}
	require.NoError(t, r.Add("foo", bot))
	require.True(t, r.markRunning("foo", bot))

	assert.False(t, r.Remove("foo"))
	assert.ErrorIs(t, r.Add("foo", &Bot{channel: "foo"}), domain.ErrRegistryConflict)
	assert.Equal(t, []string{"foo"}, r.Channels())

	close(bot.done)
	assert.True(t, r.Remove("foo"))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRemoveIfChecksOwner(t *testing.T) {
	r := NewRegistry()
	owner := &Bot{channel: "foo"}
	require.NoError(t, r.Add("foo", owner))

	assert.False(t, r.removeIf("foo", &Bot{channel: "foo"}))
	assert.True(t, r.removeIf("foo", owner))
	assert.False(t, r.removeIf("foo", owner))
}

func TestRegistryConcurrentAddAdmitsOneBot(t *testing.T) {
	r := NewRegistry()
	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Add("foo", &Bot{channel: "foo"}) == nil {
				admitted.Add(1)
			}
			r.Get("foo")
			r.Channels()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistrySendMessageNeedsRunningBot(t *testing.T) {
	r := NewRegistry()
	err := r.SendMessage(context.Background(), "foo", "hello")
	assert.ErrorIs(t, err, ErrNoRunningBot)
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("zeta", &Bot{channel: "zeta"}))
	bot := &Bot{channel: "alpha"}
	require.NoError(t, r.Add("alpha", bot))
	require.True(t, r.markRunning("alpha", bot))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "alpha", snap[0].Channel)
	assert.Equal(t, "running", snap[0].Phase)
	assert.Equal(t, "zeta", snap[1].Channel)
	assert.Equal(t, "starting", snap[1].Phase)
}
