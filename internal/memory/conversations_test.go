package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/pdfinsight/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestConversations() (*Conversations, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewConversations(nil)
	c.now = clock.Now
	return c, clock
}

func TestConversations_AppendExchangeAndRead(t *testing.T) {
	c, _ := newTestConversations()
	ctx := context.Background()
	h := c.GetOrCreate(models.NewSessionKey("doc", "s1"))

	require.NoError(t, c.AppendExchange(ctx, h, "What is the refund window?", "Thirty days."))
	turns, err := c.Read(ctx, h)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "What is the refund window?", turns[0].Content)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Thirty days.", turns[1].Content)
}

func TestConversations_SessionIsolation(t *testing.T) {
	c, _ := newTestConversations()
	ctx := context.Background()
	a := c.GetOrCreate(models.NewSessionKey("doc", "a"))
	b := c.GetOrCreate(models.NewSessionKey("doc", "b"))
	other := c.GetOrCreate(models.NewSessionKey("other", "a"))

	require.NoError(t, c.Append(ctx, a, models.RoleUser, "only in a"))

	for _, h := range []*History{b, other} {
		turns, err := c.Read(ctx, h)
		require.NoError(t, err)
		assert.Empty(t, turns, "key %+v should be empty", h.Key())
	}
}

func TestConversations_GetOrCreateReturnsSameHandle(t *testing.T) {
	c, _ := newTestConversations()
	key := models.NewSessionKey("doc", "")
	assert.Same(t, c.GetOrCreate(key), c.GetOrCreate(key))
	assert.Equal(t, models.DefaultSessionID, c.GetOrCreate(key).Key().SessionID)
}

func TestConversations_LockSerializesSameKey(t *testing.T) {
	c, _ := newTestConversations()
	key := models.NewSessionKey("doc", "s")

	unlock := c.Lock(key)
	acquired := make(chan struct{})
	go func() {
		release := c.Lock(key)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock on the same key should block")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second Lock never acquired")
	}
}

func TestConversations_LockDistinctKeysIndependent(t *testing.T) {
	c, _ := newTestConversations()
	unlockA := c.Lock(models.NewSessionKey("doc", "a"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		release := c.Lock(models.NewSessionKey("doc", "b"))
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key should not block")
	}
}

func TestConversations_ConcurrentExchangesStayPaired(t *testing.T) {
	c, _ := newTestConversations()
	ctx := context.Background()
	key := models.NewSessionKey("doc", "s")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := c.Lock(key)
			defer unlock()
			h := c.GetOrCreate(key)
			assert.NoError(t, c.AppendExchange(ctx, h, "q", "a"))
		}()
	}
	wg.Wait()

	turns, err := c.Read(ctx, c.GetOrCreate(key))
	require.NoError(t, err)
	require.Len(t, turns, 40)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, models.RoleUser, turns[i].Role)
		assert.Equal(t, models.RoleAssistant, turns[i+1].Role)
	}
}

func TestConversations_Evict(t *testing.T) {
	c, _ := newTestConversations()
	ctx := context.Background()
	key := models.NewSessionKey("doc", "s")
	require.NoError(t, c.Append(ctx, c.GetOrCreate(key), models.RoleUser, "q"))

	require.NoError(t, c.Evict(ctx, key))
	assert.Equal(t, 0, c.Len())
	turns, err := c.Read(ctx, c.GetOrCreate(key))
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConversations_EvictIdle(t *testing.T) {
	c, clock := newTestConversations()
	ctx := context.Background()
	stale := models.NewSessionKey("doc", "stale")
	fresh := models.NewSessionKey("doc", "fresh")
	busy := models.NewSessionKey("doc", "busy")

	require.NoError(t, c.Append(ctx, c.GetOrCreate(stale), models.RoleUser, "old"))
	unlock := c.Lock(busy)
	defer unlock()
	clock.Advance(2 * time.Hour)
	require.NoError(t, c.Append(ctx, c.GetOrCreate(fresh), models.RoleUser, "new"))

	n, err := c.EvictIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	turns, _ := c.Read(ctx, c.GetOrCreate(stale))
	assert.Empty(t, turns)
	turns, _ = c.Read(ctx, c.GetOrCreate(fresh))
	assert.Len(t, turns, 1)
}

func TestConversations_Clear(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	// A history persisted before this registry existed.
	require.NoError(t, store.Append(ctx, models.NewSessionKey("old", "s"), models.Turn{Role: models.RoleUser, Content: "x"}))

	c := NewConversations(store)
	require.NoError(t, c.Append(ctx, c.GetOrCreate(models.NewSessionKey("doc", "s")), models.RoleUser, "y"))

	require.NoError(t, c.Clear(ctx))
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, 0, c.Len())
}

func TestConversations_RunJanitor(t *testing.T) {
	c, clock := newTestConversations()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	key := models.NewSessionKey("doc", "s")
	require.NoError(t, c.Append(ctx, c.GetOrCreate(key), models.RoleUser, "q"))
	clock.Advance(time.Hour)

	done := make(chan struct{})
	go func() {
		c.RunJanitor(ctx, 5*time.Millisecond, time.Minute)
		close(done)
	}()
	require.Eventually(t, func() bool { return c.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

// blockingStore parks every Delete until release is closed.
type blockingStore struct {
	*InMemoryStore
	deleting chan models.SessionKey
	release  chan struct{}
}

func (s *blockingStore) Delete(ctx context.Context, key models.SessionKey) error {
	s.deleting <- key
	<-s.release
	return s.InMemoryStore.Delete(ctx, key)
}

func TestConversations_EvictIdleDoesNotBlockOtherKeys(t *testing.T) {
	store := &blockingStore{
		InMemoryStore: NewInMemoryStore(),
		deleting:      make(chan models.SessionKey, 1),
		release:       make(chan struct{}),
	}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewConversations(store)
	c.now = clock.Now
	ctx := context.Background()

	stale := models.NewSessionKey("doc", "stale")
	require.NoError(t, c.Append(ctx, c.GetOrCreate(stale), models.RoleUser, "old"))
	clock.Advance(2 * time.Hour)

	evicted := make(chan int, 1)
	go func() {
		n, err := c.EvictIdle(ctx, time.Hour)
		assert.NoError(t, err)
		evicted <- n
	}()
	require.Equal(t, stale, <-store.deleting)

	locked := make(chan struct{})
	go func() {
		unlock := c.Lock(models.NewSessionKey("doc", "other"))
		unlock()
		close(locked)
	}()
	select {
	case <-locked:
	case <-time.After(2 * time.Second):
		t.Fatal("Lock on an unrelated key waited for the store delete")
	}

	staleRead := make(chan []models.Turn, 1)
	go func() {
		unlock := c.Lock(stale)
		defer unlock()
		turns, _ := c.Read(ctx, c.GetOrCreate(stale))
		staleRead <- turns
	}()
	select {
	case <-staleRead:
		t.Fatal("request on the evicted key ran before its history was deleted")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	assert.Equal(t, 1, <-evicted)
	assert.Empty(t, <-staleRead)
}
