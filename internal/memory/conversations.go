package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/pdfinsight/internal/models"
)

// History is the handle for one session's conversation. Its mutex
// serializes requests on the same key; refs and lastUsed are guarded by the
// owning Conversations.
type History struct {
	key      models.SessionKey
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

// Key returns the session key the handle belongs to.
func (h *History) Key() models.SessionKey {
	return h.key
}

// Conversations owns every session handle and routes reads and writes to a Store.
type Conversations struct {
	store    Store
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
	sessions map[models.SessionKey]*History
}

// Option configures Conversations.
type Option func(*Conversations)

// WithLogger sets the logger used by eviction and the janitor.
func WithLogger(l *zap.Logger) Option {
	return func(c *Conversations) { c.logger = l }
}

// NewConversations creates a registry backed by store (an InMemoryStore if nil).
func NewConversations(store Store, opts ...Option) *Conversations {
	if store == nil {
		store = NewInMemoryStore()
	}
	c := &Conversations{
		store:    store,
		logger:   zap.NewNop(),
		now:      time.Now,
		sessions: make(map[models.SessionKey]*History),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns the handle for key, creating an empty history on first use.
func (c *Conversations) GetOrCreate(key models.SessionKey) *History {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Conversations) getLocked(key models.SessionKey) *History {
	h, ok := c.sessions[key]
	if !ok {
		h = &History{key: key}
		c.sessions[key] = h
	}
	h.lastUsed = c.now()
	return h
}

// Lock blocks until the caller holds key exclusively and returns the release
// function. Requests on distinct keys never wait on each other, and a held
// session cannot be evicted.
func (c *Conversations) Lock(key models.SessionKey) (unlock func()) {
	c.mu.Lock()
	h := c.getLocked(key)
	h.refs++
	c.mu.Unlock()

	h.mu.Lock()
	return func() {
		h.mu.Unlock()
		c.mu.Lock()
		h.refs--
		h.lastUsed = c.now()
		c.mu.Unlock()
	}
}

// Read returns the turns recorded for h, oldest first.
func (c *Conversations) Read(ctx context.Context, h *History) ([]models.Turn, error) {
	turns, err := c.store.Load(ctx, h.key)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return turns, nil
}

// Append records one turn for h.
func (c *Conversations) Append(ctx context.Context, h *History, role models.Role, content string) error {
	if err := c.store.Append(ctx, h.key, models.Turn{Role: role, Content: content, CreatedAt: c.now().UTC()}); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// AppendExchange records a question and its answer as one atomic write.
func (c *Conversations) AppendExchange(ctx context.Context, h *History, question, answer string) error {
	now := c.now().UTC()
	err := c.store.Append(ctx, h.key,
		models.Turn{Role: models.RoleUser, Content: question, CreatedAt: now},
		models.Turn{Role: models.RoleAssistant, Content: answer, CreatedAt: now},
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Evict forgets key's history, waiting for any in-flight request on it to finish.
func (c *Conversations) Evict(ctx context.Context, key models.SessionKey) error {
	unlock := c.Lock(key)
	defer unlock()

	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	c.mu.Lock()
	if h := c.sessions[key]; h != nil && h.refs == 1 {
		delete(c.sessions, key)
	}
	c.mu.Unlock()
	c.logger.Debug("session evicted", zap.String("doc_id", key.DocID), zap.String("session_id", key.SessionID))
	return nil
}

// reserveLocked claims an unused handle for eviction. c.mu must be held and
// h.refs must be zero, so nobody holds or waits on h.mu.
func (c *Conversations) reserveLocked(h *History) {
	h.refs++
	h.mu.Lock()
}

// deleteReserved removes a reserved handle's history from the store without
// holding c.mu. Requests that arrive meanwhile queue on the handle and then
// start from an empty history.
func (c *Conversations) deleteReserved(ctx context.Context, h *History) error {
	err := c.store.Delete(ctx, h.key)
	c.mu.Lock()
	h.refs--
	if err == nil && h.refs == 0 && c.sessions[h.key] == h {
		delete(c.sessions, h.key)
	}
	c.mu.Unlock()
	h.mu.Unlock()
	return err
}

// release drops reservations that were never used.
func (c *Conversations) release(hs []*History) {
	c.mu.Lock()
	for _, h := range hs {
		h.refs--
	}
	c.mu.Unlock()
	for _, h := range hs {
		h.mu.Unlock()
	}
}

// EvictIdle forgets every session that is not in use and has been idle
// longer than maxAge. It returns how many sessions were evicted.
func (c *Conversations) EvictIdle(ctx context.Context, maxAge time.Duration) (int, error) {
	c.mu.Lock()
	cutoff := c.now().Add(-maxAge)
	var idle []*History
	for _, h := range c.sessions {
		if h.refs > 0 || h.lastUsed.After(cutoff) {
			continue
		}
		c.reserveLocked(h)
		idle = append(idle, h)
	}
	c.mu.Unlock()

	for i, h := range idle {
		if err := c.deleteReserved(ctx, h); err != nil {
			c.release(idle[i+1:])
			return i, fmt.Errorf("delete history: %w", err)
		}
	}
	return len(idle), nil
}

// Clear forgets every idle session and every history in the store,
// including histories persisted by earlier processes.
func (c *Conversations) Clear(ctx context.Context) error {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list histories: %w", err)
	}
	for _, key := range keys {
		c.mu.Lock()
		h, ok := c.sessions[key]
		if ok && h.refs > 0 {
			c.mu.Unlock()
			continue
		}
		if !ok {
			h = &History{key: key, lastUsed: c.now()}
			c.sessions[key] = h
		}
		c.reserveLocked(h)
		c.mu.Unlock()
		if err := c.deleteReserved(ctx, h); err != nil {
			return fmt.Errorf("delete history: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, h := range c.sessions {
		if h.refs == 0 {
			delete(c.sessions, key)
		}
	}
	return nil
}

// Len returns the number of live session handles.
func (c *Conversations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (c *Conversations) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.EvictIdle(ctx, maxAge)
			if err != nil {
				c.logger.Warn("idle session eviction failed", zap.Error(err))
				continue
			}
			if n > 0 {
				c.logger.Info("idle sessions evicted", zap.Int("count", n))
			}
		}
	}
}

// Close closes the underlying store.
func (c *Conversations) Close() error {
	return c.store.Close()
}
