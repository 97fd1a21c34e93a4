package rag

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/pdfinsight/internal/embedding"
	"github.com/hyperjump/pdfinsight/internal/generation"
	"github.com/hyperjump/pdfinsight/internal/memory"
	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/internal/prompt"
	"github.com/hyperjump/pdfinsight/internal/vector"
)

type stubGenerator struct {
	mu       sync.Mutex
	requests []generation.Request
	answer   string
	err      error
}

func (g *stubGenerator) Generate(ctx context.Context, req generation.Request) (generation.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return generation.Result{Kind: generation.Unavailable}, g.err
	}
	return generation.Result{Text: g.answer, Kind: generation.Primary, Model: "stub"}, nil
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveAsk(outcome, _ string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

type fixture struct {
	store    *vector.Store
	conv     *memory.Conversations
	gen      *stubGenerator
	pipeline *Pipeline
	root     string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()
	store := vector.NewStore(root, embedding.NewHashEmbedder(128))
	_, err := store.Build(context.Background(), "policy", []models.Chunk{
		{Text: "Refunds are accepted within thirty days of delivery.", Metadata: models.ChunkMetadata{Source: "policy.pdf", Page: models.PageNumber(1)}},
		{Text: "Shipping uses regional couriers\nand takes five days.", Metadata: models.ChunkMetadata{Source: "policy.pdf", Page: models.PageNumber(2)}},
		{Text: "Warranty claims need the original receipt.", Metadata: models.ChunkMetadata{Source: "policy.pdf", Page: models.PageNumber(3)}},
	})
	require.NoError(t, err)

	conv := memory.NewConversations(nil)
	gen := &stubGenerator{answer: "Refunds take thirty days.\nRefunds take thirty days.\n- within 30 days\n- keep the receipt"}
	return &fixture{
		store:    store,
		conv:     conv,
		gen:      gen,
		pipeline: NewPipeline(store, conv, gen, opts...),
		root:     root,
	}
}

func (f *fixture) history(t *testing.T, docID, session string) []models.Turn {
	t.Helper()
	turns, err := f.conv.Read(context.Background(), f.conv.GetOrCreate(models.NewSessionKey(docID, session)))
	require.NoError(t, err)
	return turns
}

func TestAsk_answersAndRecordsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.pipeline.Ask(ctx, models.AskRequest{DocID: "policy", Question: "  What is the refund window?  ", TopK: 2, Language: models.LanguageEnglish})
	require.NoError(t, err)

	assert.Equal(t, "Refunds take thirty days.\n- within 30 days\n- keep the receipt", resp.Answer)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "policy.pdf", resp.Sources[0].Source)
	assert.Equal(t, 1, *resp.Sources[0].Page)
	for _, s := range resp.Sources {
		assert.NotContains(t, s.Snippet, "\n")
	}

	require.Equal(t, 1, f.gen.calls())
	req := f.gen.requests[0]
	assert.Contains(t, req.System, "Reply only in English.")
	assert.Contains(t, req.User, "<<chunk=0 source=policy.pdf page=1>>")
	assert.Contains(t, req.User, "Question:\nWhat is the refund window?\n")
	assert.Empty(t, req.History)

	turns := f.history(t, "policy", models.DefaultSessionID)
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, "What is the refund window?", turns[0].Content)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
	assert.Equal(t, f.gen.answer, turns[1].Content, "history keeps the raw answer")

	_, err = f.pipeline.Ask(ctx, models.AskRequest{DocID: "policy", Question: "And shipping?", TopK: 1, Language: models.LanguageEnglish})
	require.NoError(t, err)
	require.Len(t, f.gen.requests[1].History, 2)
	assert.Equal(t, "What is the refund window?", f.gen.requests[1].History[0].Content)
	assert.Len(t, f.history(t, "policy", models.DefaultSessionID), 4)
}

func TestAsk_validation(t *testing.T) {
	tests := []struct {
		name string
		req  models.AskRequest
	}{
		{"empty question", models.AskRequest{DocID: "policy", Question: "   ", TopK: 5}},
		{"top_k zero", models.AskRequest{DocID: "policy", Question: "q", TopK: 0}},
		{"top_k thirteen", models.AskRequest{DocID: "policy", Question: "q", TopK: 13}},
		{"unsupported language", models.AskRequest{DocID: "policy", Question: "q", TopK: 5, Language: "fr"}},
		{"missing doc id", models.AskRequest{Question: "q", TopK: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.pipeline.Ask(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Zero(t, f.gen.calls())
			assert.Empty(t, f.history(t, "policy", models.DefaultSessionID))
		})
	}
}

func TestAsk_topKBounds(t *testing.T) {
	f := newFixture(t)
	for _, k := range []int{1, 12} {
		resp, err := f.pipeline.Ask(context.Background(), models.AskRequest{DocID: "policy", Question: "refund", TopK: k})
		require.NoError(t, err, "k=%d", k)
		assert.Len(t, resp.Sources, min(k, 3))
	}
}

func TestAsk_withMaxTopK(t *testing.T) {
	f := newFixture(t, WithMaxTopK(3))
	_, err := f.pipeline.Ask(context.Background(), models.AskRequest{DocID: "policy", Question: "refund", TopK: 4})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAsk_languageNormalisation(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Ask(context.Background(), models.AskRequest{DocID: "policy", Question: "refund", TopK: 1, Language: " EN "})
	require.NoError(t, err)
	_, err = f.pipeline.Ask(context.Background(), models.AskRequest{DocID: "policy", Question: "refund", TopK: 1})
	require.NoError(t, err)

	assert.Contains(t, f.gen.requests[0].System, "Reply only in English.")
	assert.Contains(t, f.gen.requests[1].System, "Bengali using Bengali script")
}

func TestAsk_unknownDocument(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"missing", "../policy"} {
		_, err := f.pipeline.Ask(context.Background(), models.AskRequest{DocID: id, Question: "q", TopK: 5})
		assert.ErrorIs(t, err, ErrUnknownDocument, id)
		assert.Contains(t, err.Error(), id)
	}
	assert.Zero(t, f.gen.calls())
	assert.Empty(t, f.history(t, "missing", models.DefaultSessionID))
}

func TestAsk_embeddingModelMismatch(t *testing.T) {
	f := newFixture(t)
	other := vector.NewStore(f.root, embedding.NewHashEmbedder(64))
	p := NewPipeline(other, f.conv, f.gen)

	_, err := p.Ask(context.Background(), models.AskRequest{DocID: "policy", Question: "q", TopK: 5})
	assert.ErrorIs(t, err, vector.ErrEmbeddingModelMismatch)
	assert.Zero(t, f.gen.calls())
}

func TestAsk_generationFailureLeavesHistoryUntouched(t *testing.T) {
	obs := &recordingObserver{}
	f := newFixture(t, WithObserver(obs))
	f.gen.err = errors.Join(generation.ErrUnavailable, errors.New("both models down"))

	_, err := f.pipeline.Ask(context.Background(), models.AskRequest{DocID: "policy", Question: "q", TopK: 5})
	assert.ErrorIs(t, err, generation.ErrUnavailable)
	assert.Empty(t, f.history(t, "policy", models.DefaultSessionID))
	assert.Equal(t, []string{"generation_unavailable"}, obs.outcomes)
}

func TestAsk_emptyIndexStillGenerates(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Build(context.Background(), "blank", nil)
	require.NoError(t, err)

	resp, err := f.pipeline.Ask(context.Background(), models.AskRequest{DocID: "blank", Question: "anything?", TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	require.Equal(t, 1, f.gen.calls())
	assert.Contains(t, f.gen.requests[0].User, "Context:\n\n\nQuestion:")
}

func TestAsk_sessionsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ask(ctx, models.AskRequest{DocID: "policy", SessionID: "alice", Question: "refund?", TopK: 1})
	require.NoError(t, err)
	_, err = f.pipeline.Ask(ctx, models.AskRequest{DocID: "policy", SessionID: "bob", Question: "shipping?", TopK: 1})
	require.NoError(t, err)

	assert.Empty(t, f.gen.requests[1].History)
	assert.Len(t, f.history(t, "policy", "alice"), 2)
	assert.Len(t, f.history(t, "policy", "bob"), 2)
	assert.Empty(t, f.history(t, "policy", models.DefaultSessionID))
}

func TestAsk_sameSessionIsSerialized(t *testing.T) {
	f := newFixture(t)
	const n = 8

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.pipeline.Ask(context.Background(), models.AskRequest{DocID: "policy", Question: "refund?", TopK: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := make([]int, 0, n)
	for _, req := range f.gen.requests {
		seen = append(seen, len(req.History))
	}
	sort.Ints(seen)
	for i, l := range seen {
		assert.Equal(t, 2*i, l, "each request must observe every earlier exchange")
	}
	assert.Len(t, f.history(t, "policy", models.DefaultSessionID), 2*n)
}

func TestAsk_promptVersion(t *testing.T) {
	f := newFixture(t, WithPromptVersion(prompt.V1), WithTemperature(0.3))
	_, err := f.pipeline.Ask(context.Background(), models.AskRequest{DocID: "policy", Question: "refund?", TopK: 1})
	require.NoError(t, err)
	assert.NotContains(t, f.gen.requests[0].System, "bullet")
	assert.Equal(t, 0.3, f.gen.requests[0].Temperature)
}

func TestAsk_observerOutcomes(t *testing.T) {
	obs := &recordingObserver{}
	f := newFixture(t, WithObserver(obs))
	ctx := context.Background()
	_, _ = f.pipeline.Ask(ctx, models.AskRequest{DocID: "policy", Question: "refund?", TopK: 1})
	_, _ = f.pipeline.Ask(ctx, models.AskRequest{DocID: "policy", Question: "", TopK: 1})
	_, _ = f.pipeline.Ask(ctx, models.AskRequest{DocID: "nope", Question: "q", TopK: 1})
	assert.Equal(t, []string{"ok", "invalid_argument", "unknown_document"}, obs.outcomes)
}
