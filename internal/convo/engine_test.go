package convo

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dava-bot/internal/metrics"
)

type memConversations struct {
	mu       sync.Mutex
	states   map[string]*State
	failNext int
}

func newMemConversations() *memConversations {
	return &memConversations{states: map[string]*State{}}
}

func (m *memConversations) GetState(_ context.Context, conversationID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.states[conversationID]
	if !ok {
		return nil, nil
	}
	return copyState(stored), nil
}

func (m *memConversations) SaveState(_ context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return ErrStateConflict
	}
	stored, exists := m.states[state.ConversationID]
	if state.Version == 0 {
		if exists {
			return ErrStateConflict
		}
	} else if !exists || stored.Version != state.Version {
		return ErrStateConflict
	}
	state.Version++
	m.states[state.ConversationID] = copyState(state)
	return nil
}

func copyState(s *State) *State {
	cp := *s
	if s.Context.Product != nil {
		p := *s.Context.Product
		cp.Context.Product = &p
	}
	cp.Trace = make(map[string]EntityTrace, len(s.Trace))
	for k, v := range s.Trace {
		cp.Trace[k] = v
	}
	return &cp
}

type memInventory struct{ products []Product }

func (m *memInventory) ListProducts(context.Context, string) ([]Product, error) {
	return m.products, nil
}

type fakeFallback struct {
	result *FallbackResult
	err    error
}

func (f *fakeFallback) Classify(context.Context, string, *State) (*FallbackResult, error) {
	return f.result, f.err
}

type engineFixture struct {
	engine        *Engine
	conversations *memConversations
	drafts        *memDrafts
}

func newEngineFixture(t *testing.T, products []Product, fallback FallbackClassifier) *engineFixture {
	t.Helper()
	conversations := newMemConversations()
	drafts := newMemDrafts()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New("test", prometheus.NewRegistry())

	engine := New(conversations, drafts, &memInventory{products: products}, fallback, nil, nil, m, logger, Config{
		BusinessID:      "biz-1",
		SellerName:      "City Pharmacy",
		WalkInLabel:     "Walk-in Customer",
		MinConfidence:   0.7,
		EntityThreshold: 0.7,
	})
	return &engineFixture{engine: engine, conversations: conversations, drafts: drafts}
}

func (f *engineFixture) send(t *testing.T, text string) Response {
	t.Helper()
	resp, err := f.engine.HandleMessage(context.Background(), "conv-1", text)
	require.NoError(t, err, "message %q", text)
	return resp
}

func (f *engineFixture) state(t *testing.T) *State {
	t.Helper()
	state, err := f.conversations.GetState(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	return state
}

func TestEngineHappyPath(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	resp := f.send(t, "Dolo 650 hai kya?")
	assert.Equal(t, ResponseReply, resp.Kind)
	assert.Contains(t, resp.Text, "Dolo 650")
	assert.Contains(t, resp.Text, "120 units")
	assert.Equal(t, ModeStockConfirmed, f.state(t).Mode)

	resp = f.send(t, "10")
	assert.Equal(t, ResponseClarify, resp.Kind)
	assert.Equal(t, ModeAwaitingCustomer, f.state(t).Mode)

	resp = f.send(t, "Ramesh ko")
	assert.Contains(t, resp.Text, "Ramesh")
	assert.Contains(t, resp.Text, "Rs300.00")
	assert.Equal(t, ModeConfirming, f.state(t).Mode)

	resp = f.send(t, "confirm")
	assert.Equal(t, ResponseDraftCreated, resp.Kind)
	assert.NotEmpty(t, resp.DraftID)
	assert.Equal(t, ModeIdle, f.state(t).Mode)

	draft, err := f.drafts.GetOpenDraft(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "Ramesh", draft.Buyer)
	assert.Equal(t, "City Pharmacy", draft.Seller)
	assert.Equal(t, 300.0, draft.Amount)
	assert.Equal(t, StatusDraft, draft.Status)
}

func TestEngineDirectOrderWalkIn(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	resp := f.send(t, "10 Dolo")
	assert.Equal(t, ResponseClarify, resp.Kind)
	assert.Equal(t, ModeAwaitingCustomer, f.state(t).Mode)

	resp = f.send(t, "confirm")
	assert.Contains(t, resp.Text, "Walk-in Customer")
	assert.Equal(t, ModeConfirming, f.state(t).Mode)

	resp = f.send(t, "confirm")
	assert.Equal(t, ResponseDraftCreated, resp.Kind)

	draft, err := f.drafts.GetOpenDraft(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "Walk-in Customer", draft.Buyer)
	assert.Equal(t, 300.0, draft.Amount)
}

func TestEngineQueryInterruptsAndClearsLocks(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	f.send(t, "Dolo 650 hai kya?")
	f.send(t, "10")
	require.Equal(t, ModeAwaitingCustomer, f.state(t).Mode)

	// A stock query mid-order drops the old product entirely.
	resp := f.send(t, "Combiflam hai kya?")
	assert.Contains(t, resp.Text, "Combiflam")

	state := f.state(t)
	require.NotNil(t, state.Context.Product)
	assert.Equal(t, "Combiflam", state.Context.Product.Name)
	assert.Zero(t, state.Context.Quantity, "old quantity must not leak into the new flow")

	f.send(t, "5")
	f.send(t, "confirm")
	resp = f.send(t, "confirm")
	require.Equal(t, ResponseDraftCreated, resp.Kind)

	draft, err := f.drafts.GetOpenDraft(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "Combiflam", draft.ProductName)
	assert.Equal(t, 175.0, draft.Amount)
}

func TestEngineCancelResetsEverything(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	f.send(t, "Dolo 650 hai kya?")
	f.send(t, "10")

	resp := f.send(t, "cancel")
	assert.Equal(t, ResponseReply, resp.Kind)

	state := f.state(t)
	assert.Equal(t, ModeIdle, state.Mode)
	assert.Nil(t, state.Context.Product)
	assert.Zero(t, state.Context.Quantity)
}

func TestEngineOutOfStock(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	resp := f.send(t, "Benadryl hai kya?")
	assert.Contains(t, resp.Text, "out of stock")

	state := f.state(t)
	assert.Equal(t, ModeBrowsing, state.Mode)
	assert.Nil(t, state.Context.Product, "out-of-stock products are never locked")
}

func TestEngineAmbiguousMentionAsksToDisambiguate(t *testing.T) {
	products := append(testInventory(),
		Product{ID: 6, Name: "Amoxicillin 250", UnitPrice: 60, Stock: 40, Disease: "infection"},
		Product{ID: 7, Name: "Amoxicillin 500", UnitPrice: 90, Stock: 30, Disease: "infection"},
	)
	f := newEngineFixture(t, products, nil)

	resp := f.send(t, "Amoxicillin hai kya?")
	assert.Equal(t, ResponseClarify, resp.Kind)
	assert.Contains(t, resp.Text, "Amoxicillin 250")
	assert.Contains(t, resp.Text, "Amoxicillin 500")
	assert.Nil(t, f.state(t).Context.Product)
}

func TestEngineQuantityExceedingStockReAsks(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	f.send(t, "Combiflam hai kya?")
	resp := f.send(t, "100")
	assert.Equal(t, ResponseClarify, resp.Kind)
	assert.Contains(t, resp.Text, "60 units")
	assert.Equal(t, ModeStockConfirmed, f.state(t).Mode)

	f.send(t, "50")
	assert.Equal(t, ModeAwaitingCustomer, f.state(t).Mode)
}

func TestEngineChatterWhileQuantityAwaitedReAsks(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	f.send(t, "Dolo 650 hai kya?")

	// Unparseable chatter keeps the step: re-ask the quantity for the
	// locked product instead of the generic help text.
	resp := f.send(t, "jaldi bhejna")
	assert.Equal(t, ResponseClarify, resp.Kind)
	assert.Contains(t, resp.Text, "Dolo 650")
	assert.Equal(t, ModeStockConfirmed, f.state(t).Mode)
}

func TestEngineSymptomSearch(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	resp := f.send(t, "bukhar ki dawai batao")
	assert.Contains(t, resp.Text, "Dolo 650")
	assert.Contains(t, resp.Text, "Crocin Advance")
}

func TestEngineDoubleConfirmIsSafe(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	f.send(t, "10 Dolo")
	f.send(t, "confirm")
	resp := f.send(t, "confirm")
	require.Equal(t, ResponseDraftCreated, resp.Kind)
	firstID := resp.DraftID

	// The state is back in Idle; "confirm" cannot mint another draft.
	resp = f.send(t, "confirm")
	assert.NotEqual(t, ResponseDraftCreated, resp.Kind)
	assert.Len(t, f.drafts.byID, 1)

	draft, err := f.drafts.GetOpenDraft(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, firstID, draft.ID)
}

func TestEngineRetriesOnceOnStateConflict(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)
	f.conversations.failNext = 1

	resp := f.send(t, "Dolo 650 hai kya?")
	assert.Contains(t, resp.Text, "Dolo 650")
	assert.Equal(t, ModeStockConfirmed, f.state(t).Mode)
}

func TestEngineSurfacesRepeatedConflicts(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)
	f.conversations.failNext = 2

	_, err := f.engine.HandleMessage(context.Background(), "conv-1", "Dolo 650 hai kya?")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestEngineFallbackQuantityIsAdvisoryOnly(t *testing.T) {
	fallback := &fakeFallback{result: &FallbackResult{
		Intent:     "start_order",
		Confidence: 0.9,
		Entities:   map[string]string{"product": "dolo", "quantity": "10"},
	}}
	f := newEngineFixture(t, testInventory(), fallback)

	resp := f.send(t, "asdf qwer zxcv poiu")
	assert.Equal(t, ResponseClarify, resp.Kind, "fallback quantity must trigger a re-ask, not a lock")

	state := f.state(t)
	assert.Equal(t, ModeOrdering, state.Mode)
	require.NotNil(t, state.Context.Product)
	assert.Equal(t, "Dolo 650", state.Context.Product.Name)
	assert.Zero(t, state.Context.Quantity)
}

func TestEngineFallbackFailureAsksToClarify(t *testing.T) {
	f := newEngineFixture(t, testInventory(), &fakeFallback{err: errors.New("timeout")})

	resp := f.send(t, "asdf qwer zxcv poiu")
	assert.Equal(t, ResponseClarify, resp.Kind)
	assert.Equal(t, ModeIdle, f.state(t).Mode)
}

func TestEngineDistinctConversationsAreIndependent(t *testing.T) {
	f := newEngineFixture(t, testInventory(), nil)

	_, err := f.engine.HandleMessage(context.Background(), "conv-a", "Dolo 650 hai kya?")
	require.NoError(t, err)
	_, err = f.engine.HandleMessage(context.Background(), "conv-b", "Combiflam hai kya?")
	require.NoError(t, err)

	a, err := f.conversations.GetState(context.Background(), "conv-a")
	require.NoError(t, err)
	b, err := f.conversations.GetState(context.Background(), "conv-b")
	require.NoError(t, err)
	assert.Equal(t, "Dolo 650", a.Context.Product.Name)
	assert.Equal(t, "Combiflam", b.Context.Product.Name)
}
