package convo

import (
	"context"
	"time"
)

// Mode is the conversation FSM mode.
type Mode string

const (
	ModeIdle             Mode = "idle"
	ModeBrowsing         Mode = "browsing"
	ModeStockConfirmed   Mode = "stock_confirmed"
	ModeOrdering         Mode = "ordering"
	ModeAwaitingCustomer Mode = "awaiting_customer"
	ModeConfirming       Mode = "confirming"
)

// Locked reports whether the mode holds locked transaction context.
func (m Mode) Locked() bool {
	switch m {
	case ModeStockConfirmed, ModeOrdering, ModeAwaitingCustomer, ModeConfirming:
		return true
	default:
		return false
	}
}

// Source tags where an extracted entity value came from.
type Source string

const (
	SourceNumeric    Source = "numeric"
	SourceWord       Source = "word"
	SourceContext    Source = "context"
	SourcePattern    Source = "pattern"
	SourceName       Source = "name"
	SourceSelf       Source = "self"
	SourceExtraction Source = "extraction"
	SourceKeyword    Source = "keyword"
	SourceFallback   Source = "fallback"
)

// StringEntity is a text entity with a confidence score.
type StringEntity struct {
	Value      string
	Confidence float64
	Source     Source
}

// Empty reports whether nothing was extracted.
func (e StringEntity) Empty() bool { return e.Value == "" }

// NumberEntity is a numeric entity with a confidence score.
type NumberEntity struct {
	Value      float64
	Confidence float64
	Source     Source
}

// Empty reports whether nothing was extracted.
func (e NumberEntity) Empty() bool { return e.Confidence == 0 }

// Product is the canonical inventory record a mention resolves to.
// Raw user text is discarded once resolution succeeds or fails.
type Product struct {
	ID                   int64   `json:"id"`
	Name                 string  `json:"name"`
	UnitPrice            float64 `json:"unit_price"`
	Stock                float64 `json:"stock"`
	RequiresPrescription bool    `json:"requires_prescription"`
	Disease              string  `json:"disease"`
}

// EntityTrace records the last confidence and source per locked entity.
type EntityTrace struct {
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// LockedContext is the subset of resolved entities treated as fixed
// until explicitly reset.
type LockedContext struct {
	Product  *Product `json:"product,omitempty"`
	Quantity float64  `json:"quantity,omitempty"`
	Customer string   `json:"customer,omitempty"`
}

// State is the durable per-conversation FSM state. Version backs the
// optimistic read-modify-write cycle in the store.
type State struct {
	ConversationID string                 `json:"conversation_id"`
	Mode           Mode                   `json:"mode"`
	Context        LockedContext          `json:"context"`
	Trace          map[string]EntityTrace `json:"trace,omitempty"`
	Version        int64                  `json:"version"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// NewState returns a fresh Idle state for a conversation identity.
func NewState(conversationID string) *State {
	return &State{
		ConversationID: conversationID,
		Mode:           ModeIdle,
		Trace:          map[string]EntityTrace{},
	}
}

func (s *State) trace(name string, confidence float64, source Source) {
	if s.Trace == nil {
		s.Trace = map[string]EntityTrace{}
	}
	s.Trace[name] = EntityTrace{Confidence: confidence, Source: source}
}

// DraftStatus is the lifecycle status of a draft action.
type DraftStatus string

const (
	StatusDraft    DraftStatus = "draft"
	StatusApproved DraftStatus = "approved"
	StatusRejected DraftStatus = "rejected"
	StatusExecuted DraftStatus = "executed"
)

// Terminal reports whether the status is immutable.
func (s DraftStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted
}

// Draft is a proposed business action awaiting owner approval. Amount is
// frozen at creation time and never recomputed.
type Draft struct {
	ID                   string      `json:"id"`
	ConversationID       string      `json:"conversation_id"`
	BusinessID           string      `json:"business_id"`
	Intent               string      `json:"intent"`
	Seller               string      `json:"seller"`
	Buyer                string      `json:"buyer"`
	ProductID            int64       `json:"product_id"`
	ProductName          string      `json:"product"`
	Quantity             float64     `json:"quantity"`
	UnitPrice            float64     `json:"unit_price"`
	Amount               float64     `json:"amount"`
	RequiresPrescription bool        `json:"requires_prescription"`
	Status               DraftStatus `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// ResponseKind discriminates engine responses.
type ResponseKind string

const (
	ResponseReply        ResponseKind = "reply"
	ResponseClarify      ResponseKind = "clarifying_question"
	ResponseDraftCreated ResponseKind = "draft_created"
)

// Response is the outcome of processing one inbound message.
type Response struct {
	Kind    ResponseKind `json:"kind"`
	Text    string       `json:"text"`
	DraftID string       `json:"draft_id,omitempty"`
	Summary string       `json:"summary,omitempty"`
}

func reply(text string) Response   { return Response{Kind: ResponseReply, Text: text} }
func clarify(text string) Response { return Response{Kind: ResponseClarify, Text: text} }

// InventoryProvider supplies the canonical product snapshot for a business.
type InventoryProvider interface {
	ListProducts(ctx context.Context, businessID string) ([]Product, error)
}

// ConversationStore persists conversation state keyed by identity.
// SaveState must reject writes whose Version does not match the stored
// row so rapid same-identity messages cannot lose updates.
type ConversationStore interface {
	GetState(ctx context.Context, conversationID string) (*State, error)
	SaveState(ctx context.Context, state *State) error
}

// DraftStore persists draft actions keyed by conversation identity.
type DraftStore interface {
	UpsertDraft(ctx context.Context, draft *Draft) error
	GetOpenDraft(ctx context.Context, conversationID string) (*Draft, error)
}

// FallbackResult is the best-effort answer from the external NLU
// collaborator. It never participates in numeric, role, or billing
// decisions.
type FallbackResult struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
	Reply      string            `json:"reply"`
}

// FallbackClassifier is the optional external NLU collaborator, invoked
// only when every deterministic rule fails.
type FallbackClassifier interface {
	Classify(ctx context.Context, text string, state *State) (*FallbackResult, error)
}
