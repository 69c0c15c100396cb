package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Invariant violations are programming errors, not user errors: the FSM
// contract guarantees they cannot happen on any normal path.
var (
	ErrMissingProduct  = errors.New("draft requires a canonical product id")
	ErrInvalidQuantity = errors.New("draft requires a positive quantity")
	ErrRoleCollision   = errors.New("seller and buyer must be distinct")
)

// DecisionEngine turns a fully locked context into an idempotent draft
// action. It only ever creates drafts; execution is gated by the owner's
// approval outside this core.
type DecisionEngine struct {
	BusinessID  string
	Seller      string
	WalkInLabel string
}

// NewDecisionEngine creates a decision engine for one business identity.
func NewDecisionEngine(businessID, seller, walkInLabel string) *DecisionEngine {
	if seller == "" {
		seller = "Pharmacy"
	}
	if walkInLabel == "" {
		walkInLabel = "Walk-in Customer"
	}
	return &DecisionEngine{BusinessID: businessID, Seller: seller, WalkInLabel: walkInLabel}
}

// CreateDraft computes deterministic billing from the product frozen at
// resolution time and upserts the conversation's open draft in place, so
// retries and duplicate confirms never produce two drafts.
func (d *DecisionEngine) CreateDraft(ctx context.Context, store DraftStore, conversationID string, lc LockedContext) (*Draft, error) {
	if lc.Product == nil || lc.Product.ID <= 0 {
		return nil, ErrMissingProduct
	}
	if lc.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	buyer := strings.TrimSpace(lc.Customer)
	if buyer == "" {
		buyer = d.WalkInLabel
	}
	if strings.EqualFold(buyer, d.Seller) {
		return nil, ErrRoleCollision
	}

	now := time.Now().UTC()
	draft := &Draft{
		ID:                   uuid.NewString(),
		ConversationID:       conversationID,
		BusinessID:           d.BusinessID,
		Intent:               "create_invoice",
		Seller:               d.Seller,
		Buyer:                buyer,
		ProductID:            lc.Product.ID,
		ProductName:          lc.Product.Name,
		Quantity:             lc.Quantity,
		UnitPrice:            lc.Product.UnitPrice,
		Amount:               lc.Product.UnitPrice * lc.Quantity,
		RequiresPrescription: lc.Product.RequiresPrescription,
		Status:               StatusDraft,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	existing, err := store.GetOpenDraft(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("lookup open draft: %w", err)
	}
	if existing != nil {
		draft.ID = existing.ID
		draft.CreatedAt = existing.CreatedAt
	}

	if err := store.UpsertDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("upsert draft: %w", err)
	}
	return draft, nil
}

// Summary renders the one-line description shown to the owner.
func (d *Draft) SummaryLine() string {
	rx := ""
	if d.RequiresPrescription {
		rx = " [prescription required]"
	}
	return fmt.Sprintf("Invoice for %s: %.0f x %s = Rs%.2f%s", d.Buyer, d.Quantity, d.ProductName, d.Amount, rx)
}
