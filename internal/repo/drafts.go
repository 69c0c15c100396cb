package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dava-bot/internal/convo"
)

// ErrTerminalStatus indicates an attempt to change a rejected or
// executed draft.
var ErrTerminalStatus = errors.New("draft status is terminal")

// UpsertDraft inserts or replaces a draft action by ID.
func (r *Repository) UpsertDraft(ctx context.Context, draft *convo.Draft) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO draft_actions (
			id, conversation_id, business_id, intent, seller, buyer,
			product_id, product_name, quantity, unit_price, amount,
			requires_prescription, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			buyer = EXCLUDED.buyer,
			product_id = EXCLUDED.product_id,
			product_name = EXCLUDED.product_name,
			quantity = EXCLUDED.quantity,
			unit_price = EXCLUDED.unit_price,
			amount = EXCLUDED.amount,
			requires_prescription = EXCLUDED.requires_prescription,
			updated_at = EXCLUDED.updated_at
		WHERE draft_actions.status = 'draft'`,
		draft.ID, draft.ConversationID, draft.BusinessID, draft.Intent,
		draft.Seller, draft.Buyer, draft.ProductID, draft.ProductName,
		draft.Quantity, draft.UnitPrice, draft.Amount,
		draft.RequiresPrescription, draft.Status, draft.CreatedAt, draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert draft %s: %w", draft.ID, err)
	}
	return nil
}

// GetOpenDraft returns the conversation's single open draft, or nil.
func (r *Repository) GetOpenDraft(ctx context.Context, conversationID string) (*convo.Draft, error) {
	row := r.pool.QueryRow(ctx, draftSelect+`
		WHERE conversation_id = $1 AND status = 'draft'`, conversationID)
	draft, err := scanDraft(row)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load open draft for %s: %w", conversationID, err)
	}
	return draft, nil
}

// GetDraft loads a draft by ID.
func (r *Repository) GetDraft(ctx context.Context, id string) (*convo.Draft, error) {
	row := r.pool.QueryRow(ctx, draftSelect+` WHERE id = $1`, id)
	draft, err := scanDraft(row)
	if noRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft %s: %w", id, err)
	}
	return draft, nil
}

// ListDrafts returns a business's drafts, newest first, optionally
// filtered by status.
func (r *Repository) ListDrafts(ctx context.Context, businessID string, status convo.DraftStatus, limit int) ([]convo.Draft, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := draftSelect + ` WHERE business_id = $1`
	args := []any{businessID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []convo.Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, *draft)
	}
	return drafts, rows.Err()
}

// SetDraftStatus advances a draft's lifecycle. Rejected and executed
// drafts are immutable; touching one returns ErrTerminalStatus.
func (r *Repository) SetDraftStatus(ctx context.Context, id string, status convo.DraftStatus) (*convo.Draft, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE draft_actions
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ('rejected', 'executed')`,
		id, status, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("set draft %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		draft, err := r.GetDraft(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("draft %s is %s: %w", id, draft.Status, ErrTerminalStatus)
	}
	return r.GetDraft(ctx, id)
}

const draftSelect = `
	SELECT id, conversation_id, business_id, intent, seller, buyer,
		product_id, product_name, quantity, unit_price, amount,
		requires_prescription, status, created_at, updated_at
	FROM draft_actions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*convo.Draft, error) {
	var d convo.Draft
	err := row.Scan(&d.ID, &d.ConversationID, &d.BusinessID, &d.Intent,
		&d.Seller, &d.Buyer, &d.ProductID, &d.ProductName,
		&d.Quantity, &d.UnitPrice, &d.Amount,
		&d.RequiresPrescription, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
