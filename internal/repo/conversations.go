package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dava-bot/internal/convo"
)

// GetState loads a conversation's FSM state, or nil when the identity
// has no stored conversation yet.
func (r *Repository) GetState(ctx context.Context, conversationID string) (*convo.State, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT mode, context, trace, version, updated_at
		FROM conversations
		WHERE conversation_id = $1`, conversationID)

	state := convo.State{ConversationID: conversationID}
	var contextJSON, traceJSON []byte
	err := row.Scan(&state.Mode, &contextJSON, &traceJSON, &state.Version, &state.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	if err := json.Unmarshal(contextJSON, &state.Context); err != nil {
		return nil, fmt.Errorf("decode context for %s: %w", conversationID, err)
	}
	if len(traceJSON) > 0 {
		if err := json.Unmarshal(traceJSON, &state.Trace); err != nil {
			return nil, fmt.Errorf("decode trace for %s: %w", conversationID, err)
		}
	}
	return &state, nil
}

// SaveState writes a conversation state using optimistic versioning.
// A version mismatch means a concurrent writer won; the caller reloads
// and replays. On success the in-memory version is bumped to match.
func (r *Repository) SaveState(ctx context.Context, state *convo.State) error {
	contextJSON, err := json.Marshal(state.Context)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	traceJSON, err := json.Marshal(state.Trace)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	now := time.Now().UTC()

	if state.Version == 0 {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO conversations (conversation_id, mode, context, trace, version, updated_at)
			VALUES ($1, $2, $3, $4, 1, $5)
			ON CONFLICT (conversation_id) DO NOTHING`,
			state.ConversationID, state.Mode, contextJSON, traceJSON, now)
		if err != nil {
			return fmt.Errorf("insert conversation %s: %w", state.ConversationID, err)
		}
		if tag.RowsAffected() == 0 {
			return convo.ErrStateConflict
		}
		state.Version = 1
		state.UpdatedAt = now
		return nil
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET mode = $2, context = $3, trace = $4, version = version + 1, updated_at = $5
		WHERE conversation_id = $1 AND version = $6`,
		state.ConversationID, state.Mode, contextJSON, traceJSON, now, state.Version)
	if err != nil {
		return fmt.Errorf("update conversation %s: %w", state.ConversationID, err)
	}
	if tag.RowsAffected() == 0 {
		return convo.ErrStateConflict
	}
	state.Version++
	state.UpdatedAt = now
	return nil
}
