package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LogMessage appends one row to the message audit log, implementing
// convo.MessageLogger.
func (r *Repository) LogMessage(ctx context.Context, conversationID, direction, category, content string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, direction, category, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), conversationID, direction, category, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("log message: %w", err)
	}
	return nil
}
