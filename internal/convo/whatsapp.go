package convo

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types/events"
)

// Gateway sends WhatsApp messages back to the user.
type Gateway interface {
	SendText(ctx context.Context, to string, text string) error
}

// ProcessMessage handles one inbound WhatsApp event: audit-log it, run
// it through the core, send the response. whatsmeow dispatches each
// event on its own goroutine; HandleMessage serializes per sender.
func (e *Engine) ProcessMessage(ctx context.Context, gateway Gateway, evt *events.Message) {
	if evt.Info.MessageSource.IsFromMe {
		return
	}

	msgType := detectMessageType(evt)
	e.metrics.IncomingMessages.WithLabelValues(msgType).Inc()

	conversationID := evt.Info.Sender.ToNonAD().String()
	text := extractText(evt)

	e.logMessage(ctx, conversationID, "incoming", msgType, text)

	if text == "" {
		msg := "File mili, par main abhi sirf text samajhta hoon. Likh ke batao kya chahiye."
		e.respond(ctx, gateway, conversationID, msg, "non_text")
		return
	}

	resp, err := e.HandleMessage(ctx, conversationID, text)
	if err != nil {
		e.logger.Error("message handling failed", "error", err, "conversation", conversationID)
		e.metrics.Errors.WithLabelValues("handle_message").Inc()
		e.respond(ctx, gateway, conversationID, internalErrorReply(), "error")
		return
	}

	e.respond(ctx, gateway, conversationID, resp.Text, string(resp.Kind))

	if resp.Kind == ResponseDraftCreated && e.cfg.OwnerID != "" && e.cfg.OwnerID != conversationID {
		note := fmt.Sprintf("Naya order draft aaya hai:\n%s\nDraft ID: %s", resp.Summary, resp.DraftID)
		e.respond(ctx, gateway, e.cfg.OwnerID, note, "owner_notice")
	}
}

func (e *Engine) respond(ctx context.Context, gateway Gateway, conversationID, text, category string) {
	if text == "" {
		return
	}
	if err := gateway.SendText(ctx, conversationID, text); err != nil {
		e.logger.Error("failed sending reply", "error", err, "conversation", conversationID)
		e.metrics.Errors.WithLabelValues("send").Inc()
		return
	}
	e.logMessage(ctx, conversationID, "outgoing", category, text)
}

func (e *Engine) logMessage(ctx context.Context, conversationID, direction, category, content string) {
	if e.messages == nil {
		return
	}
	if err := e.messages.LogMessage(ctx, conversationID, direction, category, content); err != nil {
		e.logger.Warn("failed logging message", "error", err, "direction", direction)
	}
}

func detectMessageType(evt *events.Message) string {
	msg := evt.Message
	switch {
	case msg.GetConversation() != "":
		return "text"
	case msg.ExtendedTextMessage != nil:
		return "extended_text"
	case msg.ImageMessage != nil:
		return "image"
	case msg.VideoMessage != nil:
		return "video"
	case msg.AudioMessage != nil:
		return "audio"
	case msg.DocumentMessage != nil:
		return "document"
	default:
		return "unknown"
	}
}

func extractText(evt *events.Message) string {
	msg := evt.Message
	switch {
	case msg.GetConversation() != "":
		return strings.TrimSpace(msg.GetConversation())
	case msg.ExtendedTextMessage != nil:
		return strings.TrimSpace(msg.GetExtendedTextMessage().GetText())
	default:
		return ""
	}
}
