package wa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"

	"dava-bot/internal/convo"
)

// Client wraps the whatsmeow connection and bridges inbound events to
// the conversation engine.
type Client struct {
	wm     *whatsmeow.Client
	engine *convo.Engine
	logger *slog.Logger
}

// Config holds WhatsApp connection settings.
type Config struct {
	StorePath string
	LogLevel  string
}

// New opens the device store and constructs the client. Connect must be
// called to go online.
func New(ctx context.Context, engine *convo.Engine, logger *slog.Logger, cfg Config) (*Client, error) {
	if dir := filepath.Dir(cfg.StorePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", cfg.StorePath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	c := &Client{
		wm:     whatsmeow.NewClient(device, waLog.Stdout("Client", cfg.LogLevel, true)),
		engine: engine,
		logger: logger.With("component", "wa"),
	}
	c.wm.AddEventHandler(c.handleEvent)
	return c, nil
}

// Connect goes online, printing a QR code to stdout when the device is
// not paired yet.
func (c *Client) Connect(ctx context.Context) error {
	if c.wm.Store.ID == nil {
		qrChan, err := c.wm.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		if err := c.wm.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				fmt.Println("Scan this QR code with WhatsApp:")
				fmt.Println(evt.Code)
			case "success":
				c.logger.Info("device paired")
			default:
				c.logger.Info("pairing event", "event", evt.Event)
			}
		}
		return nil
	}
	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect closes the connection.
func (c *Client) Disconnect() { c.wm.Disconnect() }

func (c *Client) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Message:
		// whatsmeow delivers each event on its own goroutine; the
		// engine serializes per sender.
		c.engine.ProcessMessage(context.Background(), c, e)
	case *events.Connected:
		c.logger.Info("whatsapp connected")
	case *events.Disconnected:
		c.logger.Warn("whatsapp disconnected")
	case *events.LoggedOut:
		c.logger.Error("device logged out, delete the store and re-pair")
	}
}

// SendText implements convo.Gateway and handlers.Notifier.
func (c *Client) SendText(ctx context.Context, to string, text string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse jid %q: %w", to, err)
	}
	_, err = c.wm.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
