// Package whatsapp connects the drafting engine to WhatsApp via whatsmeow —
// a native Go WhatsApp Web API library. Sessions persist in a SQLite device
// store; first run requires a QR scan to link the operator's account.
//
// WhatsApp has no on-demand history API, so every text passing through the
// connection (both directions) is recorded in the local message log, which
// then serves the engine's history fetches.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // driver for the whatsmeow device store

	"github.com/nextlevelbuilder/scribe/internal/config"
	"github.com/nextlevelbuilder/scribe/internal/msglog"
	"github.com/nextlevelbuilder/scribe/internal/network"
)

// Client is the WhatsApp implementation of network.Client.
type Client struct {
	cfg     config.NetworkConfig
	wa      *whatsmeow.Client
	msglog  *msglog.Store
	handler network.EventHandler

	ctx    context.Context
	cancel context.CancelFunc

	selfID    atomic.Int64
	connected atomic.Bool
}

// New builds a client. handler receives inbound texts from individual chats;
// it may be nil for send-only use.
func New(cfg config.NetworkConfig, log *msglog.Store, handler network.EventHandler) *Client {
	return &Client{
		cfg:     cfg,
		msglog:  log,
		handler: handler,
	}
}

// Connect opens the device store and establishes the WhatsApp Web session.
// With no linked session it blocks on the QR login flow; the code is printed
// to the terminal for scanning.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	dbPath := config.ExpandHome(c.cfg.SessionDB)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	container, err := sqlstore.New(c.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	device, err := c.getDevice(c.ctx, container)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	deviceName := c.cfg.DeviceName
	if deviceName == "" {
		deviceName = "Scribe"
	}
	store.SetOSInfo(deviceName, [3]uint32{1, 0, 0})

	c.wa = whatsmeow.NewClient(device, waLog.Noop)
	c.wa.AddEventHandler(c.handleEvent)
	c.wa.EnableAutoReconnect = true
	c.wa.InitialAutoReconnect = true

	if c.wa.Store.ID == nil {
		slog.Info("no whatsapp session, starting QR login")
		if err := c.loginWithQR(c.ctx); err != nil {
			return fmt.Errorf("qr login: %w", err)
		}
	} else {
		if err := c.wa.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		slog.Info("whatsapp connecting with existing session", "jid", c.wa.Store.ID.String())
	}

	c.captureSelfID()
	return nil
}

// Disconnect closes the WhatsApp connection. The message log is owned by the
// caller and stays open.
func (c *Client) Disconnect() {
	c.connected.Store(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.wa != nil {
		c.wa.Disconnect()
	}
	slog.Info("whatsapp disconnected")
}

// SendText delivers text into peer's conversation and records it in the
// message log as an own message.
func (c *Client) SendText(ctx context.Context, peer network.Peer, text string) error {
	if !c.connected.Load() {
		return fmt.Errorf("whatsapp not connected")
	}
	if peer.Kind != network.PeerUser {
		return fmt.Errorf("unsupported peer kind %q", peer.Kind)
	}

	jid := userJID(peer.ID)
	if _, err := c.wa.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	}); err != nil {
		return fmt.Errorf("send to %s: %w", jid, err)
	}

	if err := c.msglog.Record(ctx, peer.ID, true, text, time.Now()); err != nil {
		slog.Warn("record sent message failed", "peer_id", peer.ID, "error", err)
	}
	return nil
}

// History returns up to limit recorded texts for peer, newest first.
func (c *Client) History(ctx context.Context, peer network.Peer, limit int) ([]network.Message, error) {
	entries, err := c.msglog.Recent(ctx, peer.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("message log for %d: %w", peer.ID, err)
	}
	msgs := make([]network.Message, len(entries))
	for i, e := range entries {
		msgs[i] = network.Message{FromMe: e.FromMe, Text: e.Text, Timestamp: e.Timestamp}
	}
	return msgs, nil
}

// SelfID returns the operator's own phone number id, zero until connected.
func (c *Client) SelfID() int64 {
	return c.selfID.Load()
}

// IsConnected reports whether the WhatsApp Web session is live.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// getDevice retrieves the stored device or creates a fresh one.
func (c *Client) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR runs the QR pairing flow, printing each code to the terminal
// until the scan succeeds or times out.
func (c *Client) loginWithQR(ctx context.Context) error {
	qrChan, err := c.wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get qr channel: %w", err)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connect for qr: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("qr channel closed")
			}
			switch evt.Event {
			case "code":
				fmt.Fprintf(os.Stderr, "\nLink this device: WhatsApp → Settings → Linked Devices → Link a Device\nQR payload: %s\n\n", evt.Code)
			case "success":
				slog.Info("whatsapp linked")
				return nil
			case "timeout":
				return fmt.Errorf("qr code expired before scan")
			default:
				if evt.Error != nil {
					return fmt.Errorf("qr login: %w", evt.Error)
				}
			}
		}
	}
}

// captureSelfID parses the operator's own phone number out of the store JID.
func (c *Client) captureSelfID() {
	if c.wa == nil || c.wa.Store.ID == nil {
		return
	}
	id, err := strconv.ParseInt(c.wa.Store.ID.User, 10, 64)
	if err != nil {
		slog.Warn("own jid is not numeric", "jid", c.wa.Store.ID.String())
		return
	}
	c.selfID.Store(id)
}

// userJID builds an individual-chat JID from a bare phone number id.
func userJID(id int64) types.JID {
	return types.NewJID(strconv.FormatInt(id, 10), types.DefaultUserServer)
}
