package whatsapp

import (
	"log/slog"
	"strconv"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/nextlevelbuilder/scribe/internal/network"
)

// handleEvent dispatches whatsmeow events. Reconnection is left to the
// client's built-in auto-reconnect.
func (c *Client) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		c.handleMessage(evt)

	case *events.Connected:
		c.connected.Store(true)
		c.captureSelfID()
		slog.Info("whatsapp connected", "self_id", c.selfID.Load())

	case *events.Disconnected:
		c.connected.Store(false)
		slog.Warn("whatsapp connection lost, auto-reconnect will retry")

	case *events.StreamReplaced:
		c.connected.Store(false)
		slog.Error("whatsapp stream replaced by another client")

	case *events.LoggedOut:
		c.connected.Store(false)
		slog.Error("whatsapp session invalidated, relink required", "reason", evt.Reason.String())
	}
}

// handleMessage records one text message and, for inbound individual-chat
// texts, forwards it to the engine. Own messages (sent from the phone or
// another linked device) are recorded too so they appear in history as the
// operator's side of the conversation.
func (c *Client) handleMessage(evt *events.Message) {
	chat := evt.Info.Chat
	if chat.Server != types.DefaultUserServer {
		return
	}

	text := textContent(evt.Message)
	if text == "" {
		return
	}

	peerID, err := strconv.ParseInt(chat.User, 10, 64)
	if err != nil {
		slog.Debug("non-numeric chat jid, skipping", "jid", chat.String())
		return
	}

	if err := c.msglog.Record(c.ctx, peerID, evt.Info.IsFromMe, text, evt.Info.Timestamp); err != nil {
		slog.Warn("record message failed", "peer_id", peerID, "error", err)
	}

	if evt.Info.IsFromMe || c.handler == nil {
		return
	}

	slog.Debug("whatsapp message received",
		"peer_id", peerID,
		"pushname", evt.Info.PushName,
	)
	c.handler(network.Event{Peer: network.UserPeer(peerID), Text: text})
}

// textContent extracts plain text from a message; empty for media and other
// unsupported payloads.
func textContent(waMsg *waE2E.Message) string {
	if waMsg == nil {
		return ""
	}
	if waMsg.Conversation != nil {
		return waMsg.GetConversation()
	}
	if ext := waMsg.ExtendedTextMessage; ext != nil {
		return ext.GetText()
	}
	return ""
}
