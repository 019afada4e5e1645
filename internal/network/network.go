// Package network defines the messaging-network abstraction the drafting
// engine runs against. The concrete WhatsApp implementation lives in the
// whatsapp subpackage; tests use in-memory fakes.
package network

import (
	"context"
	"time"
)

// PeerKind distinguishes individual chats from group chats.
type PeerKind string

const (
	PeerUser  PeerKind = "user"
	PeerGroup PeerKind = "group"
)

// Peer identifies a conversation partner. Comparable; used as a map key.
type Peer struct {
	Kind PeerKind
	ID   int64
}

// UserPeer builds an individual-chat peer from a bare numeric id.
func UserPeer(id int64) Peer {
	return Peer{Kind: PeerUser, ID: id}
}

// Message is one entry of a conversation's history.
type Message struct {
	FromMe    bool // sent by the operator's own account
	Text      string
	Timestamp time.Time
}

// Event is an inbound network message delivered to the engine.
type Event struct {
	Peer Peer
	Text string
}

// EventHandler receives inbound events. Called from the client's event
// goroutine; implementations spawn their own work.
type EventHandler func(Event)

// Client is the messaging-network connection the engine drafts for.
type Client interface {
	// History returns up to limit recent text messages for peer,
	// newest first. Empty-text entries may be included; callers filter.
	History(ctx context.Context, peer Peer, limit int) ([]Message, error)

	// SendText delivers text into peer's conversation as the operator.
	SendText(ctx context.Context, peer Peer, text string) error

	// SelfID returns the operator's own numeric network id,
	// resolved at login. Zero until connected.
	SelfID() int64
}
