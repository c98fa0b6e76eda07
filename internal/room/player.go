package room

import (
	"time"

	"github.com/symbolmatch/roomserver/internal/deck"
	"github.com/symbolmatch/roomserver/internal/transport"
)

// PlayerStatus is CONNECTED or DISCONNECTED per spec §3.
type PlayerStatus string

const (
	StatusConnected    PlayerStatus = "CONNECTED"
	StatusDisconnected PlayerStatus = "DISCONNECTED"
)

// Player is the durable entity identified by spec §3. Its Conn is a
// transient capability: it goes nil across a disconnect and is rebound on
// reconnect, but the Player itself (id, name, score, hand) survives.
type Player struct {
	ID     string
	Name   string
	IsHost bool
	Status PlayerStatus
	Score  int
	Hand   *deck.Card

	PenaltyUntil       time.Time
	DisconnectDeadline time.Time

	Conn *transport.Connection

	reconnectToken string // signed credential minted on join, private to this player
}

// newPlayer constructs a freshly-joined, connected Player. Join order is
// preserved by roster append order, not by any field on Player itself.
func newPlayer(id, name string, conn *transport.Connection) *Player {
	return &Player{
		ID:     id,
		Name:   name,
		Status: StatusConnected,
		Conn:   conn,
	}
}
