package room

import (
	"github.com/symbolmatch/roomserver/config"
	"github.com/symbolmatch/roomserver/internal/deck"
	"github.com/symbolmatch/roomserver/internal/protocol"
	"github.com/symbolmatch/roomserver/internal/transport"
)

// sendRaw encodes and delivers a frame to a connection directly, used
// before a Player is bound (join/reconnect rejections, ping, bad-message
// errors) where there is no Player to address by id.
func (r *Room) sendRaw(conn *transport.Connection, msgType string, payload interface{}) {
	if conn == nil {
		return
	}
	out, err := r.codec.Encode(msgType, payload)
	if err != nil {
		r.log.WithError(err).Error("encode outbound frame")
		return
	}
	conn.Send(out)
}

func (r *Room) sendError(conn *transport.Connection, code, message string) {
	r.sendRaw(conn, protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
}

// sendToPlayer delivers a frame to a single player, a no-op if they are
// currently disconnected.
func (r *Room) sendToPlayer(p *Player, msgType string, payload interface{}) {
	if p == nil || p.Conn == nil {
		return
	}
	r.sendRaw(p.Conn, msgType, payload)
}

// broadcastSame encodes payload once and fans it out unmodified to every
// connected player — for events with no per-recipient projection.
func (r *Room) broadcastSame(msgType string, payload interface{}) {
	out, err := r.codec.Encode(msgType, payload)
	if err != nil {
		r.log.WithError(err).Error("encode outbound frame")
		return
	}
	for _, p := range r.roster {
		if p.Conn != nil {
			p.Conn.Send(out)
		}
	}
}

// broadcastExcept is broadcastSame minus one recipient (e.g. a leaving
// player who is about to have their connection closed separately).
func (r *Room) broadcastExcept(exclude *Player, msgType string, payload interface{}) {
	out, err := r.codec.Encode(msgType, payload)
	if err != nil {
		r.log.WithError(err).Error("encode outbound frame")
		return
	}
	for _, p := range r.roster {
		if p == exclude || p.Conn == nil {
			continue
		}
		p.Conn.Send(out)
	}
}

// playerView projects one roster entry as seen by viewerID: isYou is
// computed fresh per recipient rather than stored, per spec §9.
func playerView(p *Player, viewerID string) protocol.PlayerView {
	return protocol.PlayerView{
		ID:     p.ID,
		Name:   p.Name,
		IsHost: p.IsHost,
		IsYou:  p.ID == viewerID,
		Status: string(p.Status),
		Score:  p.Score,
	}
}

func cardView(c *deck.Card) *protocol.CardView {
	if c == nil {
		return nil
	}
	symbols := make([]protocol.SymbolView, len(c.Symbols))
	for i, s := range c.Symbols {
		symbols[i] = protocol.SymbolView{ID: s.ID, Display: s.Display}
	}
	return &protocol.CardView{ID: c.ID, Symbols: symbols}
}

func cardViewValue(c *deck.Card) protocol.CardView {
	v := cardView(c)
	if v == nil {
		return protocol.CardView{}
	}
	return *v
}

func (r *Room) configWire() protocol.RoomConfigWire {
	return protocol.RoomConfigWire{
		CardDifficulty: string(r.cfg.CardDifficulty),
		GameDuration:   int(r.cfg.GameDuration),
		CardSetID:      r.cfg.CardSetID,
		TargetPlayers:  r.cfg.TargetPlayers,
	}
}

// roomStateFor builds the room_state payload as seen by recipient p:
// yourCard is their own hand, isYou is theirs alone.
func (r *Room) roomStateFor(p *Player) protocol.RoomStatePayload {
	players := make([]protocol.PlayerView, len(r.roster))
	for i, rp := range r.roster {
		players[i] = playerView(rp, p.ID)
	}

	payload := protocol.RoomStatePayload{
		Phase:         string(r.phase),
		Players:       players,
		Config:        r.configWire(),
		RoomExpiresAt: r.expiresAt.UnixMilli(),
		RoundNumber:   r.roundNumber,
	}
	if p.reconnectToken != "" {
		payload.YourReconnectToken = p.reconnectToken
	}
	if r.phase == PhasePlaying || r.phase == PhaseRoundEnd {
		payload.CenterCard = cardView(r.centerCard)
		payload.YourCard = cardView(p.Hand)
		remaining := len(r.activeDeck)
		payload.DeckRemaining = &remaining
	}
	return payload
}

// broadcastRoomState sends every connected player their own projection of
// current room state in one pass.
func (r *Room) broadcastRoomState() {
	for _, p := range r.roster {
		if p.Conn == nil {
			continue
		}
		r.sendToPlayer(p, protocol.TypeRoomState, r.roomStateFor(p))
	}
}

// broadcastPlayerJoined projects player_joined per-recipient: only the
// joiner themself ever sees isYou=true on it.
func (r *Room) broadcastPlayerJoined(joined *Player) {
	for _, p := range r.roster {
		if p.Conn == nil {
			continue
		}
		r.sendToPlayer(p, protocol.TypePlayerJoined, protocol.PlayerJoinedPayload{
			Player: playerView(joined, p.ID),
		})
	}
}

func (r *Room) scoreEntries() []protocol.ScoreEntry {
	out := make([]protocol.ScoreEntry, len(r.roster))
	for i, p := range r.roster {
		out[i] = protocol.ScoreEntry{PlayerID: p.ID, Name: p.Name, Score: p.Score}
	}
	return out
}

func (r *Room) broadcastRoundStart() {
	for _, p := range r.roster {
		if p.Conn == nil {
			continue
		}
		r.sendToPlayer(p, protocol.TypeRoundStart, protocol.RoundStartPayload{
			RoundNumber:   r.roundNumber,
			YourCard:      cardViewValue(p.Hand),
			CenterCard:    cardViewValue(r.centerCard),
			DeckRemaining: len(r.activeDeck),
		})
	}
}

func (r *Room) broadcastRoundWinner(winner *Player, symbolID int) {
	r.broadcastSame(protocol.TypeRoundWinner, protocol.RoundWinnerPayload{
		WinnerID:    winner.ID,
		SymbolID:    symbolID,
		RoundNumber: r.roundNumber,
		Scores:      r.scoreEntries(),
	})
}

func (r *Room) broadcastGameOver(reason string, bonus *int) {
	r.broadcastSame(protocol.TypeGameOver, protocol.GameOverPayload{
		Reason:         reason,
		FinalScores:    r.scoreEntries(),
		BonusAwarded:   bonus,
		RejoinWindowMs: config.RejoinWindow.Milliseconds(),
	})
}
