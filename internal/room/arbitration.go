package room

import (
	"encoding/json"
	"time"

	"github.com/symbolmatch/roomserver/config"
	"github.com/symbolmatch/roomserver/internal/protocol"
	"github.com/symbolmatch/roomserver/internal/transport"
)

// handleMatchAttempt implements spec §4.4's pseudocode exactly. Because it
// runs inside the room's single-consumer loop, the first valid attempt to
// reach this point wins — no additional locking is needed for that
// guarantee (spec §5).
func (r *Room) handleMatchAttempt(conn *transport.Connection, payload json.RawMessage) {
	player, ok := r.byConn[conn]
	if !ok {
		return
	}
	if r.phase != PhasePlaying {
		return // out-of-phase attempts are silently ignored, not erred
	}

	in, err := r.codec.DecodeMatchAttempt(payload)
	if err != nil {
		r.sendError(conn, protocol.ErrBadMessage, "malformed match_attempt")
		return
	}

	now := time.Now()
	if now.Before(player.PenaltyUntil) {
		return
	}

	valid := player.Hand != nil && r.centerCard != nil &&
		player.Hand.HasSymbol(in.SymbolID) && r.centerCard.HasSymbol(in.SymbolID)
	if !valid {
		player.PenaltyUntil = now.Add(config.PenaltyDuration)
		r.sendToPlayer(player, protocol.TypePenalty, protocol.PenaltyPayload{
			DurationMs:      config.PenaltyDuration.Milliseconds(),
			ServerTimestamp: now.UnixMilli(),
		})
		return
	}

	// First valid attempt wins because handler is serialized.
	player.Score++
	r.centerCard = player.Hand
	newHand := r.popCard()
	player.Hand = newHand
	if newHand == nil {
		r.deckExhausted = true
	}
	r.phase = PhaseRoundEnd
	r.broadcastRoundWinner(player, in.SymbolID)
	r.timers.Arm(timerInterRound, config.InterRoundDelay)
}
