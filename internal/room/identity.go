package room

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/symbolmatch/roomserver/config"
	"github.com/symbolmatch/roomserver/internal/protocol"
	"github.com/symbolmatch/roomserver/internal/transport"
)

// handleJoin implements spec §4.2's attach(stream, code, fresh(name)).
func (r *Room) handleJoin(conn *transport.Connection, payload json.RawMessage) {
	if _, bound := r.byConn[conn]; bound {
		return // race rule: a stream already bound ignores further joins
	}
	if r.phase != PhaseWaiting && r.phase != PhaseGameOver {
		r.sendError(conn, protocol.ErrGameInProgress, "game already in progress")
		return
	}
	if len(r.roster) >= config.MaxPlayersPerRoom {
		r.sendError(conn, protocol.ErrRoomFull, "room is full")
		return
	}

	in, err := r.codec.DecodeJoin(payload)
	if err != nil {
		r.sendError(conn, protocol.ErrBadMessage, "malformed join")
		return
	}
	name := in.PlayerName
	if name == "" {
		name = "Player"
	}
	name = r.uniqueName(name)

	id := uuid.NewString()
	makeHost := len(r.roster) == 0

	player := newPlayer(id, name, conn)
	player.IsHost = makeHost
	if r.tokens != nil {
		if tok, err := r.tokens.Issue(r.Code, id); err == nil {
			player.reconnectToken = tok
		}
	}

	r.roster = append(r.roster, player)
	r.byID[id] = player
	r.byConn[conn] = player

	r.rearmIdleTimer()
	r.broadcastPlayerJoined(player)
	r.broadcastRoomState()
	r.checkAutoStart()
}

// handleReconnect implements spec §4.2's attach(stream, code, reconnect(priorId)).
func (r *Room) handleReconnect(conn *transport.Connection, payload json.RawMessage) {
	if _, bound := r.byConn[conn]; bound {
		return
	}
	in, err := r.codec.DecodeReconnect(payload)
	if err != nil {
		r.sendError(conn, protocol.ErrBadMessage, "malformed reconnect")
		return
	}

	player, ok := r.byID[in.PlayerID]
	if !ok || player.Status != StatusDisconnected {
		r.sendError(conn, protocol.ErrGameInProgress, "cannot reconnect")
		return
	}
	if player.reconnectToken != "" {
		if id, verr := r.tokens.Verify(r.Code, in.Token); verr != nil || id != player.ID {
			r.sendError(conn, protocol.ErrUnauthorized, "invalid reconnect token")
			return
		}
	}

	r.timers.Cancel(graceTimerName(player.ID))
	player.Conn = conn
	player.Status = StatusConnected
	player.DisconnectDeadline = time.Time{}
	r.byConn[conn] = player

	r.promoteHostIfNeeded()
	r.rearmIdleTimer()

	// A round that stalled in ROUND_END for lack of connected players
	// resumes now that one has returned, rather than waiting on a timer
	// that already fired (advanceRound, phase.go).
	if r.roundHeld && r.phase == PhaseRoundEnd && !r.deckExhausted && r.connectedCount() >= config.MinConnectedToStart {
		r.continueToNextRound()
	}
	r.broadcastRoomState()
}

// handleLeave processes an explicit, permanent departure: unlike a
// transport disconnect, there is no grace period — the seat is vacated now.
func (r *Room) handleLeave(conn *transport.Connection) {
	player, ok := r.byConn[conn]
	if !ok {
		return
	}

	priorPhase := r.phase
	wasHost := player.IsHost

	r.timers.Cancel(graceTimerName(player.ID))
	r.removePlayer(player, priorPhase != PhaseGameOver)
	player.Conn = nil

	r.broadcastSame(protocol.TypePlayerLeft, protocol.PlayerLeftPayload{PlayerID: player.ID})
	if wasHost {
		r.promoteHostIfNeeded()
	}

	if priorPhase == PhaseGameOver {
		// I4.3's pivotal row: leaving during GAME_OVER must not re-evaluate
		// end-of-game logic or touch the rematch set/rejoin deadline.
		return
	}

	transitioned := false
	switch priorPhase {
	case PhaseCountdown:
		if r.connectedCount() < config.MinConnectedToStart {
			r.cancelCountdownToWaiting()
			transitioned = true
		}
	case PhasePlaying, PhaseRoundEnd:
		if r.connectedCount() < config.MinConnectedToStart {
			r.enterGameOverLastPlayerStanding()
			transitioned = true
		}
	}

	if !transitioned {
		r.broadcastRoomState()
	}
}

// handleDisconnect processes a transport-level drop: the seat is held for
// a grace period in case the same identity reconnects.
func (r *Room) handleDisconnect(conn *transport.Connection) {
	player, ok := r.byConn[conn]
	if !ok {
		return
	}
	delete(r.byConn, conn)
	player.Conn = nil
	player.Status = StatusDisconnected
	player.DisconnectDeadline = time.Now().Add(config.DisconnectGrace)
	r.timers.Arm(graceTimerName(player.ID), config.DisconnectGrace)

	if player.IsHost {
		r.promoteHostIfNeeded()
	}

	r.broadcastSame(protocol.TypePlayerDisc, protocol.PlayerDisconnectedPayload{PlayerID: player.ID})

	if r.phase == PhaseCountdown && r.connectedCount() < config.MinConnectedToStart {
		r.cancelCountdownToWaiting()
		return
	}

	if r.phase != PhaseGameOver {
		r.broadcastRoomState()
	}
}

// handleGraceExpiry fires when a disconnected player's 5s grace period
// elapses without a reconnect. Only PLAYING/ROUND_END with <2 connected
// escalates (I5); WAITING/GAME_OVER just leave the seat held.
func (r *Room) handleGraceExpiry(playerID string) {
	player, ok := r.byID[playerID]
	if !ok || player.Status == StatusConnected {
		return
	}
	if (r.phase == PhasePlaying || r.phase == PhaseRoundEnd) && r.connectedCount() < config.MinConnectedToStart {
		r.enterGameOverLastPlayerStanding()
	}
}

func (r *Room) handlePing(conn *transport.Connection, payload json.RawMessage) {
	in, err := r.codec.DecodePing(payload)
	if err != nil {
		r.sendError(conn, protocol.ErrBadMessage, "malformed ping")
		return
	}
	r.sendRaw(conn, protocol.TypePong, protocol.PongPayload{
		ClientTimestamp: in.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	})
}
