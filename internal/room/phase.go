package room

import (
	"encoding/json"
	"time"

	"github.com/symbolmatch/roomserver/config"
	"github.com/symbolmatch/roomserver/internal/deck"
	"github.com/symbolmatch/roomserver/internal/protocol"
	"github.com/symbolmatch/roomserver/internal/transport"
)

// handleSetConfig: WAITING only, host only (spec §6 inbound table).
func (r *Room) handleSetConfig(conn *transport.Connection, payload json.RawMessage) {
	player, ok := r.byConn[conn]
	if !ok {
		return
	}
	if !player.IsHost {
		r.sendError(conn, protocol.ErrUnauthorized, "only the host may change config")
		return
	}
	if r.phase != PhaseWaiting {
		r.sendError(conn, protocol.ErrInvalidState, "config can only change while waiting")
		return
	}
	in, err := r.codec.DecodeSetConfig(payload)
	if err != nil {
		r.sendError(conn, protocol.ErrBadMessage, "malformed set_config")
		return
	}

	r.cfg = fromWireConfig(in.Config)
	r.rearmIdleTimer()
	r.broadcastSame(protocol.TypeConfigUpdated, protocol.ConfigUpdatedPayload{Config: r.configWire()})
	r.checkAutoStart()
}

// handleStartGame: WAITING, ≥2 connected, host only.
func (r *Room) handleStartGame(conn *transport.Connection, payload json.RawMessage) {
	player, ok := r.byConn[conn]
	if !ok {
		return
	}
	if !player.IsHost {
		r.sendError(conn, protocol.ErrUnauthorized, "only the host may start the game")
		return
	}
	if r.phase != PhaseWaiting {
		r.sendError(conn, protocol.ErrInvalidState, "game already started")
		return
	}
	if r.connectedCount() < config.MinConnectedToStart {
		r.sendError(conn, protocol.ErrInvalidState, "need at least 2 connected players")
		return
	}

	in, err := r.codec.DecodeStartGame(payload)
	if err != nil {
		r.sendError(conn, protocol.ErrBadMessage, "malformed start_game")
		return
	}
	if in.Config != nil {
		r.cfg = fromWireConfig(*in.Config)
		r.broadcastSame(protocol.TypeConfigUpdated, protocol.ConfigUpdatedPayload{Config: r.configWire()})
	}

	r.rearmIdleTimer()
	r.startCountdown()
}

func fromWireConfig(w protocol.RoomConfigWire) config.RoomConfig {
	return config.RoomConfig{
		CardDifficulty: config.CardDifficulty(w.CardDifficulty),
		GameDuration:   config.GameDuration(w.GameDuration),
		CardSetID:      w.CardSetID,
		TargetPlayers:  w.TargetPlayers,
	}
}

// startCountdown: WAITING -> COUNTDOWN, spec §4.3 row 1.
func (r *Room) startCountdown() {
	r.phase = PhaseCountdown
	r.countdownSeconds = int(config.CountdownDuration / config.CountdownTick)
	r.broadcastSame(protocol.TypeCountdown, protocol.CountdownPayload{Seconds: r.countdownSeconds})
	r.timers.Arm(timerCountdownTick, config.CountdownTick)
}

// tickCountdown handles one countdown_tick firing.
func (r *Room) tickCountdown() {
	if r.connectedCount() < config.MinConnectedToStart {
		r.cancelCountdownToWaiting()
		return
	}
	r.countdownSeconds--
	if r.countdownSeconds <= 0 {
		r.startPlaying()
		return
	}
	r.broadcastSame(protocol.TypeCountdown, protocol.CountdownPayload{Seconds: r.countdownSeconds})
	r.timers.Arm(timerCountdownTick, config.CountdownTick)
}

// cancelCountdownToWaiting: COUNTDOWN -> WAITING, spec §4.3 row 3.
func (r *Room) cancelCountdownToWaiting() {
	r.timers.Cancel(timerCountdownTick)
	r.phase = PhaseWaiting
	r.broadcastSame(protocol.TypeCountdown, protocol.CountdownPayload{Seconds: -1})
	r.rearmIdleTimer()
	r.broadcastRoomState()
}

// startPlaying: COUNTDOWN -> PLAYING, spec §4.3 row 2. Generates a fresh
// deck, shuffles it, deals one card to each connected player plus a center
// card, and emits the first round_start.
func (r *Room) startPlaying() {
	n := config.PlaneOrder
	pool := defaultSymbolPool(deck.CardCount(n))
	full, err := deck.Generate(n, pool)
	if err != nil {
		r.log.WithError(err).Error("deck generation failed invariant, destroying room")
		panic(err) // caught by dispatch's recover, which tears the room down
	}
	r.fullDeck = full

	order := make([]int, len(full))
	for i := range order {
		order[i] = i
	}
	r.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	gameSize := int(r.cfg.GameDuration)
	if gameSize <= 0 || gameSize > len(full) {
		gameSize = len(full)
	}
	active := make(deck.Deck, gameSize)
	for i := 0; i < gameSize; i++ {
		active[i] = full[order[i]]
	}
	r.activeDeck = active
	r.deckExhausted = false
	r.roundHeld = false
	r.roundNumber = 1

	for _, p := range r.connectedPlayers() {
		p.Hand = r.popCard()
	}
	center := r.popCard()
	r.centerCard = center

	r.phase = PhasePlaying
	r.broadcastRoomState()
	r.broadcastRoundStart()
}

// popCard pops the front of the active deck, or nil if exhausted.
func (r *Room) popCard() *deck.Card {
	if len(r.activeDeck) == 0 {
		return nil
	}
	c := r.activeDeck[0]
	r.activeDeck = r.activeDeck[1:]
	return &c
}

// advanceRound handles the inter-round timer firing: ROUND_END -> PLAYING
// or ROUND_END -> GAME_OVER(deck_exhausted), spec §4.3 rows 4-5. A connected
// count below the floor does NOT end the game here: I5/§4.5 only escalate to
// last-player-standing once a disconnecting player's own grace period
// expires (handleGraceExpiry). Until then the round just holds in ROUND_END;
// handleReconnect resumes it if the player returns in time.
func (r *Room) advanceRound() {
	if r.deckExhausted {
		r.enterGameOverDeckExhausted()
		return
	}
	if r.connectedCount() < config.MinConnectedToStart {
		r.roundHeld = true
		return
	}
	r.continueToNextRound()
}

// continueToNextRound performs the ROUND_END -> PLAYING transition, either
// from the inter-round timer firing with enough players connected, or from
// a reconnect that resumes a round previously held for lack of players.
func (r *Room) continueToNextRound() {
	r.roundHeld = false
	r.roundNumber++
	r.phase = PhasePlaying
	r.broadcastRoundStart()
}

func (r *Room) enterGameOverDeckExhausted() {
	r.phase = PhaseGameOver
	r.broadcastGameOver(protocol.ReasonDeckExhausted, nil)
	r.armRejoinWindow()
}

// enterGameOverLastPlayerStanding implements I5's termination path: the
// sole remaining connected player is awarded every undealt card.
func (r *Room) enterGameOverLastPlayerStanding() {
	bonus := len(r.activeDeck)
	connected := r.connectedPlayers()
	if len(connected) == 1 {
		connected[0].Score += bonus
	}
	r.phase = PhaseGameOver
	r.broadcastGameOver(protocol.ReasonLastPlayerStanding, &bonus)
	r.armRejoinWindow()
}

func (r *Room) armRejoinWindow() {
	r.rematchSet = make(map[string]struct{})
	r.timers.Arm(timerRejoinWindow, config.RejoinWindow)
}

func (r *Room) handlePlayAgain(conn *transport.Connection) {
	player, ok := r.byConn[conn]
	if !ok {
		return
	}
	if r.phase != PhaseGameOver {
		r.sendError(conn, protocol.ErrInvalidState, "no game to rejoin")
		return
	}
	r.rematchSet[player.ID] = struct{}{}
	r.broadcastSame(protocol.TypePlayAgainAck, protocol.PlayAgainAckPayload{PlayerID: player.ID})
}

// resolveRejoinWindow handles the rejoin-window timer firing: spec §4.3's
// last two GAME_OVER rows.
func (r *Room) resolveRejoinWindow() {
	if len(r.rematchSet) >= 2 {
		r.resetForRematch()
		return
	}

	connected := r.connectedPlayers()
	if len(connected) == 1 {
		r.sendToPlayer(connected[0], protocol.TypeSoloRejoinBoot, protocol.SoloRejoinBootPayload{
			Message: "no opponent rejoined in time",
		})
		r.destroy()
		return
	}
	r.teardown("rejoin_window_expired")
}

// resetForRematch: GAME_OVER -> WAITING, keeping the roster but clearing
// per-game state.
func (r *Room) resetForRematch() {
	r.phase = PhaseWaiting
	r.roundNumber = 0
	r.centerCard = nil
	r.activeDeck = nil
	r.fullDeck = nil
	r.deckExhausted = false
	r.roundHeld = false
	r.rematchSet = make(map[string]struct{})
	for _, p := range r.roster {
		p.Score = 0
		p.Hand = nil
		p.PenaltyUntil = time.Time{}
	}
	r.rearmIdleTimer()
	r.broadcastRoomState()
}

// defaultSymbolPool builds an opaque, server-generated symbol pool. Actual
// card-set artwork/selection is an out-of-scope external collaborator
// (spec §1); the server only ever needs stable integer identities plus an
// opaque display token to hand to the client.
func defaultSymbolPool(n int) []deck.Symbol {
	pool := make([]deck.Symbol, n)
	for i := range pool {
		pool[i] = deck.Symbol{ID: i, Display: i}
	}
	return pool
}
