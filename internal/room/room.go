// Package room implements the per-room state machine: a single goroutine per
// room owns all mutable state and processes inbound messages, timer
// firings, and disconnect notifications strictly in FIFO order off one
// channel (spec §5, §9). No other goroutine ever touches Room fields.
package room

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symbolmatch/roomserver/config"
	"github.com/symbolmatch/roomserver/internal/auth"
	"github.com/symbolmatch/roomserver/internal/deck"
	"github.com/symbolmatch/roomserver/internal/protocol"
	"github.com/symbolmatch/roomserver/internal/rngx"
	"github.com/symbolmatch/roomserver/internal/transport"
)

// Phase is one of the five states of spec §4.3's transition table.
type Phase string

const (
	PhaseWaiting   Phase = "WAITING"
	PhaseCountdown Phase = "COUNTDOWN"
	PhasePlaying   Phase = "PLAYING"
	PhaseRoundEnd  Phase = "ROUND_END"
	PhaseGameOver  Phase = "GAME_OVER"
)

type actionType int

const (
	actionInbound actionType = iota
	actionDisconnect
	actionTimerFired
)

// action is the single shape every event into a room takes, whether it
// originated on a connection's read goroutine or a timer's AfterFunc.
type action struct {
	Type actionType

	Conn *transport.Connection
	Data []byte

	TimerName string
	TimerGen  uint64
}

// Room is a single game room. All of its fields below `actions` are only
// ever touched from inside run — that is what makes it single-consumer.
type Room struct {
	Code string

	log    *logrus.Entry
	codec  *protocol.Codec
	tokens *auth.TokenIssuer
	rng    *rngx.Source

	actions chan action
	done    chan struct{}
	onEmpty func(code string)
	timers  *timerManager

	phase  Phase
	cfg    config.RoomConfig
	roster []*Player
	byID   map[string]*Player
	byConn map[*transport.Connection]*Player

	fullDeck      deck.Deck
	activeDeck    deck.Deck
	centerCard    *deck.Card
	roundNumber   int
	deckExhausted bool
	roundHeld     bool // ROUND_END stalled on connectedCount, waiting on a grace timer

	countdownSeconds int
	rematchSet       map[string]struct{}

	expiresAt time.Time
}

// NewRoom constructs a room in WAITING, with no players and all timers
// unarmed. Callers must call Run in its own goroutine and then route
// transport.RoomHandle calls to it.
func NewRoom(code string, codec *protocol.Codec, tokens *auth.TokenIssuer, seed int64, log *logrus.Entry, onEmpty func(string)) *Room {
	r := &Room{
		Code:       code,
		log:        log.WithField("room", code),
		codec:      codec,
		tokens:     tokens,
		rng:        rngx.New(seed),
		actions:    make(chan action, 256),
		done:       make(chan struct{}),
		onEmpty:    onEmpty,
		phase:      PhaseWaiting,
		cfg:        config.DefaultRoomConfig(),
		byID:       make(map[string]*Player),
		byConn:     make(map[*transport.Connection]*Player),
		rematchSet: make(map[string]struct{}),
	}
	r.timers = newTimerManager(r.post)
	return r
}

// Done reports when the room has torn itself down. Safe to select on from
// any goroutine; used by the directory to reap the map entry.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// post enqueues an action, used by the timer manager's AfterFunc callbacks.
// It waits only while the action buffer is full; a room that has already
// torn down simply drops the firing.
func (r *Room) post(a action) {
	select {
	case r.actions <- a:
	case <-r.done:
	}
}

// HandleInbound implements transport.RoomHandle. Called from a connection's
// read goroutine; must not block indefinitely on a wedged room.
func (r *Room) HandleInbound(conn *transport.Connection, data []byte) {
	select {
	case r.actions <- action{Type: actionInbound, Conn: conn, Data: data}:
	case <-r.done:
	}
}

// HandleDisconnect implements transport.RoomHandle.
func (r *Room) HandleDisconnect(conn *transport.Connection) {
	select {
	case r.actions <- action{Type: actionDisconnect, Conn: conn}:
	case <-r.done:
	}
}

// Run is the room's single-consumer loop. It exits when the room tears
// itself down (idle timeout, internal error, or terminal rejoin-window
// expiry).
func (r *Room) Run() {
	r.timers.Arm(timerRoomIdle, config.RoomIdleTimeout)
	r.expiresAt = time.Now().Add(config.RoomIdleTimeout)

	for a := range r.actions {
		r.dispatch(a)
		if r.isTornDown() {
			return
		}
	}
}

func (r *Room) isTornDown() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Room) dispatch(a action) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Error("room invariant violation, destroying room")
			r.teardown(protocol.ReasonInternal)
		}
	}()

	switch a.Type {
	case actionInbound:
		r.handleEnvelope(a.Conn, a.Data)
	case actionDisconnect:
		r.handleDisconnect(a.Conn)
	case actionTimerFired:
		if !r.timers.isCurrent(a.TimerName, a.TimerGen) {
			return // stale firing, lost the race against a rearm/cancel
		}
		r.handleTimer(a.TimerName)
	}
}

func (r *Room) handleEnvelope(conn *transport.Connection, data []byte) {
	env, err := r.codec.DecodeEnvelope(data)
	if err != nil {
		r.sendError(conn, protocol.ErrBadMessage, "malformed frame")
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		r.handleJoin(conn, env.Payload)
	case protocol.TypeReconnect:
		r.handleReconnect(conn, env.Payload)
	case protocol.TypeLeave:
		r.handleLeave(conn)
	case protocol.TypeSetConfig:
		r.handleSetConfig(conn, env.Payload)
	case protocol.TypeStartGame:
		r.handleStartGame(conn, env.Payload)
	case protocol.TypeMatchAttempt:
		r.handleMatchAttempt(conn, env.Payload)
	case protocol.TypePlayAgain:
		r.handlePlayAgain(conn)
	case protocol.TypePing:
		r.handlePing(conn, env.Payload)
	default:
		r.sendError(conn, protocol.ErrBadMessage, "unknown message type")
	}
}

func (r *Room) handleTimer(name string) {
	switch {
	case name == timerRoomIdle:
		r.teardown("idle")
	case name == timerCountdownTick:
		r.tickCountdown()
	case name == timerInterRound:
		r.advanceRound()
	case name == timerRejoinWindow:
		r.resolveRejoinWindow()
	case isGraceTimer(name):
		r.handleGraceExpiry(graceTimerPlayerID(name))
	}
}

func isGraceTimer(name string) bool {
	return len(name) > 6 && name[:6] == "grace:"
}

func graceTimerPlayerID(name string) string {
	return name[6:]
}

// rearmIdleTimer is called on every activity the spec names as keeping a
// room alive: join, reconnect, config change, countdown cancel.
func (r *Room) rearmIdleTimer() {
	r.timers.Arm(timerRoomIdle, config.RoomIdleTimeout)
	r.expiresAt = time.Now().Add(config.RoomIdleTimeout)
}

// teardown destroys the room after announcing a room_expired reason to
// whoever is still connected. Safe to call more than once.
func (r *Room) teardown(reason string) {
	if r.alreadyDone() {
		return
	}
	r.broadcastSame(protocol.TypeRoomExpired, protocol.RoomExpiredPayload{Reason: reason})
	r.destroy()
}

// destroy tears the room down without sending any terminal announcement of
// its own — for call sites (like the solo-rejoin-boot path) that already
// sent the recipient a more specific closing message.
func (r *Room) destroy() {
	if r.alreadyDone() {
		return
	}
	for _, p := range r.roster {
		if p.Conn != nil {
			p.Conn.Close()
		}
	}
	r.timers.CancelAll()
	close(r.done)
	if r.onEmpty != nil {
		r.onEmpty(r.Code)
	}
}

func (r *Room) alreadyDone() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// connectedPlayers returns connected roster members in join order.
func (r *Room) connectedPlayers() []*Player {
	out := make([]*Player, 0, len(r.roster))
	for _, p := range r.roster {
		if p.Status == StatusConnected {
			out = append(out, p)
		}
	}
	return out
}

func (r *Room) connectedCount() int {
	n := 0
	for _, p := range r.roster {
		if p.Status == StatusConnected {
			n++
		}
	}
	return n
}

// promoteHostIfNeeded enforces I1: exactly one connected player is host iff
// at least one player is connected. Called after any join/leave/disconnect.
func (r *Room) promoteHostIfNeeded() {
	for _, p := range r.roster {
		if p.IsHost && p.Status == StatusConnected {
			return // current host still seated
		}
	}
	for _, p := range r.roster {
		p.IsHost = false
	}
	for _, p := range r.roster {
		if p.Status == StatusConnected {
			p.IsHost = true
			r.broadcastSame(protocol.TypeHostChanged, protocol.HostChangedPayload{PlayerID: p.ID})
			return
		}
	}
}

// removePlayer drops p from the roster. forgetRematch controls whether its
// rematch-set entry is cleared too: a GAME_OVER leave must preserve the
// rematch set untouched (spec's NoMutationWhenGameOverLeave), so callers
// pass false from that path.
func (r *Room) removePlayer(p *Player, forgetRematch bool) {
	delete(r.byID, p.ID)
	if forgetRematch {
		delete(r.rematchSet, p.ID)
	}
	if p.Conn != nil {
		delete(r.byConn, p.Conn)
	}
	for i, rp := range r.roster {
		if rp == p {
			r.roster = append(r.roster[:i], r.roster[i+1:]...)
			break
		}
	}
}

func (r *Room) uniqueName(base string) string {
	taken := make(map[string]struct{}, len(r.roster))
	for _, p := range r.roster {
		taken[p.Name] = struct{}{}
	}
	if _, ok := taken[base]; !ok {
		return base
	}
	for k := 2; ; k++ {
		candidate := fmt.Sprintf("%s %d", base, k)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// checkAutoStart implements spec §9's unified guard: auto-start via
// targetPlayers and host manual start share the same "≥2 connected" floor.
func (r *Room) checkAutoStart() {
	if r.phase != PhaseWaiting {
		return
	}
	if r.cfg.TargetPlayers <= 0 {
		return
	}
	if r.connectedCount() >= config.MinConnectedToStart && r.connectedCount() >= r.cfg.TargetPlayers {
		r.startCountdown()
	}
}
