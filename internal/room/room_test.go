package room_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/symbolmatch/roomserver/internal/auth"
	"github.com/symbolmatch/roomserver/internal/protocol"
	"github.com/symbolmatch/roomserver/internal/room"
	"github.com/symbolmatch/roomserver/internal/transport"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("test", true)
}

func newTestRoom(code string, seed int64) *room.Room {
	codec := protocol.NewCodec()
	tokens := auth.NewTokenIssuer([]byte("test-signing-key"), time.Minute)
	r := room.NewRoom(code, codec, tokens, seed, testLogger(), nil)
	go r.Run()
	return r
}

func newTestServer(r *room.Room) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	log := testLogger()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		conn := transport.NewConnection(ws, r, log)
		go conn.WritePump()
		go conn.ReadPump()
	}))
}

// testClient wraps a real client-side websocket connection so the room's
// own JSON codec exercises the wire, not an in-process shortcut.
type testClient struct {
	t     *testing.T
	ws    *websocket.Conn
	codec *protocol.Codec
}

func dial(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return &testClient{t: t, ws: c, codec: protocol.NewCodec()}
}

func (c *testClient) send(msgType string, payload interface{}) {
	c.t.Helper()
	frame, err := c.codec.Encode(msgType, payload)
	if err != nil {
		c.t.Fatalf("encode %s: %v", msgType, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("write %s: %v", msgType, err)
	}
}

// recvType reads frames until one of the wanted type arrives or the
// deadline is reached, discarding anything else (e.g. an intervening
// room_state while waiting for round_start).
func (c *testClient) recvType(wantType string, timeout time.Duration) protocol.Envelope {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %s", wantType)
		}
		c.ws.SetReadDeadline(time.Now().Add(remaining))
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.t.Fatalf("read waiting for %s: %v", wantType, err)
		}
		env, err := c.codec.DecodeEnvelope(data)
		if err != nil {
			c.t.Fatalf("decode waiting for %s: %v", wantType, err)
		}
		if env.Type == wantType {
			return env
		}
	}
}

func decodePayload(t *testing.T, env protocol.Envelope, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Payload, out); err != nil {
		t.Fatalf("decode payload for %s: %v", env.Type, err)
	}
}

func commonSymbol(a, b protocol.CardView) int {
	have := make(map[int]bool, len(a.Symbols))
	for _, s := range a.Symbols {
		have[s.ID] = true
	}
	for _, s := range b.Symbols {
		if have[s.ID] {
			return s.ID
		}
	}
	return -1
}

// TestBasicRoundFlow drives scenarios 1, 2 and 6 of the spec's end-to-end
// list through a real websocket round trip against a live Room.
func TestBasicRoundFlow(t *testing.T) {
	r := newTestRoom("ABCD", 42)
	srv := newTestServer(r)
	defer srv.Close()

	host := dial(t, srv)
	defer host.ws.Close()
	guest := dial(t, srv)
	defer guest.ws.Close()

	host.send(protocol.TypeJoin, protocol.JoinPayload{PlayerName: "Alex"})
	host.recvType(protocol.TypePlayerJoined, time.Second)
	host.recvType(protocol.TypeRoomState, time.Second)

	guest.send(protocol.TypeJoin, protocol.JoinPayload{PlayerName: "Alex"})
	var joinedEnv protocol.PlayerJoinedPayload
	decodePayload(t, guest.recvType(protocol.TypePlayerJoined, time.Second), &joinedEnv)
	if joinedEnv.Player.Name != "Alex 2" {
		t.Fatalf("duplicate name resolution: got %q, want %q", joinedEnv.Player.Name, "Alex 2")
	}
	guest.recvType(protocol.TypeRoomState, time.Second)
	host.recvType(protocol.TypePlayerJoined, time.Second) // host observes guest join
	host.recvType(protocol.TypeRoomState, time.Second)

	host.send(protocol.TypeStartGame, protocol.StartGamePayload{Config: &protocol.RoomConfigWire{
		CardDifficulty: "EASY",
		GameDuration:   50,
		CardSetID:      "default",
	}})

	host.recvType(protocol.TypeConfigUpdated, time.Second)
	guest.recvType(protocol.TypeConfigUpdated, time.Second)

	host.recvType(protocol.TypeCountdown, 2*time.Second)
	guest.recvType(protocol.TypeCountdown, time.Second)

	hostRoundEnv := host.recvType(protocol.TypeRoundStart, 6*time.Second)
	var hostRound protocol.RoundStartPayload
	decodePayload(t, hostRoundEnv, &hostRound)
	if hostRound.RoundNumber != 1 {
		t.Fatalf("first round number = %d, want 1", hostRound.RoundNumber)
	}
	if hostRound.DeckRemaining != 47 {
		t.Fatalf("deckRemaining after initial deal = %d, want 47 (50-2-1)", hostRound.DeckRemaining)
	}
	guest.recvType(protocol.TypeRoundStart, time.Second)

	// Scenario 2: host attempts a symbol present in their own hand but not
	// on the center card (pick one that is NOT the shared one, if the hand
	// has more than one symbol, which it always does for n=7 => 8 symbols).
	shared := commonSymbol(hostRound.YourCard, hostRound.CenterCard)
	var wrongSymbol int = -1
	for _, s := range hostRound.YourCard.Symbols {
		if s.ID != shared {
			wrongSymbol = s.ID
			break
		}
	}
	if wrongSymbol == -1 {
		t.Fatal("expected hand to carry a symbol other than the shared one")
	}
	host.send(protocol.TypeMatchAttempt, protocol.MatchAttemptPayload{SymbolID: wrongSymbol, ClientTimestamp: 123})
	var penalty protocol.PenaltyPayload
	decodePayload(t, host.recvType(protocol.TypePenalty, time.Second), &penalty)
	if penalty.DurationMs != 3000 {
		t.Fatalf("penalty duration = %d, want 3000", penalty.DurationMs)
	}

	// Scenario 1: the correct symbol wins the round. Attempts inside the
	// penalty window are ignored, so wait it out first.
	time.Sleep(time.Duration(penalty.DurationMs)*time.Millisecond + 100*time.Millisecond)
	host.send(protocol.TypeMatchAttempt, protocol.MatchAttemptPayload{SymbolID: shared, ClientTimestamp: 124})
	var winner protocol.RoundWinnerPayload
	decodePayload(t, host.recvType(protocol.TypeRoundWinner, time.Second), &winner)
	if winner.SymbolID != shared {
		t.Fatalf("round_winner symbolId = %d, want %d", winner.SymbolID, shared)
	}
	guest.recvType(protocol.TypeRoundWinner, time.Second)

	nextRoundEnv := host.recvType(protocol.TypeRoundStart, 4*time.Second)
	var nextRound protocol.RoundStartPayload
	decodePayload(t, nextRoundEnv, &nextRound)
	if nextRound.RoundNumber != 2 {
		t.Fatalf("second round number = %d, want 2", nextRound.RoundNumber)
	}
	if nextRound.DeckRemaining != 46 {
		t.Fatalf("deckRemaining after one round = %d, want 46", nextRound.DeckRemaining)
	}
}

// TestLastPlayerStandingOnLeave drives scenario 4: an explicit leave while
// PLAYING with only 2 connected players ends the game immediately with a
// deck-remaining bonus for the survivor.
func TestLastPlayerStandingOnLeave(t *testing.T) {
	r := newTestRoom("WXYZ", 7)
	srv := newTestServer(r)
	defer srv.Close()

	host := dial(t, srv)
	defer host.ws.Close()
	guest := dial(t, srv)
	defer guest.ws.Close()

	host.send(protocol.TypeJoin, protocol.JoinPayload{PlayerName: "Host"})
	host.recvType(protocol.TypePlayerJoined, time.Second)
	host.recvType(protocol.TypeRoomState, time.Second)

	guest.send(protocol.TypeJoin, protocol.JoinPayload{PlayerName: "Guest"})
	guest.recvType(protocol.TypePlayerJoined, time.Second)
	guest.recvType(protocol.TypeRoomState, time.Second)
	host.recvType(protocol.TypePlayerJoined, time.Second)
	host.recvType(protocol.TypeRoomState, time.Second)

	host.send(protocol.TypeStartGame, protocol.StartGamePayload{})
	host.recvType(protocol.TypeCountdown, time.Second)
	guest.recvType(protocol.TypeCountdown, time.Second)
	host.recvType(protocol.TypeRoundStart, 6*time.Second)
	guest.recvType(protocol.TypeRoundStart, time.Second)

	guest.send(protocol.TypeLeave, struct{}{})

	var gameOver protocol.GameOverPayload
	decodePayload(t, host.recvType(protocol.TypeGameOver, time.Second), &gameOver)
	if gameOver.Reason != protocol.ReasonLastPlayerStanding {
		t.Fatalf("game_over reason = %q, want %q", gameOver.Reason, protocol.ReasonLastPlayerStanding)
	}
	if gameOver.BonusAwarded == nil {
		t.Fatal("expected bonusAwarded to be set")
	}
	if len(gameOver.FinalScores) != 1 {
		t.Fatalf("expected 1 remaining player in final scores, got %d", len(gameOver.FinalScores))
	}
	if gameOver.FinalScores[0].Score != *gameOver.BonusAwarded {
		t.Fatalf("survivor score %d should equal bonus %d (no rounds were won)", gameOver.FinalScores[0].Score, *gameOver.BonusAwarded)
	}
}
