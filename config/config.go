package config

import "time"

// Game constants - must match client exactly for deterministic room behavior.
const (
	// Room / roster
	MinConnectedToStart = 2
	MaxPlayersPerRoom    = 8
	MaxRoomsPerServer    = 10000

	// Deck
	PlaneOrder = 7 // prime n; yields n*n+n+1 = 57 cards of n+1 = 8 symbols each

	// Timing
	CountdownDuration   = 3 * time.Second
	CountdownTick       = 1 * time.Second
	InterRoundDelay     = 2 * time.Second
	PenaltyDuration     = 3 * time.Second
	DisconnectGrace     = 5 * time.Second
	RejoinWindow        = 10 * time.Second
	RoomIdleTimeout     = 60 * time.Second

	// Connection hardening
	MaxMessageBytes   = 4096
	WriteWait         = 10 * time.Second
	PongWait          = 60 * time.Second
	PingPeriod        = (PongWait * 9) / 10
	SendBufferSize    = 32
	InboundRateLimit  = 20 // messages/sec sustained per connection
	InboundRateBurst  = 10

	// Room code
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O/1/I
	RoomCodeLength   = 4
)

// ServerConfig is the process-wide configuration, read from the environment
// (optionally seeded from a .env file) at startup.
type ServerConfig struct {
	Host           string
	Port           int
	EnableCORS     bool
	JWTSigningKey  []byte
}

// DefaultServerConfig returns default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:       "0.0.0.0",
		Port:       8080,
		EnableCORS: true,
	}
}

// GameDuration is the player-selectable deck-size/length setting.
type GameDuration int

const (
	GameDurationShort  GameDuration = 10
	GameDurationMedium GameDuration = 25
	GameDurationLong   GameDuration = 50
)

// CardDifficulty selects the symbol-pool art style; the server never
// interprets the difference beyond echoing it back in room_state.
type CardDifficulty string

const (
	DifficultyEasy   CardDifficulty = "EASY"
	DifficultyMedium CardDifficulty = "MEDIUM"
	DifficultyHard   CardDifficulty = "HARD"
	DifficultyInsane CardDifficulty = "INSANE"
)

// RoomConfig is the player-configurable portion of a room's settings.
type RoomConfig struct {
	CardDifficulty CardDifficulty `json:"cardDifficulty"`
	GameDuration   GameDuration   `json:"gameDuration"`
	CardSetID      string         `json:"cardSetId"`
	TargetPlayers  int            `json:"targetPlayers,omitempty"`
}

// DefaultRoomConfig returns the configuration a freshly-created room starts with.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		CardDifficulty: DifficultyEasy,
		GameDuration:   GameDurationMedium,
		CardSetID:      "default",
	}
}
