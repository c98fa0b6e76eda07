// Package main implements the symbol-matching room server.
//
// Architecture Overview:
// - Uses WebSocket for real-time bidirectional communication with clients
// - Each room runs its own single-consumer action loop (internal/room)
// - Rooms are looked up/allocated by a short code through internal/directory
// - Arbitration of match attempts falls out of that loop's FIFO ordering
//
// Connection Flow:
// 1. Client connects via WebSocket to /ws/{roomCode}, optionally with
//    ?reconnectId=<playerId>
// 2. The directory resolves or allocates the room for that code
// 3. The connection is bound to the room; a reconnectId, if present, is
//    replayed as a synthetic reconnect message before the client's own
//    frames are processed
// 4. The client sends join/reconnect, then set_config/start_game/
//    match_attempt/play_again/leave/ping as described in the wire protocol
package main

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/symbolmatch/roomserver/config"
	"github.com/symbolmatch/roomserver/internal/auth"
	"github.com/symbolmatch/roomserver/internal/directory"
	"github.com/symbolmatch/roomserver/internal/protocol"
	"github.com/symbolmatch/roomserver/internal/transport"
)

// Server is the main process instance: one HTTP listener, one directory of
// rooms, shared codec/token-issuer/logger handed to every room it creates.
type Server struct {
	cfg       *config.ServerConfig
	directory *directory.Directory
	codec     *protocol.Codec
	upgrader  websocket.Upgrader
	log       *logrus.Logger
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file found, using process environment only")
	}
	cfg := loadConfig()

	server := NewServer(cfg, log)

	entry := log.WithFields(logrus.Fields{
		"host":            cfg.Host,
		"port":            cfg.Port,
		"maxPlayersRoom":  config.MaxPlayersPerRoom,
		"maxRooms":        config.MaxRoomsPerServer,
		"planeOrder":      config.PlaneOrder,
	})
	entry.Info("starting room server")

	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

// loadConfig reads configuration from the environment, falling back to
// defaults. A JWT signing key is generated if one isn't supplied, since
// reconnect tokens only need to survive this process's lifetime.
func loadConfig() *config.ServerConfig {
	cfg := config.DefaultServerConfig()

	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if cors := os.Getenv("ENABLE_CORS"); cors == "false" {
		cfg.EnableCORS = false
	}
	if key := os.Getenv("JWT_SIGNING_KEY"); key != "" {
		cfg.JWTSigningKey = []byte(key)
	} else {
		key := make([]byte, 32)
		_, _ = rand.Read(key)
		cfg.JWTSigningKey = key
	}

	return cfg
}

// NewServer wires the directory, codec, token issuer, and websocket
// upgrader together.
func NewServer(cfg *config.ServerConfig, log *logrus.Logger) *Server {
	codec := protocol.NewCodec()
	tokens := auth.NewTokenIssuer(cfg.JWTSigningKey, config.RejoinWindow+config.RoomIdleTimeout)

	return &Server{
		cfg:       cfg,
		directory: directory.New(codec, tokens, log.WithField("component", "directory")),
		codec:     codec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return cfg.EnableCORS
			},
		},
		log: log,
	}
}

// Start registers HTTP endpoints and blocks serving them.
func (s *Server) Start() error {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			s.directory.Sweep()
		}
	}()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			stats := s.directory.Stats()
			if stats.RoomCount > 0 {
				s.log.WithField("rooms", stats.RoomCount).Info("server stats")
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.WithField("addr", addr).Info("listening")
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.directory.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"rooms":%d}`, stats.RoomCount)
}

// handleWebSocket resolves/allocates the room named by the URL path,
// upgrades the connection, binds it to the room, and replays an optional
// ?reconnectId= as a synthetic reconnect message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/ws/"))
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	rm, err := s.directory.Resolve(code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	connLog := s.log.WithField("room", code)
	conn := transport.NewConnection(ws, rm, connLog)

	go conn.WritePump()

	if reconnectID := r.URL.Query().Get("reconnectId"); reconnectID != "" {
		frame, err := s.codec.Encode(protocol.TypeReconnect, protocol.ReconnectPayload{
			PlayerID: reconnectID,
			Token:    r.URL.Query().Get("reconnectToken"),
		})
		if err == nil {
			rm.HandleInbound(conn, frame)
		}
	}

	go conn.ReadPump()
}
