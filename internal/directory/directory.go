// Package directory implements the Room Directory of spec §4.2 and §9: a
// single-writer map from room code to room, generalized from the teacher's
// Matchmaker (internal/matchmaker/matchmaker.go in the source repo).
package directory

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/symbolmatch/roomserver/config"
	"github.com/symbolmatch/roomserver/internal/auth"
	"github.com/symbolmatch/roomserver/internal/protocol"
	"github.com/symbolmatch/roomserver/internal/room"
)

// Directory owns the process-wide code -> room mapping. New-room creation
// is serialized by mu, matching spec §5's "directory-wide lock or a
// single-writer task"; rooms themselves are mutated only by their own
// goroutine once created.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*room.Room

	codec  *protocol.Codec
	tokens *auth.TokenIssuer
	log    *logrus.Entry
}

// New constructs an empty Directory.
func New(codec *protocol.Codec, tokens *auth.TokenIssuer, log *logrus.Entry) *Directory {
	return &Directory{
		rooms:  make(map[string]*room.Room),
		codec:  codec,
		tokens: tokens,
		log:    log,
	}
}

// Resolve implements spec §4.2's resolveRoom(code): returns the existing
// room, or allocates and starts a fresh one in WAITING if capacity allows.
func (d *Directory) Resolve(code string) (*room.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.rooms[code]; ok {
		return r, nil
	}
	if len(d.rooms) >= config.MaxRoomsPerServer {
		return nil, errRoomCapacity
	}

	r := room.NewRoom(code, d.codec, d.tokens, time.Now().UnixNano(), d.log, d.forget)
	d.rooms[code] = r
	go r.Run()
	return r, nil
}

// NewCode allocates a fresh, currently-unused room code.
func (d *Directory) NewCode() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		code := protocol.NewRoomCode()
		if _, taken := d.rooms[code]; !taken {
			return code
		}
	}
}

// forget is the onEmpty callback a room invokes exactly once, from inside
// its own goroutine, at teardown.
func (d *Directory) forget(code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rooms, code)
}

// Sweep is a belt-and-suspenders pass over rooms that have already torn
// themselves down but somehow never reached forget (e.g. a panic in the
// onEmpty callback path). Each room still owns its own idle timer as the
// primary expiry mechanism; this just prevents a leaked map entry.
func (d *Directory) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for code, r := range d.rooms {
		select {
		case <-r.Done():
			delete(d.rooms, code)
		default:
		}
	}
}

// Stats is a snapshot for the /stats endpoint.
type Stats struct {
	RoomCount int `json:"roomCount"`
}

func (d *Directory) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{RoomCount: len(d.rooms)}
}

type directoryError string

func (e directoryError) Error() string { return string(e) }

const errRoomCapacity directoryError = "directory: server at room capacity"
