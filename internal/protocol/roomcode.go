package protocol

import "crypto/rand"

// RoomCodeAlphabet excludes visually ambiguous characters (0/O, 1/I).
const RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RoomCodeLength is the fixed width of a room code.
const RoomCodeLength = 4

// NewRoomCode draws a random RoomCodeLength-character code from
// RoomCodeAlphabet using crypto/rand, matching the teacher's use of
// crypto/rand for room identifiers.
func NewRoomCode() string {
	buf := make([]byte, RoomCodeLength)
	_, _ = rand.Read(buf)
	code := make([]byte, RoomCodeLength)
	for i, b := range buf {
		code[i] = RoomCodeAlphabet[int(b)%len(RoomCodeAlphabet)]
	}
	return string(code)
}
