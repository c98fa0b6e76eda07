package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// recordingHandle captures everything a Connection reports to its room,
// standing in for the room package (which transport must never import).
type recordingHandle struct {
	mu       sync.Mutex
	inbound  [][]byte
	disconnected bool
}

func (h *recordingHandle) HandleInbound(_ *Connection, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inbound = append(h.inbound, append([]byte(nil), data...))
}

func (h *recordingHandle) HandleDisconnect(_ *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = true
}

func (h *recordingHandle) messages() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.inbound...)
}

func (h *recordingHandle) wasDisconnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnected
}

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("test", true)
}

func newTestPair(t *testing.T) (*Connection, *recordingHandle, *websocket.Conn, func()) {
	t.Helper()
	handle := &recordingHandle{}
	connCh := make(chan *Connection, 1)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConnection(ws, handle, testLogger())
		connCh <- conn
		go conn.WritePump()
		conn.ReadPump()
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	serverConn := <-connCh
	cleanup := func() {
		client.Close()
		srv.Close()
	}
	return serverConn, handle, client, cleanup
}

func TestSendDeliversFrameToClient(t *testing.T) {
	serverConn, _, client, cleanup := newTestPair(t)
	defer cleanup()

	if err := serverConn.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client ReadMessage: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("client received %q, want %q", data, "hello")
	}
}

func TestReadPumpForwardsInboundFramesToRoom(t *testing.T) {
	_, handle, client, cleanup := newTestPair(t)
	defer cleanup()

	if err := client.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","payload":{}}`)); err != nil {
		t.Fatalf("client WriteMessage: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(handle.messages()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs := handle.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d inbound messages, want 1", len(msgs))
	}
	if string(msgs[0]) != `{"type":"ping","payload":{}}` {
		t.Fatalf("inbound frame = %q", msgs[0])
	}
}

func TestCloseNotifiesRoomOfDisconnect(t *testing.T) {
	serverConn, handle, _, cleanup := newTestPair(t)
	defer cleanup()

	serverConn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if handle.wasDisconnected() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("room was never notified of the disconnect")
}

func TestSendAfterCloseDoesNotBlockOrPanic(t *testing.T) {
	serverConn, _, _, cleanup := newTestPair(t)
	defer cleanup()

	serverConn.Close()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		serverConn.Send([]byte("after close"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked after Close")
	}
}
