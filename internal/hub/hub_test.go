package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/alphacentauri/internal/notify"
	"github.com/user/alphacentauri/internal/pty"
)

const testToken = "test-token"

// fakeTerminal serves output pushed into per-handle channels. Closing a
// channel ends that session's stream.
type fakeTerminal struct {
	mu        sync.Mutex
	outputs   map[pty.Handle]chan []byte
	writes    map[pty.Handle][]string
	sizes     map[pty.Handle]pty.Size
	active    int
	maxActive int
}

func newFakeTerminal(handles ...pty.Handle) *fakeTerminal {
	ft := &fakeTerminal{
		outputs: make(map[pty.Handle]chan []byte),
		writes:  make(map[pty.Handle][]string),
		sizes:   make(map[pty.Handle]pty.Size),
	}
	for _, h := range handles {
		ft.outputs[h] = make(chan []byte, 16)
	}
	return ft
}

func (ft *fakeTerminal) WriteToSession(h pty.Handle, data []byte) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if _, ok := ft.outputs[h]; !ok {
		return fmt.Errorf("%w %d", pty.ErrUnavailableHandle, h)
	}
	ft.writes[h] = append(ft.writes[h], string(data))
	return nil
}

func (ft *fakeTerminal) ReadFromSession(h pty.Handle) ([]byte, error) {
	ft.mu.Lock()
	ch, ok := ft.outputs[h]
	if ok {
		ft.active++
		if ft.active > ft.maxActive {
			ft.maxActive = ft.active
		}
	}
	ft.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w %d", pty.ErrUnavailableHandle, h)
	}
	defer func() {
		ft.mu.Lock()
		ft.active--
		ft.mu.Unlock()
	}()
	data, open := <-ch
	if !open {
		return []byte{}, nil
	}
	return data, nil
}

func (ft *fakeTerminal) Resize(h pty.Handle, cols, rows uint16) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if _, ok := ft.outputs[h]; !ok {
		return fmt.Errorf("%w %d", pty.ErrUnavailableHandle, h)
	}
	ft.sizes[h] = pty.Size{Cols: cols, Rows: rows}
	return nil
}

func (ft *fakeTerminal) ListSessions() []pty.SessionInfo {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	infos := make([]pty.SessionInfo, 0, len(ft.outputs))
	for h := range ft.outputs {
		infos = append(infos, pty.SessionInfo{Handle: h, Program: "/bin/sh"})
	}
	return infos
}

func (ft *fakeTerminal) writesTo(h pty.Handle) []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]string(nil), ft.writes[h]...)
}

func startHub(t *testing.T, term Terminal) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(testToken, term, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return h, server
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://%s/ws?token=%s", server.URL[7:], token)
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	data, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("failed to send message: %v", err)
	}
}

// readType reads messages until one of the given type arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %q message: %v", typ, err)
		}
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &base); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if base.Type == typ {
			return data
		}
	}
}

func readOutput(t *testing.T, conn *websocket.Conn) OutputMessage {
	t.Helper()
	var msg OutputMessage
	if err := json.Unmarshal(readType(t, conn, TypeOutput), &msg); err != nil {
		t.Fatalf("failed to unmarshal output: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTokenAuthentication(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"valid token", testToken, http.StatusSwitchingProtocols},
		{"invalid token", "wrong-token", http.StatusUnauthorized},
		{"missing token", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, server := startHub(t, nil)

			url := fmt.Sprintf("ws://%s/ws", server.URL[7:])
			if tt.token != "" {
				url = fmt.Sprintf("%s?token=%s", url, tt.token)
			}
			dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
			conn, resp, err := websocket.Dial(dialCtx, url, nil)
			dialCancel()

			if resp != nil && resp.StatusCode != tt.wantStatus {
				t.Errorf("status code mismatch: got %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusSwitchingProtocols && err != nil {
				t.Fatalf("expected successful connection, got error: %v", err)
			}
			if conn != nil {
				conn.Close(websocket.StatusNormalClosure, "")
			}
		})
	}
}

func TestInitialSessionsMessage(t *testing.T) {
	_, server := startHub(t, newFakeTerminal(11))
	conn := dial(t, server, testToken)

	var msg SessionsMessage
	if err := json.Unmarshal(readType(t, conn, TypeSessions), &msg); err != nil {
		t.Fatal(err)
	}
	if len(msg.List) != 1 || msg.List[0].Handle != 11 {
		t.Errorf("sessions = %+v", msg.List)
	}
}

func TestInitialSessionsMessageWithoutTerminal(t *testing.T) {
	_, server := startHub(t, nil)
	conn := dial(t, server, testToken)

	var msg SessionsMessage
	if err := json.Unmarshal(readType(t, conn, TypeSessions), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.List == nil || len(msg.List) != 0 {
		t.Errorf("expected empty list, got %v", msg.List)
	}
}

func TestNotifyReachesEveryClient(t *testing.T) {
	h, server := startHub(t, nil)
	conns := []*websocket.Conn{dial(t, server, testToken), dial(t, server, testToken)}
	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	h.Notify(notify.Event{Level: notify.LevelError, Message: "boom", Details: "spawn: no such file"})

	for i, conn := range conns {
		var msg NotificationMessage
		if err := json.Unmarshal(readType(t, conn, notify.EventName), &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Payload.Level != notify.LevelError || msg.Payload.Message != "boom" {
			t.Errorf("client %d got %+v", i, msg.Payload)
		}
	}
}

func TestNotificationWireFormat(t *testing.T) {
	data, err := json.Marshal(NotificationMessage{
		Type:    TypeNotification,
		Payload: notify.Event{Level: notify.LevelWarn, Message: "m", Details: "d"},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"notification-event","payload":{"level":2,"message":"m","details":"d"}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestSubscribeRelaysOutputUntilStreamEnds(t *testing.T) {
	term := newFakeTerminal(7)
	h, server := startHub(t, term)
	h.SetBatchEnabled(false)
	conn := dial(t, server, testToken)

	send(t, conn, ClientMessage{Type: TypeSubscribe, Handle: 7})
	waitFor(t, "pump", func() bool { return h.PumpRunning(7) })

	term.outputs[7] <- []byte("hello")
	if msg := readOutput(t, conn); msg.Handle != 7 || msg.Data != "hello" {
		t.Errorf("output = %+v", msg)
	}

	close(term.outputs[7])
	var closed ClosedMessage
	if err := json.Unmarshal(readType(t, conn, TypeClosed), &closed); err != nil {
		t.Fatal(err)
	}
	if closed.Handle != 7 {
		t.Errorf("closed handle = %d", closed.Handle)
	}
	waitFor(t, "pump to stop", func() bool { return !h.PumpRunning(7) })
}

func TestOutputOnlyReachesSubscribers(t *testing.T) {
	term := newFakeTerminal(1, 2)
	h, server := startHub(t, term)
	h.SetBatchEnabled(false)
	a := dial(t, server, testToken)
	b := dial(t, server, testToken)

	send(t, a, ClientMessage{Type: TypeSubscribe, Handle: 1})
	send(t, b, ClientMessage{Type: TypeSubscribe, Handle: 2})
	waitFor(t, "pumps", func() bool { return h.PumpRunning(1) && h.PumpRunning(2) })

	term.outputs[1] <- []byte("for-a")
	term.outputs[2] <- []byte("for-b")

	if msg := readOutput(t, a); msg.Data != "for-a" {
		t.Errorf("client a got %+v", msg)
	}
	if msg := readOutput(t, b); msg.Data != "for-b" {
		t.Errorf("client b got %+v", msg)
	}
}

func TestOneReaderPerSession(t *testing.T) {
	term := newFakeTerminal(3)
	h, server := startHub(t, term)
	h.SetBatchEnabled(false)
	a := dial(t, server, testToken)
	b := dial(t, server, testToken)

	send(t, a, ClientMessage{Type: TypeSubscribe, Handle: 3})
	send(t, b, ClientMessage{Type: TypeSubscribe, Handle: 3})
	waitFor(t, "pump", func() bool { return h.PumpRunning(3) })

	term.outputs[3] <- []byte("shared")
	for _, conn := range []*websocket.Conn{a, b} {
		if msg := readOutput(t, conn); msg.Data != "shared" {
			t.Errorf("got %+v", msg)
		}
	}

	term.mu.Lock()
	maxActive := term.maxActive
	term.mu.Unlock()
	if maxActive != 1 {
		t.Errorf("saw %d concurrent readers, want 1", maxActive)
	}
}

func TestLateSubscriberGetsReplay(t *testing.T) {
	term := newFakeTerminal(5)
	h, server := startHub(t, term)
	h.SetBatchEnabled(false)
	a := dial(t, server, testToken)

	send(t, a, ClientMessage{Type: TypeSubscribe, Handle: 5})
	waitFor(t, "pump", func() bool { return h.PumpRunning(5) })
	term.outputs[5] <- []byte("$ ls\r\n")
	readOutput(t, a)

	b := dial(t, server, testToken)
	send(t, b, ClientMessage{Type: TypeSubscribe, Handle: 5})
	msg := readOutput(t, b)
	if !msg.Replay || msg.Data != "$ ls\r\n" {
		t.Errorf("replay = %+v", msg)
	}
}

func TestInputKeyAndResizeAreRelayed(t *testing.T) {
	term := newFakeTerminal(9)
	_, server := startHub(t, term)
	conn := dial(t, server, testToken)

	send(t, conn, ClientMessage{Type: TypeInput, Handle: 9, Data: "ls"})
	send(t, conn, ClientMessage{Type: TypeKey, Handle: 9, Key: "Enter"})
	send(t, conn, ClientMessage{Type: TypeResize, Handle: 9, Cols: 120, Rows: 40})

	waitFor(t, "resize", func() bool {
		term.mu.Lock()
		defer term.mu.Unlock()
		return term.sizes[9] == pty.Size{Cols: 120, Rows: 40}
	})
	if got := strings.Join(term.writesTo(9), ""); got != "ls\r" {
		t.Errorf("writes = %q", got)
	}
}

func TestInputToUnknownSessionSendsError(t *testing.T) {
	_, server := startHub(t, newFakeTerminal())
	conn := dial(t, server, testToken)

	send(t, conn, ClientMessage{Type: TypeInput, Handle: 404, Data: "x"})

	var msg ErrorMessage
	if err := json.Unmarshal(readType(t, conn, TypeError), &msg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(msg.Message, "unavailable handle") {
		t.Errorf("error = %q", msg.Message)
	}
}

func TestUnknownMessageType(t *testing.T) {
	_, server := startHub(t, nil)
	conn := dial(t, server, testToken)

	send(t, conn, ClientMessage{Type: "launch_missiles"})
	var msg ErrorMessage
	if err := json.Unmarshal(readType(t, conn, TypeError), &msg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(msg.Message, "launch_missiles") {
		t.Errorf("error = %q", msg.Message)
	}
}

func TestBatchedOutputIsCoalesced(t *testing.T) {
	term := newFakeTerminal(4)
	h, server := startHub(t, term)
	conn := dial(t, server, testToken)
	send(t, conn, ClientMessage{Type: TypeSubscribe, Handle: 0})
	waitFor(t, "client", func() bool { return h.ClientCount() == 1 })
	readType(t, conn, TypeSessions)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		h.BroadcastOutput(4, []byte(fmt.Sprintf("msg%d ", i)))
	}

	msg := readOutput(t, conn)
	if msg.Data != "msg0 msg1 msg2 msg3 msg4 " {
		t.Errorf("batched data = %q", msg.Data)
	}
}

func TestSaturatedHubCountsDroppedOutput(t *testing.T) {
	h := New(testToken, nil, nil)
	h.SetBatchEnabled(false)
	for i := 0; i < cap(h.broadcast); i++ {
		h.Notify(notify.Event{Level: notify.LevelInfo, Message: "fill"})
	}

	h.BroadcastOutput(6, []byte("abcd"))
	h.BroadcastOutput(6, []byte("ef"))
	if got := h.DroppedOutput(6); got != 6 {
		t.Fatalf("dropped = %d, want 6", got)
	}
	if got := h.DroppedOutput(7); got != 0 {
		t.Fatalf("unrelated handle dropped = %d", got)
	}

	for len(h.broadcast) > 0 {
		<-h.broadcast
	}
	h.BroadcastOutput(6, []byte("g"))
	b := <-h.broadcast
	var msg OutputMessage
	if err := json.Unmarshal(b.data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Data != "g" || msg.Dropped != 6 || b.output != 1 {
		t.Errorf("message = %+v output=%d", msg, b.output)
	}
	if got := h.DroppedOutput(6); got != 0 {
		t.Errorf("dropped after delivery = %d, want 0", got)
	}

	// Replay still holds everything, dropped or not.
	if got := string(h.replayBuffer(6).Bytes()); got != "abcdefg" {
		t.Errorf("replay = %q", got)
	}
}

func TestRateLimiterDirect(t *testing.T) {
	var received []OutputMessage
	var mu sync.Mutex

	limiter := NewRateLimiter(50*time.Millisecond, func(handle pty.Handle, msg OutputMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	for i := 0; i < 3; i++ {
		limiter.Add(1, []byte(fmt.Sprintf("text%d ", i)))
	}
	limiter.Add(2, []byte("other"))

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 batched messages, got %d", len(received))
	}
	for _, msg := range received {
		switch msg.Handle {
		case 1:
			if msg.Data != "text0 text1 text2 " {
				t.Errorf("handle 1 data = %q", msg.Data)
			}
		case 2:
			if msg.Data != "other" {
				t.Errorf("handle 2 data = %q", msg.Data)
			}
		default:
			t.Errorf("unexpected handle %d", msg.Handle)
		}
	}
}

func TestRingBufKeepsNewestBytes(t *testing.T) {
	rb := newRingBuf(8)
	rb.Write([]byte("abc"))
	if got := string(rb.Bytes()); got != "abc" {
		t.Fatalf("got %q", got)
	}
	rb.Write([]byte("defgh"))
	if got := string(rb.Bytes()); got != "abcdefgh" {
		t.Fatalf("got %q", got)
	}
	rb.Write([]byte("ij"))
	if got := string(rb.Bytes()); got != "cdefghij" {
		t.Fatalf("got %q", got)
	}
	rb.Write([]byte("0123456789"))
	if got := string(rb.Bytes()); got != "23456789" {
		t.Fatalf("got %q", got)
	}
}

func TestMapNamedKey(t *testing.T) {
	tests := map[string]string{
		"Enter":      "\r",
		"ctrl+c":     "\x03",
		"ArrowUp":    "\x1b[A",
		" esc ":      "\x1b",
		"plain text": "plain text",
	}
	for in, want := range tests {
		if got := mapNamedKey(in); got != want {
			t.Errorf("mapNamedKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHighClientCountShutdown(t *testing.T) {
	h := New(testToken, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer server.Close()

	numClients := 20
	for i := 0; i < numClients; i++ {
		dial(t, server, testToken)
	}
	waitFor(t, "all clients", func() bool { return h.ClientCount() == numClients })

	cancel()
	waitFor(t, "shutdown", func() bool { return h.ClientCount() == 0 })
}

func TestClientDisconnectUnregisters(t *testing.T) {
	h, server := startHub(t, nil)
	conn := dial(t, server, testToken)
	waitFor(t, "connect", func() bool { return h.ClientCount() == 1 })

	conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, "disconnect", func() bool { return h.ClientCount() == 0 })
}
