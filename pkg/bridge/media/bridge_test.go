package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/speech"
)

type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case data, ok := <-c.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return 1, data, nil
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) push(raw string) { c.in <- []byte(raw) }

func (c *fakeConn) pushStart(streamSID string) {
	c.push(fmt.Sprintf(`{"event":"start","streamSid":%q,"start":{"streamSid":%q,"callSid":"CAstream"}}`, streamSID, streamSID))
}

func (c *fakeConn) pushMedia(audio []byte) {
	c.push(fmt.Sprintf(`{"event":"media","streamSid":"MZ1","media":{"payload":%q}}`,
		base64.StdEncoding.EncodeToString(audio)))
}

func (c *fakeConn) pushStop() { c.push(`{"event":"stop","streamSid":"MZ1"}`) }

type fakeLive struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (l *fakeLive) Send(audio []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, append([]byte(nil), audio...))
	return nil
}

func (l *fakeLive) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLive) sentChunks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}

func (l *fakeLive) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type fakeTranscriber struct {
	mu      sync.Mutex
	live    *fakeLive
	onFinal func(string)
	opens   int
	openErr error
}

func (f *fakeTranscriber) OpenLive(ctx context.Context, onFinal func(string)) (speech.LiveTranscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	f.live = &fakeLive{}
	f.onFinal = onFinal
	return f.live, nil
}

func (f *fakeTranscriber) session() *fakeLive {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func (f *fakeTranscriber) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTranscriber) fire(text string) {
	f.mu.Lock()
	cb := f.onFinal
	f.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}

type recordingHandler struct {
	mu    sync.Mutex
	texts []string
}

func (h *recordingHandler) HandleTranscript(ctx context.Context, sessionID, text string, out Outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, text)
}

func (h *recordingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.texts...)
}

func testBridge(t *testing.T) (*Bridge, *fakeConn, *fakeTranscriber, *recordingHandler, *call.Manager, string) {
	t.Helper()
	manager := call.NewManager(slog.New(slog.DiscardHandler))
	sessionID := manager.NewSession()
	conn := newFakeConn()
	stt := &fakeTranscriber{}
	handler := &recordingHandler{}
	b := &Bridge{
		SessionID:         sessionID,
		Conn:              conn,
		Manager:           manager,
		Transcriber:       stt,
		Transcripts:       handler,
		Logger:            slog.New(slog.DiscardHandler),
		ReadyPollInterval: 5 * time.Millisecond,
		ReadyTimeout:      time.Second,
	}
	return b, conn, stt, handler, manager, sessionID
}

func runBridge(b *Bridge) chan error {
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()
	return done
}

func waitErr(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not finish")
		return nil
	}
}

func TestBridgeUnknownSessionCloses(t *testing.T) {
	b, conn, _, _, manager, sessionID := testBridge(t)
	manager.Delete(sessionID)

	err := waitErr(t, runBridge(b))
	if !errors.Is(err, call.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !conn.isClosed() {
		t.Fatal("connection left open")
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBridgeStreamsOnceReady(t *testing.T) {
	b, conn, stt, handler, manager, sessionID := testBridge(t)
	if err := manager.MarkAgentAnswered(sessionID); err != nil {
		t.Fatalf("mark ready: %v", err)
	}

	done := runBridge(b)
	conn.push(`{"event":"connected","protocol":"Call","version":"1.0.0"}`)
	conn.pushStart("MZ1")
	conn.pushMedia([]byte{0xFF, 0x7F})

	// The stream sid lands on the session once the start frame arrives.
	waitFor(t, func() bool {
		sid, err := manager.StreamSID(sessionID)
		return err == nil && sid == "MZ1"
	})
	waitFor(t, func() bool {
		live := stt.session()
		return live != nil && live.sentChunks() == 1
	})

	stt.fire("how can I help you")
	waitFor(t, func() bool { return len(handler.seen()) == 1 })
	if got := handler.seen()[0]; got != "how can I help you" {
		t.Fatalf("transcript = %q", got)
	}

	conn.pushStop()
	if err := waitErr(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !stt.session().isClosed() {
		t.Fatal("live transcription left open")
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBridgeWaitsForReadiness(t *testing.T) {
	b, conn, stt, _, manager, sessionID := testBridge(t)

	done := runBridge(b)
	conn.pushStart("MZ1")
	// Audio before readiness is consumed and discarded.
	conn.pushMedia([]byte{0x00})

	time.Sleep(30 * time.Millisecond)
	if b.State() != StateWaitingForReady {
		t.Fatalf("state = %v, want waiting_for_ready", b.State())
	}
	if stt.openCount() != 0 {
		t.Fatal("transcription opened before the agent answered")
	}

	if err := manager.MarkAgentAnswered(sessionID); err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	waitFor(t, func() bool { return b.State() == StateStreaming })

	conn.pushStop()
	if err := waitErr(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestBridgeReadyTimeout(t *testing.T) {
	b, conn, _, _, _, _ := testBridge(t)
	b.ReadyTimeout = 40 * time.Millisecond

	done := runBridge(b)
	conn.pushStart("MZ1")

	err := waitErr(t, done)
	if !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("err = %v, want ErrReadyTimeout", err)
	}
	if !conn.isClosed() {
		t.Fatal("connection left open after timeout")
	}
}

func TestBridgeStopBeforeStart(t *testing.T) {
	b, conn, stt, _, _, _ := testBridge(t)

	done := runBridge(b)
	conn.pushStop()

	if err := waitErr(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stt.openCount() != 0 {
		t.Fatal("transcription opened for a stream that never started")
	}
}

func TestBridgeStopWhileWaitingForReady(t *testing.T) {
	b, conn, stt, _, _, _ := testBridge(t)

	done := runBridge(b)
	conn.pushStart("MZ1")
	waitFor(t, func() bool { return b.State() == StateWaitingForReady })
	conn.pushStop()

	if err := waitErr(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// An ended stream must never be treated as readiness: no transcription
	// is opened and the bridge goes straight to teardown.
	if stt.openCount() != 0 {
		t.Fatal("transcription opened for a stopped stream")
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
	if !conn.isClosed() {
		t.Fatal("connection left open")
	}
}

func TestBridgePeerDropWhileWaitingForReady(t *testing.T) {
	b, conn, stt, _, _, _ := testBridge(t)

	done := runBridge(b)
	conn.pushStart("MZ1")
	waitFor(t, func() bool { return b.State() == StateWaitingForReady })
	conn.Close()

	if err := waitErr(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stt.openCount() != 0 {
		t.Fatal("transcription opened after the peer dropped")
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestBridgeContextCancel(t *testing.T) {
	b, conn, _, _, _, _ := testBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	conn.pushStart("MZ1")
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := waitErr(t, done)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !conn.isClosed() {
		t.Fatal("connection left open after cancel")
	}
}

func TestSendMediaDropsWithoutStreamSID(t *testing.T) {
	b, conn, _, _, _, _ := testBridge(t)

	if err := b.SendMedia([]byte{0x01}); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	if len(conn.writes()) != 0 {
		t.Fatal("audio written before the stream identified itself")
	}

	b.setStreamSID("MZ9")
	if err := b.SendMedia([]byte{0x01}); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}
	writes := conn.writes()
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(writes))
	}
	var frame struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
	}
	if err := json.Unmarshal(writes[0], &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame.Event != "media" || frame.StreamSID != "MZ9" {
		t.Fatalf("frame = %+v", frame)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never held")
}
