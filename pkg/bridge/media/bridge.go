// Package media runs the websocket bridge between a phone call's audio
// stream and the transcription pipeline, gating the flow on the human
// agent's readiness.
package media

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
	"github.com/switchboard-ai/switchboard/pkg/bridge/speech"
	"github.com/switchboard-ai/switchboard/pkg/bridge/twilio"
)

// State is the bridge lifecycle position. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateWaitingForSession
	StateWaitingForReady
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateWaitingForSession:
		return "waiting_for_session"
	case StateWaitingForReady:
		return "waiting_for_ready"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	DefaultReadyPollInterval = time.Second
	DefaultReadyTimeout      = 30 * time.Second
)

// ErrReadyTimeout reports that the human agent never answered within the
// readiness window.
var ErrReadyTimeout = errors.New("media: timed out waiting for agent readiness")

// errStreamStopped marks a stop frame arriving before streaming began, so
// Run tears down instead of treating the wait as satisfied.
var errStreamStopped = errors.New("media: stream stopped")

// Conn is the subset of *websocket.Conn the bridge needs. Reads happen on
// one goroutine; writes are serialized by the bridge.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Outbound is the write half of a bridge, handed to whoever produces
// response audio for the call.
type Outbound interface {
	// SendMedia writes mu-law audio onto the stream. Audio produced
	// before the stream has identified itself is dropped.
	SendMedia(audio []byte) error
	// SendMark queues a named mark, with an optional payload, behind any
	// audio already written.
	SendMark(name, payload string) error
}

// TranscriptHandler receives each finalized caller utterance. Calls arrive
// sequentially per bridge.
type TranscriptHandler interface {
	HandleTranscript(ctx context.Context, sessionID, text string, out Outbound)
}

// Bridge drives one media stream websocket: it verifies the session, waits
// for the stream description and for agency readiness, then pumps caller
// audio into live transcription until the stream stops.
type Bridge struct {
	SessionID   string
	Conn        Conn
	Manager     *call.Manager
	Transcriber speech.Transcriber
	Transcripts TranscriptHandler
	Logger      *slog.Logger

	ReadyPollInterval time.Duration
	ReadyTimeout      time.Duration

	state atomic.Int32

	writeMu   sync.Mutex
	streamSID string
	closed    bool
}

// State reports the bridge's current lifecycle position.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
}

// Run executes the bridge to completion. It always leaves the connection
// closed and the state at StateClosed. The returned error describes why
// the bridge ended early; a stream that ran and stopped normally returns
// nil.
func (b *Bridge) Run(ctx context.Context) error {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", b.SessionID)

	pollInterval := b.ReadyPollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultReadyPollInterval
	}
	readyTimeout := b.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}

	b.setState(StateConnecting)
	defer b.shutdown()

	// Closing the connection is the only way to unblock the reader, so a
	// context cancellation funnels through it.
	stopWatch := context.AfterFunc(ctx, func() { b.closeConn() })
	defer stopWatch()

	b.setState(StateWaitingForSession)
	if _, err := b.Manager.Snapshot(b.SessionID); err != nil {
		logger.Warn("media stream for unknown session", "error", err)
		return err
	}

	frames := b.readFrames(logger)
	// Unblock and drain the reader on any exit path, or it leaks parked
	// on a channel send.
	defer func() {
		b.closeConn()
		for range frames {
		}
	}()

	// The stream must describe itself before anything else can happen.
	started := false
	for !started {
		frame, ok := <-frames
		if !ok {
			return ctx.Err()
		}
		switch f := frame.(type) {
		case twilio.ConnectedFrame:
			// Handshake preamble.
		case twilio.StartFrame:
			b.setStreamSID(f.StreamSID)
			if err := b.Manager.SetStreamSID(b.SessionID, f.StreamSID); err != nil {
				logger.Warn("session vanished before stream start", "error", err)
				return err
			}
			logger.Info("media stream started",
				"stream_sid", f.StreamSID,
				"call_sid", f.Start.CallSID)
			started = true
		case twilio.StopFrame:
			logger.Info("media stream stopped before start frame")
			return nil
		default:
			// Media before start carries no stream identity; drop it.
		}
	}

	b.setState(StateWaitingForReady)
	if err := b.waitReady(ctx, frames, pollInterval, readyTimeout); err != nil {
		if errors.Is(err, errStreamStopped) {
			logger.Info("media stream stopped before agent ready")
			return nil
		}
		if errors.Is(err, ErrReadyTimeout) {
			logger.Warn("agent readiness window expired")
		}
		return err
	}
	logger.Info("agent ready, streaming")

	live, err := b.Transcriber.OpenLive(ctx, func(text string) {
		b.Transcripts.HandleTranscript(ctx, b.SessionID, text, b)
	})
	if err != nil {
		logger.Error("open live transcription", "error", err)
		return err
	}
	defer live.Close()

	b.setState(StateStreaming)
	for frame := range frames {
		switch f := frame.(type) {
		case twilio.MediaFrame:
			if err := live.Send(f.Payload); err != nil {
				logger.Warn("forward audio to transcription", "error", err)
				return err
			}
		case twilio.StopFrame:
			logger.Info("media stream stopped")
			return nil
		case twilio.MarkFrame:
			logger.Debug("mark acknowledged", "name", f.Name)
		case twilio.DTMFFrame:
			logger.Debug("inbound dtmf", "digit", f.Digit)
		}
	}
	return ctx.Err()
}

// waitReady consumes frames to keep the connection draining while polling
// the session's readiness flag. A stop frame yields errStreamStopped and a
// closed stream the context error; audio arriving before readiness is
// discarded.
func (b *Bridge) waitReady(ctx context.Context, frames <-chan twilio.Frame, interval, timeout time.Duration) error {
	if b.Manager.IsReady(b.SessionID) {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ticker.C:
			if b.Manager.IsReady(b.SessionID) {
				return nil
			}
		case <-deadline.C:
			return ErrReadyTimeout
		case frame, ok := <-frames:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return errStreamStopped
			}
			if _, stopped := frame.(twilio.StopFrame); stopped {
				return errStreamStopped
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readFrames owns all reads on the connection, decoding each message and
// delivering it on the returned channel. The channel closes when the
// connection does.
func (b *Bridge) readFrames(logger *slog.Logger) <-chan twilio.Frame {
	frames := make(chan twilio.Frame)
	go func() {
		defer close(frames)
		for {
			_, data, err := b.Conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := twilio.DecodeFrame(data)
			if err != nil {
				logger.Warn("undecodable stream frame", "error", err)
				continue
			}
			frames <- frame
		}
	}()
	return frames
}

func (b *Bridge) setStreamSID(sid string) {
	b.writeMu.Lock()
	b.streamSID = sid
	b.writeMu.Unlock()
}

// SendMedia writes mu-law audio onto the stream. Audio produced before the
// start frame has no stream to address and is dropped.
func (b *Bridge) SendMedia(audio []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.closed || b.streamSID == "" {
		return nil
	}
	frame, err := twilio.EncodeMedia(b.streamSID, audio)
	if err != nil {
		return err
	}
	return b.Conn.WriteMessage(websocket.TextMessage, frame)
}

// SendMark queues a named mark behind any audio already written.
func (b *Bridge) SendMark(name, payload string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if b.closed || b.streamSID == "" {
		return nil
	}
	frame, err := twilio.EncodeMark(b.streamSID, name, payload)
	if err != nil {
		return err
	}
	return b.Conn.WriteMessage(websocket.TextMessage, frame)
}

func (b *Bridge) closeConn() {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if !b.closed {
		b.closed = true
		b.Conn.Close()
	}
}

// shutdown runs unconditionally at the end of Run: whatever path ended the
// bridge, the connection is closed and the terminal state recorded.
func (b *Bridge) shutdown() {
	b.setState(StateClosing)
	b.closeConn()
	b.setState(StateClosed)
}
