package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestSpeakReturnsMulaw(t *testing.T) {
	pcm := []byte{0x00, 0x00, 0xE8, 0x03} // 0, 1000
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token key123" {
			t.Errorf("auth header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("encoding") != "linear16" || q.Get("sample_rate") != "8000" || q.Get("container") != "none" {
			t.Errorf("query = %v", q)
		}
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text != "hello there" {
			t.Errorf("body = %+v, err = %v", body, err)
		}
		_, _ = w.Write(pcm)
	}))
	defer ts.Close()

	d := NewDeepgramWithURLs("key123", ts.URL, "ws://unused.invalid")
	audio, err := d.Speak(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	want := PCMToMulaw(pcm)
	if string(audio) != string(want) {
		t.Fatalf("audio = %v, want %v", audio, want)
	}
}

func TestSpeakNon200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"err_msg":"bad key"}`))
	}))
	defer ts.Close()

	d := NewDeepgramWithURLs("bad", ts.URL, "ws://unused.invalid")
	if _, err := d.Speak(context.Background(), "hi"); err == nil {
		t.Fatal("expected an error on 401")
	}
}

func TestOpenLiveDeliversFinalTranscripts(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token key123" {
			t.Errorf("auth header = %q", got)
		}
		q := r.URL.Query()
		if q.Get("encoding") != "mulaw" || q.Get("sample_rate") != "8000" {
			t.Errorf("query = %v", q)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// First message is caller audio; respond with an interim and then
		// a final transcript.
		_, audio, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- audio

		interim := `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`
		final := `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world "}]}}`
		empty := `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`
		for _, msg := range []string{interim, empty, final} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}

		// Hold the read side open until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	liveURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	d := NewDeepgramWithURLs("key123", "http://unused.invalid", liveURL)

	finals := make(chan string, 4)
	live, err := d.OpenLive(context.Background(), func(text string) { finals <- text })
	if err != nil {
		t.Fatalf("OpenLive: %v", err)
	}
	defer live.Close()

	if err := live.Send([]byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case audio := <-received:
		if len(audio) != 2 {
			t.Fatalf("server received %v", audio)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received audio")
	}

	select {
	case text := <-finals:
		if text != "hello world" {
			t.Fatalf("final = %q, want trimmed %q", text, "hello world")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no final transcript delivered")
	}

	// Interim and empty results never reach the callback.
	select {
	case text := <-finals:
		t.Fatalf("unexpected extra transcript %q", text)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLiveSessionCloseIsIdempotent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	liveURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	d := NewDeepgramWithURLs("key123", "http://unused.invalid", liveURL)

	live, err := d.OpenLive(context.Background(), func(string) {})
	if err != nil {
		t.Fatalf("OpenLive: %v", err)
	}
	if err := live.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := live.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := live.Send([]byte{0x00}); err == nil {
		t.Fatal("expected an error sending after close")
	}
}
