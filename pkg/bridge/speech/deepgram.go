package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const (
	deepgramAPIURL  = "https://api.deepgram.com"
	deepgramLiveURL = "wss://api.deepgram.com"

	sttModel = "nova-2"
	ttsModel = "aura-asteria-en"
)

// Deepgram implements Transcriber and Synthesizer against Deepgram's live
// listen websocket and speak REST endpoint.
type Deepgram struct {
	apiKey     string
	apiURL     string
	liveURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

func NewDeepgram(apiKey string) *Deepgram {
	return &Deepgram{
		apiKey:     apiKey,
		apiURL:     deepgramAPIURL,
		liveURL:    deepgramLiveURL,
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
	}
}

// NewDeepgramWithURLs overrides the API hosts, for tests.
func NewDeepgramWithURLs(apiKey, apiURL, liveURL string) *Deepgram {
	d := NewDeepgram(apiKey)
	d.apiURL = strings.TrimRight(apiURL, "/")
	d.liveURL = strings.TrimRight(liveURL, "/")
	return d
}

// liveResult is the subset of the listen response we act on.
type liveResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type liveSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

// OpenLive dials the listen websocket configured for telephone mu-law and
// starts the reader that delivers finalized transcripts to onFinal.
func (d *Deepgram) OpenLive(ctx context.Context, onFinal func(text string)) (LiveTranscription, error) {
	q := url.Values{}
	q.Set("model", sttModel)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", "8000")
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")

	header := http.Header{}
	header.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := d.dialer.DialContext(ctx, d.liveURL+"/v1/listen?"+q.Encode(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram: dial listen: %w (http %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("deepgram: dial listen: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	ls := &liveSession{conn: conn, done: make(chan struct{})}
	go ls.readLoop(onFinal)
	return ls, nil
}

// readLoop owns all reads on the connection. It exits when the server
// closes the channel or the connection drops.
func (ls *liveSession) readLoop(onFinal func(text string)) {
	defer close(ls.done)
	for {
		_, data, err := ls.conn.ReadMessage()
		if err != nil {
			return
		}
		var result liveResult
		if err := json.Unmarshal(data, &result); err != nil {
			continue
		}
		if result.Type != "Results" || !result.IsFinal {
			continue
		}
		if len(result.Channel.Alternatives) == 0 {
			continue
		}
		text := strings.TrimSpace(result.Channel.Alternatives[0].Transcript)
		if text == "" {
			continue
		}
		onFinal(text)
	}
}

func (ls *liveSession) Send(audio []byte) error {
	ls.writeMu.Lock()
	defer ls.writeMu.Unlock()
	if ls.closed {
		return fmt.Errorf("deepgram: send on closed live session")
	}
	return ls.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (ls *liveSession) Close() error {
	ls.writeMu.Lock()
	if ls.closed {
		ls.writeMu.Unlock()
		return nil
	}
	ls.closed = true
	// Best effort; the server finalizes pending audio on CloseStream.
	ls.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	ls.writeMu.Unlock()

	err := ls.conn.Close()
	<-ls.done
	return err
}

// Speak renders text through the speak endpoint as headerless 16-bit PCM at
// 8 kHz, then compresses it to mu-law for the phone network.
func (d *Deepgram) Speak(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("model", ttsModel)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "8000")
	q.Set("container", "none")

	payload, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("deepgram: encode speak request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.apiURL+"/v1/speak?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("deepgram: create speak request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: speak: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("deepgram: speak: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read speak response: %w", err)
	}
	return PCMToMulaw(pcm), nil
}
