// Package speech provides streaming transcription and synthesis for
// telephone audio, plus the G.711 transcode between the provider's PCM and
// the phone network's mu-law.
package speech

import "context"

// LiveTranscription is one open streaming recognition channel. Send and
// Close may be called from a different goroutine than the one that opened
// the channel, but not concurrently with each other.
type LiveTranscription interface {
	// Send forwards one chunk of mu-law telephone audio.
	Send(audio []byte) error
	// Close flushes pending audio, waits for trailing results and shuts
	// the channel down. Safe to call more than once.
	Close() error
}

// Transcriber opens live recognition channels. Finalized utterances are
// delivered on onFinal from the channel's reader goroutine, one call per
// utterance, never concurrently.
type Transcriber interface {
	OpenLive(ctx context.Context, onFinal func(text string)) (LiveTranscription, error)
}

// Synthesizer renders text to mu-law telephone audio, ready to write onto
// a media stream.
type Synthesizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}
