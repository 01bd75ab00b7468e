// Package twilio covers the two surfaces this service speaks to the phone
// network over: the JSON frames of a bidirectional media stream websocket,
// and the REST voice API used to place and tear down call legs.
package twilio

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Media stream frame event tags, as sent on the websocket.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventDTMF      = "dtmf"
)

// DecodeError is returned when a media stream frame cannot be interpreted.
// It carries the event tag when one was present.
type DecodeError struct {
	Event   string
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Event != "" {
		return fmt.Sprintf("twilio: %s frame: %s", e.Event, e.Message)
	}
	return "twilio: " + e.Message
}

func decodeErr(event, msg string) error {
	return &DecodeError{Event: event, Message: msg}
}

// Frame is one decoded inbound media stream message.
type Frame interface {
	frameEvent() string
}

// ConnectedFrame is the first message after the websocket opens, before the
// stream is described.
type ConnectedFrame struct {
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

// StartFrame describes the stream: the stream sid that outbound frames must
// be addressed to, the call leg carrying the stream, and the audio format.
type StartFrame struct {
	StreamSID string      `json:"streamSid"`
	Start     StartDetail `json:"start"`
}

type StartDetail struct {
	StreamSID   string            `json:"streamSid"`
	AccountSID  string            `json:"accountSid"`
	CallSID     string            `json:"callSid"`
	Tracks      []string          `json:"tracks"`
	MediaFormat MediaFormat       `json:"mediaFormat"`
	Custom      map[string]string `json:"customParameters,omitempty"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaFrame carries one chunk of caller audio. Payload is the decoded
// audio bytes, mu-law at 8 kHz.
type MediaFrame struct {
	StreamSID string
	Track     string
	Timestamp string
	Payload   []byte
}

// StopFrame signals the end of the stream; no media follows it.
type StopFrame struct {
	StreamSID string `json:"streamSid"`
}

// MarkFrame acknowledges a previously sent mark once the audio queued
// before it has been played out.
type MarkFrame struct {
	StreamSID string `json:"streamSid"`
	Name      string
}

// DTMFFrame reports a keypad press on the call carrying the stream.
type DTMFFrame struct {
	StreamSID string
	Digit     string
}

func (ConnectedFrame) frameEvent() string { return EventConnected }
func (StartFrame) frameEvent() string     { return EventStart }
func (MediaFrame) frameEvent() string     { return EventMedia }
func (StopFrame) frameEvent() string      { return EventStop }
func (MarkFrame) frameEvent() string      { return EventMark }
func (DTMFFrame) frameEvent() string      { return EventDTMF }

// DecodeFrame interprets one inbound websocket text message by its event
// tag. Unknown events are a DecodeError; callers typically log and skip.
func DecodeFrame(data []byte) (Frame, error) {
	var tag struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, decodeErr("", "not a JSON frame: "+err.Error())
	}

	switch tag.Event {
	case EventConnected:
		var f ConnectedFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, decodeErr(tag.Event, err.Error())
		}
		return f, nil

	case EventStart:
		var f StartFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, decodeErr(tag.Event, err.Error())
		}
		if f.StreamSID == "" {
			f.StreamSID = f.Start.StreamSID
		}
		if f.StreamSID == "" {
			return nil, decodeErr(tag.Event, "missing streamSid")
		}
		return f, nil

	case EventMedia:
		var raw struct {
			StreamSID string `json:"streamSid"`
			Media     struct {
				Track     string `json:"track"`
				Timestamp string `json:"timestamp"`
				Payload   string `json:"payload"`
			} `json:"media"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, decodeErr(tag.Event, err.Error())
		}
		payload, err := base64.StdEncoding.DecodeString(raw.Media.Payload)
		if err != nil {
			return nil, decodeErr(tag.Event, "bad payload base64: "+err.Error())
		}
		return MediaFrame{
			StreamSID: raw.StreamSID,
			Track:     raw.Media.Track,
			Timestamp: raw.Media.Timestamp,
			Payload:   payload,
		}, nil

	case EventStop:
		var f StopFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, decodeErr(tag.Event, err.Error())
		}
		return f, nil

	case EventMark:
		var raw struct {
			StreamSID string `json:"streamSid"`
			Mark      struct {
				Name string `json:"name"`
			} `json:"mark"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, decodeErr(tag.Event, err.Error())
		}
		return MarkFrame{StreamSID: raw.StreamSID, Name: raw.Mark.Name}, nil

	case EventDTMF:
		var raw struct {
			StreamSID string `json:"streamSid"`
			DTMF      struct {
				Digit string `json:"digit"`
			} `json:"dtmf"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, decodeErr(tag.Event, err.Error())
		}
		return DTMFFrame{StreamSID: raw.StreamSID, Digit: raw.DTMF.Digit}, nil

	case "":
		return nil, decodeErr("", "missing event tag")
	default:
		return nil, decodeErr(tag.Event, "unknown event")
	}
}

// EncodeMedia builds an outbound media frame addressed to the stream,
// carrying mu-law audio as base64.
func EncodeMedia(streamSID string, audio []byte) ([]byte, error) {
	frame := struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Media     struct {
			Payload string `json:"payload"`
		} `json:"media"`
	}{Event: EventMedia, StreamSID: streamSID}
	frame.Media.Payload = base64.StdEncoding.EncodeToString(audio)
	return json.Marshal(frame)
}

// EncodeMark builds an outbound mark frame. The far end echoes the mark
// back once all audio queued before it has played. The optional payload
// rides along for consumers on our side of the stream.
func EncodeMark(streamSID, name, payload string) ([]byte, error) {
	frame := struct {
		Event     string `json:"event"`
		StreamSID string `json:"streamSid"`
		Mark      struct {
			Name    string `json:"name"`
			Payload string `json:"payload,omitempty"`
		} `json:"mark"`
	}{Event: EventMark, StreamSID: streamSID}
	frame.Mark.Name = name
	frame.Mark.Payload = payload
	return json.Marshal(frame)
}
