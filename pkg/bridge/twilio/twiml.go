package twilio

import (
	"encoding/xml"
	"strings"
)

// TwiML documents returned from webhook handlers and inlined into outbound
// call legs. Verbs marshal in struct order.

// Response is the root TwiML document.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// Render serializes the document with its XML declaration.
func (r Response) Render() (string, error) {
	var b strings.Builder
	b.WriteString(xml.Header)
	enc := xml.NewEncoder(&b)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Say speaks text to the caller.
type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Pause waits silently for the given number of seconds.
type Pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

// Play sends DTMF tones when Digits is set.
type Play struct {
	XMLName xml.Name `xml:"Play"`
	Digits  string   `xml:"digits,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

// Connect hands the call leg over to a nested noun, here always a
// bidirectional media stream.
type Connect struct {
	XMLName xml.Name `xml:"Connect"`
	Stream  Stream   `xml:"Stream"`
}

// Stream opens a websocket back to this service carrying the leg's audio.
type Stream struct {
	URL string `xml:"url,attr"`
}

// Dial places the leg into a conference room.
type Dial struct {
	XMLName    xml.Name   `xml:"Dial"`
	Conference Conference `xml:"Conference"`
}

// Conference names the room and controls join/leave side effects.
type Conference struct {
	StartOnEnter        string `xml:"startConferenceOnEnter,attr,omitempty"`
	EndOnExit           string `xml:"endConferenceOnExit,attr,omitempty"`
	StatusCallback      string `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent string `xml:"statusCallbackEvent,attr,omitempty"`
	Beep                string `xml:"beep,attr,omitempty"`
	Name                string `xml:",chardata"`
}

// ConferenceOpts controls how a leg enters a room.
type ConferenceOpts struct {
	// StartOnEnter opens the room when this leg arrives, instead of
	// holding it until an opener joins.
	StartOnEnter bool
	// EndOnExit tears the room down when this leg leaves.
	EndOnExit bool
	// CallbackURL, when set, receives participant join/leave webhooks.
	CallbackURL string
}

// JoinConference builds the Dial verb that drops a leg into the named room.
func JoinConference(room string, opts ConferenceOpts) Dial {
	conf := Conference{
		Beep: "false",
		Name: room,
	}
	if opts.StartOnEnter {
		conf.StartOnEnter = "true"
	} else {
		conf.StartOnEnter = "false"
	}
	if opts.EndOnExit {
		conf.EndOnExit = "true"
	}
	if opts.CallbackURL != "" {
		conf.StatusCallback = opts.CallbackURL
		conf.StatusCallbackEvent = "join leave"
	}
	return Dial{Conference: conf}
}

// MediaStreamConnect produces the document that answers an inbound leg:
// a beat of silence, an optional spoken greeting, then the bridge of its
// audio onto the websocket.
func MediaStreamConnect(greeting, streamURL string) Response {
	verbs := []any{Pause{Length: 1}}
	if greeting != "" {
		verbs = append(verbs, Say{Text: greeting})
	}
	verbs = append(verbs, Connect{Stream: Stream{URL: streamURL}})
	return Response{Verbs: verbs}
}

// DTMFSequence produces the document that navigates a phone tree: each
// digit group is played after a short pause so menus have time to prompt.
func DTMFSequence(digitGroups []string) Response {
	var verbs []any
	for _, digits := range digitGroups {
		verbs = append(verbs, Pause{Length: 1}, Play{Digits: digits})
	}
	return Response{Verbs: verbs}
}

