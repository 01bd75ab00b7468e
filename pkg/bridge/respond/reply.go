// Package respond turns finalized caller utterances into the agent's next
// action: stay silent, speak, punch a phone-tree sequence, or hand the
// call to the human it represents.
package respond

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Method is the action class of one agent reply.
type Method string

const (
	// MethodNoop holds, saying nothing.
	MethodNoop Method = "noop"
	// MethodVoice speaks Content into the call.
	MethodVoice Method = "voice"
	// MethodPhoneTree sends Content as DTMF digit groups.
	MethodPhoneTree Method = "phone_tree"
	// MethodCallBack hands the call over to the user the agent represents.
	MethodCallBack Method = "call_back"
)

// Reply is the model's structured output for one turn.
type Reply struct {
	Method  Method `json:"response_method"`
	Content string `json:"response_content"`
}

// Noop is the reply used when a turn produces nothing actionable.
var Noop = Reply{Method: MethodNoop}

var validMethods = map[Method]struct{}{
	MethodNoop:      {},
	MethodVoice:     {},
	MethodPhoneTree: {},
	MethodCallBack:  {},
}

// ParseReply decodes the model's output, tolerating a markdown code fence
// around the JSON. Output that cannot be decoded, or that names an unknown
// method, yields Noop together with the error: a bad turn must never take
// an action on a live call.
func ParseReply(raw string) (Reply, error) {
	text := stripFence(strings.TrimSpace(raw))

	var reply Reply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return Noop, fmt.Errorf("respond: decode reply: %w", err)
	}
	if _, ok := validMethods[reply.Method]; !ok {
		return Noop, fmt.Errorf("respond: unknown method %q", reply.Method)
	}
	return reply, nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// The fence may carry a language tag on its opening line.
	if i := strings.IndexByte(text, '\n'); i >= 0 && !strings.ContainsAny(text[:i], "{}") {
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// DigitGroups splits phone-tree content into the groups to punch, one
// pause per group. Accepts "1", "1,2" and "1 2" forms.
func DigitGroups(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return r == ',' || r == ' '
	})
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
