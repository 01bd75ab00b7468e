// Package prompt builds the system instructions that steer the phone agent
// for one session.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
)

const instructionsText = `You are an automated phone agent calling a customer service line on behalf of {{.Name}}. You are speaking with a customer service representative. Represent the caller faithfully and never claim to be them.

Caller details:
- Name: {{.Name}}
- Email: {{.Email}}
- Reason for the call: {{.Reason}}
{{- if .AccountNumber}}
- Account number: {{.AccountNumber}}
{{- end}}
{{- range .Extras}}
- {{.Key}}: {{.Value}}
{{- end}}

Rules:
- Keep every spoken turn to one or two short sentences.
- Answer only with information listed above. If asked for something you do not have, say you will need to check and offer to follow up.
- If an automated menu asks you to press keys, respond with the digits to press instead of speaking.
- When the representative is ready to help the caller directly, or asks to speak with them, hand the call over.
- If you hear hold music, silence, or anything that needs no reply, do nothing.

Respond with a single JSON object and nothing else:
{"response_method": "<noop|voice|phone_tree|call_back>", "response_content": "<what to say, or the digits to press, or empty>"}

Use "voice" to speak, "phone_tree" for menu digits (comma separated for multiple presses), "call_back" to hand the call to {{.Name}}, and "noop" to stay silent.`

var instructionsTmpl = template.Must(template.New("instructions").Parse(instructionsText))

type extra struct {
	Key   string
	Value string
}

// Instructions renders the agent's system instructions for a caller
// profile. The name and reason are required; instructions without them
// would have the agent improvising an identity.
func Instructions(p call.Profile) (string, error) {
	if strings.TrimSpace(p.Name) == "" {
		return "", fmt.Errorf("prompt: profile missing caller name")
	}
	if strings.TrimSpace(p.Reason) == "" {
		return "", fmt.Errorf("prompt: profile missing reason for call")
	}

	extras := make([]extra, 0, len(p.Extras))
	for k, v := range p.Extras {
		extras = append(extras, extra{Key: k, Value: v})
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i].Key < extras[j].Key })

	data := struct {
		Name          string
		Email         string
		Reason        string
		AccountNumber string
		Extras        []extra
	}{
		Name:          p.Name,
		Email:         p.Email,
		Reason:        p.Reason,
		AccountNumber: p.AccountNumber,
		Extras:        extras,
	}

	var b strings.Builder
	if err := instructionsTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("prompt: render instructions: %w", err)
	}
	return b.String(), nil
}
