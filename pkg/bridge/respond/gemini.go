package respond

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
)

// Responder produces the agent's next action from the conversation so far.
type Responder interface {
	Respond(ctx context.Context, instructions string, transcript []call.Utterance) (Reply, error)
}

// Gemini implements Responder on the Gemini API with JSON-constrained
// output.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("respond: create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Respond sends the transcript as alternating user/model turns and parses
// the structured reply. A transcript that has not yet produced a caller
// utterance still yields a turn: the model opens the conversation.
func (g *Gemini) Respond(ctx context.Context, instructions string, transcript []call.Utterance) (Reply, error) {
	contents := make([]*genai.Content, 0, len(transcript)+1)
	for _, u := range transcript {
		contents = append(contents, genai.NewContentFromText(u.Text, contentRole(u.Role)))
	}
	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText("The call has connected.", genai.RoleUser))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instructions, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Noop, fmt.Errorf("respond: generate: %w", err)
	}
	return ParseReply(resp.Text())
}

// contentRole maps a transcript speaker onto the model's turn roles.
func contentRole(speaker string) genai.Role {
	if speaker == call.SpeakerAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}
