package respond

import (
	"testing"

	"google.golang.org/genai"

	"github.com/switchboard-ai/switchboard/pkg/bridge/call"
)

func TestContentRole(t *testing.T) {
	cases := []struct {
		speaker string
		want    genai.Role
	}{
		{call.SpeakerUser, genai.RoleUser},
		{call.SpeakerAssistant, genai.RoleModel},
		{"moderator", genai.RoleUser},
	}
	for _, tc := range cases {
		if got := contentRole(tc.speaker); got != tc.want {
			t.Errorf("contentRole(%q) = %q, want %q", tc.speaker, got, tc.want)
		}
	}
}
