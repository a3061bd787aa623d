package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoogleFinishReasonMapping(t *testing.T) {
	require.Equal(t, "stop", googleFinishReason("STOP"))
	require.Equal(t, "length", googleFinishReason("MAX_TOKENS"))
	require.Equal(t, "content_filter", googleFinishReason("SAFETY"))
	require.Equal(t, "content_filter", googleFinishReason("RECITATION"))
	require.Equal(t, "stop", googleFinishReason("UNKNOWN"))
}

func TestToGoogleRequestMapsRolesAndSystem(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	}
	out := toGoogleRequest(req)
	require.NotNil(t, out.SystemInstruction)
	require.Equal(t, "be terse", out.SystemInstruction.Parts[0].Text)
	require.Len(t, out.Contents, 2)
	require.Equal(t, "user", out.Contents[0].Role)
	require.Equal(t, "model", out.Contents[1].Role)
}
