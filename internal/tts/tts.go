// Package tts turns reply text into an audio clip.
package tts

import (
	"context"

	"yuzu/voicechat/internal/audio"
)

// Client synthesizes text with the given voice. The clip is undecoded.
type Client interface {
	Synthesize(ctx context.Context, text, voice string) (audio.Clip, error)
}

// Voices accepted by the OpenAI speech endpoint.
var Voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer"}

// KnownVoice reports whether v is one of Voices.
func KnownVoice(v string) bool {
	for _, x := range Voices {
		if x == v {
			return true
		}
	}
	return false
}
