package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"yuzu/voicechat/internal/audio"
	"yuzu/voicechat/internal/history"
)

const waitTimeout = 2 * time.Second

// fakeLLM answers with reply(text). A non-nil gate blocks every call until it
// is closed.
type fakeLLM struct {
	mu    sync.Mutex
	calls []llmCall
	reply func(text string) (string, error)
	gate  chan struct{}
}

type llmCall struct {
	text string
	hist []history.Entry
}

func (f *fakeLLM) Complete(ctx context.Context, text string, hist []history.Entry) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, llmCall{text: text, hist: hist})
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.reply == nil {
		return "reply to " + text, nil
	}
	return f.reply(text)
}

func (f *fakeLLM) Calls() []llmCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llmCall(nil), f.calls...)
}

// fakeTTS returns one 0.25 sample per rune of text as raw PCM, fails for any
// text in failFor and hangs until the context ends for any text in blockFor.
type fakeTTS struct {
	mu       sync.Mutex
	failFor  map[string]bool
	blockFor map[string]bool
	voices   []string
}

var errTTSDown = errors.New("tts down")

func (f *fakeTTS) Synthesize(ctx context.Context, text, voice string) (audio.Clip, error) {
	f.mu.Lock()
	f.voices = append(f.voices, voice)
	fail, block := f.failFor[text], f.blockFor[text]
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return audio.Clip{}, ctx.Err()
	}
	if fail {
		return audio.Clip{}, errTTSDown
	}
	return pcmFor(text), nil
}

func pcmFor(text string) audio.Clip {
	n := len([]rune(text))
	in := make([]float32, n)
	for i := range in {
		in[i] = 0.25
	}
	return audio.Clip{Encoding: audio.RawPCM16LE, SampleRate: 24000, Channels: 1, Data: audio.EncodePCM16LE(in)}
}

type bridgeCall struct {
	op      string // add_message | play_audio
	speaker history.Speaker
	text    string
	kind    TurnKind
	samples int
	rate    float64
}

// fakeBridge records every push and can fail PlayAudio.
type fakeBridge struct {
	calls   chan bridgeCall
	mu      sync.Mutex
	all     []bridgeCall
	failErr error
}

func newFakeBridge() *fakeBridge { return &fakeBridge{calls: make(chan bridgeCall, 64)} }

func (b *fakeBridge) AddMessage(ctx context.Context, speaker history.Speaker, text string) error {
	b.record(bridgeCall{op: "add_message", speaker: speaker, text: text})
	return nil
}

func (b *fakeBridge) PlayAudio(ctx context.Context, samples audio.Samples, rate float64, kind TurnKind) error {
	if b.failErr != nil {
		return b.failErr
	}
	b.record(bridgeCall{op: "play_audio", kind: kind, samples: len(samples.Samples), rate: rate})
	return nil
}

func (b *fakeBridge) record(c bridgeCall) {
	b.mu.Lock()
	b.all = append(b.all, c)
	b.mu.Unlock()
	b.calls <- c
}

func (b *fakeBridge) All() []bridgeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bridgeCall(nil), b.all...)
}

func (b *fakeBridge) next(t *testing.T) bridgeCall {
	t.Helper()
	select {
	case c := <-b.calls:
		return c
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for bridge call")
		return bridgeCall{}
	}
}

// expectPair waits for add_message followed by play_audio of kind.
func (b *fakeBridge) expectPair(t *testing.T, speaker history.Speaker, text string, kind TurnKind) bridgeCall {
	t.Helper()
	add := b.next(t)
	if add.op != "add_message" || add.speaker != speaker || add.text != text {
		t.Fatalf("expected add_message(%s,%q), got %+v", speaker, text, add)
	}
	play := b.next(t)
	if play.op != "play_audio" || play.kind != kind {
		t.Fatalf("expected play_audio kind=%s, got %+v", kind, play)
	}
	return play
}

func (b *fakeBridge) expectQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case c := <-b.calls:
		t.Fatalf("unexpected bridge call %+v", c)
	case <-time.After(d):
	}
}

func newTestSession(t *testing.T, l *fakeLLM, tt *fakeTTS, mod func(*Options)) *Session {
	t.Helper()
	o := Options{
		ID:            "test-session",
		DefaultVoice:  "alloy",
		AIVoice:       "nova",
		WelcomeText:   "welcome!",
		RemoteTimeout: time.Second,
		LLM:           l,
		TTS:           tt,
	}
	if mod != nil {
		mod(&o)
	}
	s, err := New(o)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func send(t *testing.T, s *Session, cmd Command) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if err := s.Send(ctx, cmd); err != nil {
		t.Fatalf("send %T: %v", cmd, err)
	}
}

func snap(t *testing.T, s *Session) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	sn, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return sn
}

// waitFor polls the session until cond holds.
func waitFor(t *testing.T, s *Session, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		sn := snap(t, s)
		if cond(sn) {
			return sn
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last snapshot %+v", what, sn)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitState(t *testing.T, s *Session, want State) Snapshot {
	t.Helper()
	return waitFor(t, s, "state "+want.String(), func(sn Snapshot) bool { return sn.State == want })
}
