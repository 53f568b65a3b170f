package orchestrator

import (
	"context"
	"fmt"

	"yuzu/voicechat/internal/audio"
	"yuzu/voicechat/internal/history"
)

// State is the turn-taking state of a session.
type State int

const (
	Idle State = iota
	ProcessingHuman
	PlayingHuman
	ProcessingAi
	PlayingAi
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case ProcessingHuman:
		return "PROCESSING_HUMAN"
	case PlayingHuman:
		return "PLAYING_HUMAN"
	case ProcessingAi:
		return "PROCESSING_AI"
	case PlayingAi:
		return "PLAYING_AI"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for v := Idle; v <= PlayingAi; v++ {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// TurnKind tags a clip pushed to the bridge. The values are on the wire.
type TurnKind int

const (
	TurnHuman  TurnKind = 1
	TurnAI     TurnKind = 2
	TurnCustom TurnKind = 3
)

func (k TurnKind) String() string {
	switch k {
	case TurnHuman:
		return "human"
	case TurnAI:
		return "ai"
	case TurnCustom:
		return "custom"
	default:
		return fmt.Sprintf("TurnKind(%d)", int(k))
	}
}

// Valid reports whether k is one of the defined kinds.
func (k TurnKind) Valid() bool { return k >= TurnHuman && k <= TurnCustom }

// Bridge is the playback sink attached to a session. Calls are made from the
// session goroutine only.
type Bridge interface {
	AddMessage(ctx context.Context, speaker history.Speaker, text string) error
	PlayAudio(ctx context.Context, samples audio.Samples, rate float64, kind TurnKind) error
}

// Command is a message for a session mailbox.
type Command interface{ command() }

// HumanTurn is a user utterance. Voice empty means the session default.
type HumanTurn struct {
	Text  string
	Voice string
}

// AiTurn replays the latest AI reply without a new utterance.
type AiTurn struct {
	Voice string
}

// RegisterBridge attaches (or replaces) the playback sink.
type RegisterBridge struct {
	Sink Bridge
}

// DetachBridge clears the sink if it is still Sink.
type DetachBridge struct {
	Sink Bridge
}

// HeartbeatTick is sent by the session heartbeat.
type HeartbeatTick struct{}

// PlaybackCompleted is reported by the bridge when a clip finished playing.
type PlaybackCompleted struct {
	Kind TurnKind
}

func (HumanTurn) command()         {}
func (AiTurn) command()            {}
func (RegisterBridge) command()    {}
func (DetachBridge) command()      {}
func (HeartbeatTick) command()     {}
func (PlaybackCompleted) command() {}

// purpose says which synthesis a synthResult belongs to.
type purpose int

const (
	forHuman purpose = iota + 1
	forAI
	forWelcome
)

func (p purpose) String() string {
	switch p {
	case forHuman:
		return "human"
	case forAI:
		return "ai"
	default:
		return "welcome"
	}
}

type llmResult struct {
	turn uint64
	text string
	err  error
}

type synthResult struct {
	turn    uint64
	purpose purpose
	text    string
	samples audio.Samples
	sink    Bridge // welcome target
	err     error
}

type snapshotReq struct {
	reply chan Snapshot
}

func (llmResult) command()   {}
func (synthResult) command() {}
func (snapshotReq) command() {}

// Snapshot is a consistent read of a session, taken on its goroutine.
type Snapshot struct {
	ID             string          `json:"session_id"`
	State          State           `json:"state"`
	History        []history.Entry `json:"history"`
	BridgeAttached bool            `json:"bridge_attached"`
	Deferred       int             `json:"deferred"`
	LastReply      string          `json:"last_reply,omitempty"`
}
