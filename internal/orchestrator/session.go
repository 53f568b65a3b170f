package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"yuzu/voicechat/internal/apperr"
	"yuzu/voicechat/internal/history"
	"yuzu/voicechat/internal/llm"
	"yuzu/voicechat/internal/logging"
	"yuzu/voicechat/internal/tts"
	"yuzu/voicechat/internal/types"
)

// ErrStopped is returned when sending to a session that has been stopped.
var ErrStopped = errors.New("orchestrator: session stopped")

const (
	defaultMailboxSize   = 64
	defaultRemoteTimeout = 30 * time.Second
	defaultBridgeTimeout = 5 * time.Second
	defaultContextWindow = 20
	defaultWelcome       = "Hello! I'm listening. What would you like to talk about?"
)

// Recorder receives session events. *store.Store satisfies it.
type Recorder interface {
	AppendEvent(sessionID, typ string, payload map[string]any) types.Event
}

// TickFunc runs on the session goroutine for each heartbeat received while idle.
type TickFunc func(ctx context.Context, sessionID string)

// Options configures a Session. LLM and TTS are required.
type Options struct {
	ID                string
	DefaultVoice      string
	AIVoice           string
	WelcomeText       string
	HistoryCap        int
	ContextWindow     int
	RemoteTimeout     time.Duration
	BridgeTimeout     time.Duration
	HeartbeatDelay    time.Duration
	HeartbeatInterval time.Duration // <= 0 disables the heartbeat
	MailboxSize       int

	LLM      llm.Client
	TTS      tts.Client
	Recorder Recorder
	OnTick   TickFunc
	Logger   *zerolog.Logger
}

func (o *Options) applyDefaults() {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.DefaultVoice == "" {
		o.DefaultVoice = "alloy"
	}
	if o.AIVoice == "" {
		o.AIVoice = o.DefaultVoice
	}
	if o.WelcomeText == "" {
		o.WelcomeText = defaultWelcome
	}
	if o.ContextWindow <= 0 {
		o.ContextWindow = defaultContextWindow
	}
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = defaultRemoteTimeout
	}
	if o.BridgeTimeout <= 0 {
		o.BridgeTimeout = defaultBridgeTimeout
	}
	if o.MailboxSize <= 0 {
		o.MailboxSize = defaultMailboxSize
	}
}

// Session is one conversation. Every field below the mailbox is owned by the
// run goroutine; other goroutines talk to it through Send.
type Session struct {
	id   string
	opts Options
	log  zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	mailbox  chan Command
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	hb       *Heartbeat

	state    State
	hist     *history.History
	bridge   Bridge
	turn     uint64
	turnKind TurnKind
	deferred []Command

	// current human turn
	humanTurn   uint64
	llmPending  bool
	llmFailed   bool
	humanPlayed bool
	aiVoice     string

	// AI half in flight; record means append to history when the clip is ready
	record bool

	lastReply  string
	replyFresh bool

	afterHandle func(Command, State)
}

// New validates o and starts the session goroutine and heartbeat.
func New(o Options) (*Session, error) {
	s, err := newSession(o)
	if err != nil {
		return nil, err
	}
	s.start()
	return s, nil
}

func newSession(o Options) (*Session, error) {
	if o.LLM == nil {
		return nil, apperr.MissingConfig("llm client")
	}
	if o.TTS == nil {
		return nil, apperr.MissingConfig("tts client")
	}
	o.applyDefaults()
	lg := logging.Nop()
	if o.Logger != nil {
		lg = logging.Component(*o.Logger, "orch")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:      o.ID,
		opts:    o,
		log:     lg.With().Str("sid", o.ID).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		mailbox: make(chan Command, o.MailboxSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		state:   Idle,
		hist:    history.New(o.HistoryCap),
	}, nil
}

func (s *Session) start() {
	metricSessionsActive.Inc()
	go s.run()
	if s.opts.HeartbeatInterval > 0 {
		s.hb = StartHeartbeat(s, s.opts.HeartbeatDelay, s.opts.HeartbeatInterval)
	}
	s.log.Info().Msg("session started")
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send enqueues cmd, blocking while the mailbox is full.
func (s *Session) Send(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return apperr.Protocolf("nil command")
	}
	select {
	case <-s.quit:
		return ErrStopped
	default:
	}
	select {
	case s.mailbox <- cmd:
		return nil
	case <-s.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues cmd only if there is room.
func (s *Session) TrySend(cmd Command) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.mailbox <- cmd:
		return true
	default:
		return false
	}
}

// Snapshot reads state and history on the session goroutine.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotReq{reply: make(chan Snapshot, 1)}
	if err := s.Send(ctx, req); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-s.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Stop ends the session. Queued commands are dropped and in-flight remote
// calls are cancelled. It must not be called from a Bridge or TickFunc.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		if s.hb != nil {
			s.hb.Stop()
		}
		close(s.quit)
		s.cancel()
		<-s.done
		metricSessionsActive.Dec()
		s.log.Info().Str("state", s.state.String()).Msg("session stopped")
	})
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case cmd := <-s.mailbox:
			s.handle(cmd)
			s.replayDeferred()
			if s.afterHandle != nil {
				s.afterHandle(cmd, s.state)
			}
		}
	}
}

func (s *Session) handle(cmd Command) {
	switch c := cmd.(type) {
	case HumanTurn:
		if s.state != Idle {
			s.deferTurn(c)
			return
		}
		s.startHumanTurn(c)
	case AiTurn:
		if s.state != Idle {
			s.deferTurn(c)
			return
		}
		s.startAiTurn(c)
	case RegisterBridge:
		s.registerBridge(c.Sink)
	case DetachBridge:
		s.detachBridge(c.Sink)
	case HeartbeatTick:
		s.heartbeat()
	case PlaybackCompleted:
		s.playbackCompleted(c.Kind)
	case llmResult:
		s.onLLMResult(c)
	case synthResult:
		s.onSynthResult(c)
	case snapshotReq:
		c.reply <- s.snapshot()
	default:
		s.log.Warn().Err(apperr.Protocolf("unknown command %T", cmd)).Msg("ignored")
	}
}

func (s *Session) deferTurn(cmd Command) {
	s.deferred = append(s.deferred, cmd)
	metricDeferredCommands.Inc()
	s.log.Debug().Str("state", s.state.String()).Int("queued", len(s.deferred)).Msgf("deferred %T", cmd)
}

// replayDeferred starts queued turns while the session is idle.
func (s *Session) replayDeferred() {
	for s.state == Idle && len(s.deferred) > 0 {
		cmd := s.deferred[0]
		s.deferred[0] = nil
		s.deferred = s.deferred[1:]
		s.handle(cmd)
	}
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:             s.id,
		State:          s.state,
		History:        s.hist.Entries(),
		BridgeAttached: s.bridge != nil,
		Deferred:       len(s.deferred),
		LastReply:      s.lastReply,
	}
}

// setState transitions session state and records metric.
func (s *Session) setState(to State) {
	from := s.state
	if from == to {
		return
	}
	metricStateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	s.state = to
	s.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state")
	s.recordEvent("state_changed", map[string]any{"from": from.String(), "to": to.String()})
}

func (s *Session) recordEvent(typ string, payload map[string]any) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.AppendEvent(s.id, typ, payload)
	}
}

// deliver hands a worker result back to the session goroutine.
func (s *Session) deliver(cmd Command) {
	select {
	case s.mailbox <- cmd:
	case <-s.quit:
	}
}
