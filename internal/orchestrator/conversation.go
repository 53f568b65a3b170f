package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"yuzu/voicechat/internal/apperr"
	"yuzu/voicechat/internal/audio"
	"yuzu/voicechat/internal/history"
)

// startHumanTurn records the utterance and starts the reply and the echo
// synthesis concurrently.
func (s *Session) startHumanTurn(c HumanTurn) {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		s.log.Warn().Err(apperr.Protocolf("empty human turn")).Msg("ignored")
		return
	}
	voice := c.Voice
	if voice == "" {
		voice = s.opts.DefaultVoice
	}

	s.turn++
	s.turnKind = TurnHuman
	s.humanTurn = s.turn
	s.llmPending, s.llmFailed, s.humanPlayed = true, false, false
	s.aiVoice = s.opts.AIVoice

	ctxHist := s.hist.Recent(s.opts.ContextWindow)
	s.hist.Append(history.Entry{Speaker: history.Human, Text: text})
	s.setState(ProcessingHuman)
	s.recordEvent("turn_started", map[string]any{"kind": TurnHuman.String(), "turn": s.turn, "text": text})
	s.log.Info().Uint64("turn", s.turn).Str("voice", voice).Msg("human turn")

	go s.complete(s.turn, text, ctxHist)
	go s.synthesize(s.turn, forHuman, text, voice, nil)
}

// startAiTurn replays the freshest reply without a new utterance.
func (s *Session) startAiTurn(c AiTurn) {
	voice := c.Voice
	if voice == "" {
		voice = s.opts.AIVoice
	}
	text, record := s.replayText()

	s.turn++
	s.turnKind = TurnAI
	s.recordEvent("turn_started", map[string]any{"kind": TurnAI.String(), "turn": s.turn, "text": text})
	s.log.Info().Uint64("turn", s.turn).Str("voice", voice).Bool("record", record).Msg("ai turn")
	s.startAiHalf(text, voice, record)
}

// replayText picks an unrecorded reply, then the last recorded AI entry, then
// the welcome line. Only the first is appended to history.
func (s *Session) replayText() (string, bool) {
	if s.replyFresh && s.lastReply != "" {
		return s.lastReply, true
	}
	if e, ok := s.hist.LastBy(history.AI); ok {
		return e.Text, false
	}
	return s.opts.WelcomeText, false
}

func (s *Session) startAiHalf(text, voice string, record bool) {
	s.record = record
	s.setState(ProcessingAi)
	go s.synthesize(s.turn, forAI, text, voice, nil)
}

func (s *Session) onLLMResult(r llmResult) {
	if r.turn != s.humanTurn {
		s.log.Debug().Uint64("turn", r.turn).Msg("stale llm result dropped")
		return
	}
	s.llmPending = false
	waiting := s.turn == r.turn && s.state == PlayingHuman && s.humanPlayed
	if r.err != nil {
		s.llmFailed = true
		s.log.Error().Err(r.err).Str("state", s.state.String()).Uint64("turn", r.turn).Msg("llm failed")
		if waiting {
			s.endTurn("llm", r.err)
		}
		return
	}
	s.lastReply, s.replyFresh = r.text, true
	s.recordEvent("reply_ready", map[string]any{"turn": r.turn, "chars": len(r.text)})
	if waiting {
		s.startAiHalf(r.text, s.aiVoice, true)
	}
}

func (s *Session) onSynthResult(r synthResult) {
	if r.purpose == forWelcome {
		s.onWelcome(r)
		return
	}
	if r.turn != s.turn {
		s.log.Debug().Uint64("turn", r.turn).Str("purpose", r.purpose.String()).Msg("stale synthesis dropped")
		return
	}
	switch {
	case r.purpose == forHuman && s.state == ProcessingHuman:
		if r.err != nil {
			s.endTurn("tts", r.err)
			return
		}
		if err := s.push(s.bridge, history.Human, r.text, r.samples, TurnHuman); err != nil {
			s.endTurn("bridge", err)
			return
		}
		s.setState(PlayingHuman)
		if s.bridge == nil {
			s.humanPlaybackDone()
		}
	case r.purpose == forAI && s.state == ProcessingAi:
		if r.err != nil {
			s.endTurn("tts", r.err)
			return
		}
		if s.record {
			s.hist.Append(history.Entry{Speaker: history.AI, Text: r.text})
			if r.text == s.lastReply {
				s.replyFresh = false
			}
		}
		if err := s.push(s.bridge, history.AI, r.text, r.samples, TurnAI); err != nil {
			s.endTurn("bridge", err)
			return
		}
		s.setState(PlayingAi)
		if s.bridge == nil {
			s.endTurn("", nil)
		}
	default:
		s.log.Debug().Str("state", s.state.String()).Str("purpose", r.purpose.String()).Msg("unexpected synthesis dropped")
	}
}

func (s *Session) humanPlaybackDone() {
	s.humanPlayed = true
	switch {
	case s.llmFailed:
		s.endTurn("llm", fmt.Errorf("no reply for turn %d", s.turn))
	case s.llmPending:
		s.log.Debug().Uint64("turn", s.turn).Msg("waiting for reply")
	default:
		s.startAiHalf(s.lastReply, s.aiVoice, true)
	}
}

func (s *Session) playbackCompleted(kind TurnKind) {
	if !kind.Valid() {
		s.log.Warn().Err(apperr.Protocolf("unknown turn kind %d", int(kind))).Msg("ignored")
		return
	}
	switch {
	case kind == TurnCustom:
		s.log.Debug().Msg("welcome playback completed")
	case s.state == PlayingHuman && kind == TurnHuman && !s.humanPlayed:
		s.humanPlaybackDone()
	case s.state == PlayingAi && kind == TurnAI:
		s.endTurn("", nil)
	default:
		s.log.Warn().Err(apperr.Protocolf("stale playback completion kind=%s state=%s", kind, s.state)).Msg("ignored")
	}
}

// endTurn returns to Idle. stage is empty for success, otherwise the step that
// failed; history written so far is kept.
func (s *Session) endTurn(stage string, err error) {
	kind := s.turnKind.String()
	if stage == "" {
		metricTurns.WithLabelValues(kind, "ok").Inc()
		s.recordEvent("turn_completed", map[string]any{"kind": kind, "turn": s.turn})
		s.log.Info().Uint64("turn", s.turn).Str("kind", kind).Msg("turn completed")
	} else {
		metricTurns.WithLabelValues(kind, stage+"_failed").Inc()
		s.recordEvent("turn_failed", map[string]any{"kind": kind, "turn": s.turn, "stage": stage, "error": err.Error()})
		s.log.Error().Err(err).Str("state", s.state.String()).Uint64("turn", s.turn).Str("stage", stage).Msg("turn aborted")
	}
	s.record = false
	s.setState(Idle)
}

func (s *Session) registerBridge(sink Bridge) {
	if sink == nil {
		s.log.Warn().Err(apperr.Protocolf("nil bridge")).Msg("ignored")
		return
	}
	replaced := s.bridge != nil
	s.bridge = sink
	s.recordEvent("bridge_registered", map[string]any{"replaced": replaced})
	s.log.Info().Bool("replaced", replaced).Str("state", s.state.String()).Msg("bridge registered")
	go s.synthesize(0, forWelcome, s.opts.WelcomeText, s.opts.AIVoice, sink)
}

func (s *Session) onWelcome(r synthResult) {
	if r.err != nil {
		metricTurns.WithLabelValues(TurnCustom.String(), "tts_failed").Inc()
		s.log.Error().Err(r.err).Msg("welcome synthesis failed")
		return
	}
	if r.sink != s.bridge {
		s.log.Debug().Msg("welcome dropped; bridge replaced")
		return
	}
	if err := s.push(r.sink, history.AI, r.text, r.samples, TurnCustom); err != nil {
		metricTurns.WithLabelValues(TurnCustom.String(), "bridge_failed").Inc()
		s.log.Error().Err(err).Msg("welcome push failed")
		return
	}
	metricTurns.WithLabelValues(TurnCustom.String(), "ok").Inc()
}

// detachBridge clears sink if it is current. A clip that was playing on it
// counts as finished.
func (s *Session) detachBridge(sink Bridge) {
	if sink == nil || s.bridge != sink {
		return
	}
	s.bridge = nil
	s.recordEvent("bridge_detached", nil)
	s.log.Info().Str("state", s.state.String()).Msg("bridge detached")
	switch {
	case s.state == PlayingHuman && !s.humanPlayed:
		s.humanPlaybackDone()
	case s.state == PlayingAi:
		s.endTurn("", nil)
	}
}

func (s *Session) heartbeat() {
	if s.state != Idle {
		metricHeartbeatTicks.WithLabelValues("discarded").Inc()
		s.log.Debug().Str("state", s.state.String()).Msg("heartbeat discarded")
		return
	}
	metricHeartbeatTicks.WithLabelValues("idle").Inc()
	s.recordEvent("heartbeat", nil)
	if s.opts.OnTick != nil {
		s.opts.OnTick(s.ctx, s.id)
	}
}

// push sends the transcript line and the clip. A nil sink is a no-op.
func (s *Session) push(sink Bridge, speaker history.Speaker, text string, samples audio.Samples, kind TurnKind) error {
	if sink == nil {
		s.log.Debug().Str("kind", kind.String()).Msg("no bridge; playback skipped")
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.BridgeTimeout)
	defer cancel()
	if err := sink.AddMessage(ctx, speaker, text); err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	if err := sink.PlayAudio(ctx, samples, 1.0, kind); err != nil {
		return fmt.Errorf("play audio: %w", err)
	}
	return nil
}

// complete runs on its own goroutine.
func (s *Session) complete(turn uint64, text string, ctxHist []history.Entry) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.RemoteTimeout)
	defer cancel()
	start := time.Now()
	reply, err := s.opts.LLM.Complete(ctx, text, ctxHist)
	metricRemoteLatency.WithLabelValues("llm").Observe(float64(time.Since(start).Milliseconds()))
	if err == nil && strings.TrimSpace(reply) == "" {
		err = apperr.Remote("llm", "complete", 0, fmt.Errorf("empty reply"))
	}
	s.deliver(llmResult{turn: turn, text: strings.TrimSpace(reply), err: err})
}

// synthesize runs on its own goroutine; decoding happens here too.
func (s *Session) synthesize(turn uint64, p purpose, text, voice string, sink Bridge) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.RemoteTimeout)
	defer cancel()
	start := time.Now()
	clip, err := s.opts.TTS.Synthesize(ctx, text, voice)
	metricRemoteLatency.WithLabelValues("tts").Observe(float64(time.Since(start).Milliseconds()))
	var samples audio.Samples
	if err == nil {
		samples, err = audio.Decode(clip)
	}
	s.deliver(synthResult{turn: turn, purpose: p, text: text, samples: samples, sink: sink, err: err})
}
