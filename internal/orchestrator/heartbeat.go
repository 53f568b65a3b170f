package orchestrator

import (
	"sync"
	"time"
)

// tickTarget is what a Heartbeat feeds. *Session satisfies it.
type tickTarget interface {
	TrySend(Command) bool
}

// Heartbeat enqueues HeartbeatTick after an initial delay and then on every
// interval. A full mailbox drops the tick.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func StartHeartbeat(target tickTarget, delay, interval time.Duration) *Heartbeat {
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	go h.run(target, delay, interval)
	return h
}

func (h *Heartbeat) run(target tickTarget, delay, interval time.Duration) {
	defer close(h.done)
	if delay < 0 {
		delay = 0
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-h.stop:
		return
	case <-timer.C:
	}
	h.tick(target)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.tick(target)
		}
	}
}

func (h *Heartbeat) tick(target tickTarget) {
	if !target.TrySend(HeartbeatTick{}) {
		metricHeartbeatTicks.WithLabelValues("dropped").Inc()
	}
}

// Stop halts the ticker and waits for its goroutine. Safe to call twice.
func (h *Heartbeat) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
