package reply

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const heartbeatSyntheticBody = "HEARTBEAT /think:high"

// HeartbeatScheduler ticks at a fixed interval and probes every session
// whose idle age exceeds the configured threshold, feeding a synthetic
// body through the same reply path used for user turns — with the
// deviations in §4.I: updatedAt is never touched, a busy command queue
// skips the tick for that session, and a bare "HEARTBEAT_OK" reply is
// swallowed rather than dispatched.
type HeartbeatScheduler struct {
	engine      *Engine
	store       *Store
	interval    time.Duration
	idleMinutes int
	dispatch    func(key string, payloads []ReplyPayload)
	log         zerolog.Logger
	now         func() time.Time
}

func NewHeartbeatScheduler(engine *Engine, store *Store, intervalMinutes, idleMinutes int, dispatch func(string, []ReplyPayload), logger zerolog.Logger) *HeartbeatScheduler {
	return &HeartbeatScheduler{
		engine:      engine,
		store:       store,
		interval:    time.Duration(intervalMinutes) * time.Minute,
		idleMinutes: idleMinutes,
		dispatch:    dispatch,
		log:         logger,
		now:         time.Now,
	}
}

// Run blocks, ticking until ctx is cancelled.
func (h *HeartbeatScheduler) Run(ctx context.Context) {
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *HeartbeatScheduler) tick(ctx context.Context) {
	for _, key := range h.store.Keys() {
		sess, ok := h.store.Snapshot(key)
		if !ok {
			continue
		}
		if h.now().Sub(sess.UpdatedAt) <= time.Duration(h.idleMinutes)*time.Minute {
			continue
		}
		if h.engine.queue.Ahead() > 0 {
			h.log.Debug().Str("key", key).Msg("heartbeat skipped: queue busy")
			continue
		}
		payloads, suppressed := h.engine.heartbeatTurn(ctx, key, sess)
		if suppressed {
			h.log.Debug().Str("key", key).Msg("heartbeat suppressed: agent reported HEARTBEAT_OK")
			continue
		}
		if len(payloads) > 0 && h.dispatch != nil {
			h.dispatch(key, payloads)
		}
	}
}

// heartbeatTurn runs the synthetic-body path for key without ever touching
// the session's updatedAt.
func (e *Engine) heartbeatTurn(ctx context.Context, key string, sess Session) ([]ReplyPayload, bool) {
	d := ParseDirectives(heartbeatSyntheticBody, nil)
	workingBody := d.StrippedBody
	thinkLevel := resolveThink(d.Think, sess.ThinkDefault, e.cfg.Reply.ThinkingDefault)
	workingBody = appendThinkCue(workingBody, thinkLevel, e.cfg.Reply.Agent.Kind)

	tctx := TemplateContext{
		Body:         workingBody,
		BodyStripped: d.StrippedBody,
		SessionID:    sess.ID,
	}

	command := e.cfg.Reply.HeartbeatCommand
	if len(command) == 0 {
		command = e.cfg.Reply.Command
	}
	payloads, _ := e.runCommandWithArgvTemplate(ctx, command, tctx, sess, false, VerboseOff, thinkLevel)

	if len(payloads) == 1 && strings.TrimSpace(payloads[0].Text) == "HEARTBEAT_OK" {
		return nil, true
	}
	return payloads, false
}
