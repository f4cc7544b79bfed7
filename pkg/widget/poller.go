package widget

import (
	"time"

	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/logger"
	"github.com/duochat/duochat/pkg/render"
)

// pollTimer is one ticker goroutine bound to a channel.
type pollTimer struct {
	channel chat.Channel
	stop    chan struct{}
	done    chan struct{}
}

// startTimer must be called with w.mu held.
func (w *Widget) startTimer(ch chat.Channel) *pollTimer {
	t := &pollTimer{
		channel: ch,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.timers.Add(1)
	go func() {
		defer close(t.done)
		defer w.timers.Add(-1)

		ticker := time.NewTicker(w.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				w.poll(ch)
			}
		}
	}()
	return t
}

// halt stops the ticker and waits for its goroutine. Safe on nil.
func (t *pollTimer) halt() {
	if t == nil {
		return
	}
	close(t.stop)
	<-t.done
}

// poll fetches ch and replaces the view if the response is still the latest
// for ch and ch is still active.
func (w *Widget) poll(ch chat.Channel) {
	w.mu.Lock()
	if w.closed || w.state.Active != ch {
		w.mu.Unlock()
		return
	}
	w.lastToken++
	token := w.lastToken
	w.state.Tokens[ch] = token
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()

	msgs, err := w.backend.GetMessages(w.ctx, ch)
	if err != nil {
		if w.ctx.Err() == nil {
			logger.WarnCF("widget", "Failed to load messages", map[string]interface{}{
				"channel": string(ch),
				"error":   err.Error(),
			})
		}
		return
	}
	ins := render.BuildAll(msgs, w.opts.Render)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.state.Active != ch || w.state.Tokens[ch] != token {
		logger.DebugCF("widget", "Discarded stale poll response", map[string]interface{}{
			"channel": string(ch),
			"token":   token,
			"latest":  w.state.Tokens[ch],
			"active":  string(w.state.Active),
		})
		return
	}
	w.view.Replace(ins)
}
