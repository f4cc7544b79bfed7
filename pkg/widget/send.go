package widget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/duochat/duochat/pkg/api"
	"github.com/duochat/duochat/pkg/attachment"
	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/logger"
	"github.com/duochat/duochat/pkg/render"
)

// Draft is a pending send: composer text plus an optional attachment group.
type Draft struct {
	Text        string
	Attachments attachment.Group
}

// Send runs the send pipeline on the caller's goroutine: optimistic render,
// typing indicator, one multipart request, the delayed ai reply and one
// reconciling poll.
func (w *Widget) Send(ctx context.Context, d Draft) error {
	text := strings.TrimSpace(d.Text)
	if text == "" && d.Attachments.Empty() {
		w.view.Notify(LevelWarning, "Please enter a message or attach a file")
		return ErrEmptyMessage
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	ch := w.state.Active
	gen := w.state.Generation
	w.view.Append(render.Build(chat.Message{
		Sender:    chat.SenderUser,
		Content:   text,
		Timestamp: w.opts.Now(),
	}, w.opts.Render))
	w.view.SetTyping(true)
	w.mu.Unlock()

	req := api.SendRequest{
		Channel: ch,
		Content: text,
		Files:   d.Attachments.Files,
	}
	if !d.Attachments.Empty() {
		req.Type = d.Attachments.Type
	}

	logger.DebugCF("widget", "Sending message", map[string]interface{}{
		"channel": string(ch),
		"files":   len(req.Files),
		"length":  len(text),
	})
	res, err := w.backend.SendMessage(ctx, req)
	w.view.SetTyping(false)
	if err != nil {
		logger.ErrorCF("widget", "Failed to send message", map[string]interface{}{
			"channel": string(ch),
			"error":   err.Error(),
		})
		w.view.Notify(LevelError, "Failed to send message")
		return fmt.Errorf("widget: send: %w", err)
	}

	var sendErr error
	switch {
	case !res.OK():
		msg := res.Message
		if msg == "" {
			msg = "Failed to send message"
		}
		logger.WarnCF("widget", "Message rejected", map[string]interface{}{
			"channel": string(ch),
			"status":  res.Status,
			"message": res.Message,
		})
		w.view.Notify(LevelError, msg)
		sendErr = fmt.Errorf("%w: %s", ErrRejected, msg)
	case res.AIResponse != "":
		w.scheduleReply(gen, res.AIResponse)
	}

	w.poll(ch)
	return sendErr
}

// scheduleReply renders the synthetic ai reply after the reply delay, unless
// the channel was switched in the meantime.
func (w *Widget) scheduleReply(gen uint64, content string) {
	reply := chat.Message{Sender: chat.SenderAI, Content: content}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(w.opts.ReplyDelay, func() {
		reply.Timestamp = w.opts.Now()
		in := render.Build(reply, w.opts.Render)

		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.replies, t)
		if w.closed || w.state.Generation != gen {
			logger.DebugC("widget", "Dropped reply for inactive channel")
			return
		}
		w.view.Append(in)
	})
	w.replies[t] = struct{}{}
}
