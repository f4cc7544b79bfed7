// Package widget drives a two-channel chat session against the backend: it
// keeps the active channel's message list in sync by polling, sends drafts,
// and pushes render instructions to a View.
package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duochat/duochat/pkg/api"
	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/logger"
	"github.com/duochat/duochat/pkg/render"
)

var (
	ErrEmptyMessage = errors.New("widget: message is empty")
	ErrRejected     = errors.New("widget: message rejected by server")
	ErrClosed       = errors.New("widget: closed")
)

// Backend is the part of the API client the widget uses.
type Backend interface {
	GetMessages(ctx context.Context, ch chat.Channel) ([]chat.Message, error)
	SendMessage(ctx context.Context, req api.SendRequest) (api.SendResult, error)
}

// Level is the severity of a user-facing notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// View is a render target. Calls may arrive from any goroutine and are made
// while the widget holds its lock, so they must return promptly without
// waiting on another event loop, and must not call back into the Widget.
type View interface {
	// Replace clears the list and draws ins in order, as one update.
	Replace(ins []render.Instruction)
	Clear()
	Append(in render.Instruction)
	SetTyping(on bool)
	Notify(level Level, text string)
	// SetChannel marks ch as the active control and updates the header.
	SetChannel(ch chat.Channel)
}

type Options struct {
	Channel      chat.Channel
	PollInterval time.Duration
	ReplyDelay   time.Duration
	Render       render.Options
	// Now stamps optimistic messages; defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if !o.Channel.Valid() {
		o.Channel = chat.ChannelAI
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.ReplyDelay < 0 {
		o.ReplyDelay = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Render = o.Render.WithDefaults()
	return o
}

// ViewState is the widget's mutable session state.
type ViewState struct {
	Active chat.Channel
	// Generation increases on every channel switch.
	Generation uint64
	// Tokens holds the latest poll token issued per channel.
	Tokens map[chat.Channel]uint64

	timer *pollTimer
}

type Widget struct {
	backend Backend
	view    View
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc

	switchMu  sync.Mutex
	mu        sync.Mutex
	state     ViewState
	lastToken uint64
	replies   map[*time.Timer]struct{}
	started   bool
	closed    bool
	inflight  sync.WaitGroup
	timers    atomic.Int32
}

func New(backend Backend, view View, opts Options) *Widget {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Widget{
		backend: backend,
		view:    view,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		state: ViewState{
			Active: opts.Channel,
			Tokens: make(map[chat.Channel]uint64),
		},
		replies: make(map[*time.Timer]struct{}),
	}
}

// Start shows the initial channel, loads it once and arms the poll timer.
func (w *Widget) Start() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	ch := w.state.Active
	w.mu.Unlock()

	logger.InfoCF("widget", "Widget started", map[string]interface{}{
		"channel":       string(ch),
		"poll_interval": w.opts.PollInterval.String(),
	})
	return w.activate(ch, false)
}

// SwitchChannel makes ch the active channel: the view is cleared, the old
// timer cancelled, ch polled once and a new timer armed for it.
func (w *Widget) SwitchChannel(ch chat.Channel) error {
	if !ch.Valid() {
		return fmt.Errorf("widget: switch: unknown channel %q", ch)
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.started = true
	w.mu.Unlock()

	logger.InfoCF("widget", "Switching channel", map[string]interface{}{
		"channel": string(ch),
	})
	return w.activate(ch, true)
}

func (w *Widget) activate(ch chat.Channel, clear bool) error {
	w.switchMu.Lock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.switchMu.Unlock()
		return ErrClosed
	}
	old := w.state.timer
	w.state.timer = nil
	w.state.Active = ch
	w.state.Generation++
	w.view.SetChannel(ch)
	if clear {
		w.view.Clear()
	}
	w.mu.Unlock()

	// The old ticker's in-flight poll sees the new channel and returns.
	old.halt()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.switchMu.Unlock()
		return ErrClosed
	}
	w.state.timer = w.startTimer(ch)
	w.mu.Unlock()
	w.switchMu.Unlock()

	w.poll(ch)
	return nil
}

// Active returns the active channel.
func (w *Widget) Active() chat.Channel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Active
}

// State returns a copy of the current view state.
func (w *Widget) State() ViewState {
	w.mu.Lock()
	defer w.mu.Unlock()
	tokens := make(map[chat.Channel]uint64, len(w.state.Tokens))
	for k, v := range w.state.Tokens {
		tokens[k] = v
	}
	return ViewState{
		Active:     w.state.Active,
		Generation: w.state.Generation,
		Tokens:     tokens,
	}
}

// ActiveTimers reports how many poll timers are running.
func (w *Widget) ActiveTimers() int {
	return int(w.timers.Load())
}

// Refresh polls the active channel now.
func (w *Widget) Refresh() {
	w.poll(w.Active())
}

// Close stops polling and pending replies, aborts in-flight requests and
// waits for them to return.
func (w *Widget) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	old := w.state.timer
	w.state.timer = nil
	for t := range w.replies {
		t.Stop()
		delete(w.replies, t)
	}
	w.mu.Unlock()

	w.cancel()
	old.halt()
	w.inflight.Wait()
	logger.DebugC("widget", "Widget closed")
	return nil
}
