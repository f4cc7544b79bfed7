package widget

import (
	"strings"
	"sync"

	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/render"
)

// Notice is a notification recorded by MarkupView.
type Notice struct {
	Level Level
	Text  string
}

// MarkupSnapshot is a consistent copy of a MarkupView.
type MarkupSnapshot struct {
	Channel chat.Channel
	HTML    string
	Count   int
	Typing  bool
	Notice  *Notice
	// Version increases on every mutation.
	Version uint64
}

// MarkupView is an in-memory View holding escaped HTML nodes, one per
// message.
type MarkupView struct {
	mu      sync.RWMutex
	nodes   []string
	channel chat.Channel
	typing  bool
	notice  *Notice
	version uint64

	// Typeset, when set, post-processes the markup of messages that
	// contain formulas.
	Typeset func(html string) string
}

func NewMarkupView() *MarkupView {
	return &MarkupView{}
}

func (v *MarkupView) node(in render.Instruction) string {
	html := render.Markup(in)
	if in.HasMath && v.Typeset != nil {
		html = v.Typeset(html)
	}
	return html
}

func (v *MarkupView) Replace(ins []render.Instruction) {
	nodes := make([]string, len(ins))
	for i, in := range ins {
		nodes[i] = v.node(in)
	}
	v.mu.Lock()
	v.nodes = nodes
	v.version++
	v.mu.Unlock()
}

func (v *MarkupView) Clear() {
	v.mu.Lock()
	v.nodes = nil
	v.version++
	v.mu.Unlock()
}

func (v *MarkupView) Append(in render.Instruction) {
	n := v.node(in)
	v.mu.Lock()
	v.nodes = append(v.nodes, n)
	v.version++
	v.mu.Unlock()
}

func (v *MarkupView) SetTyping(on bool) {
	v.mu.Lock()
	v.typing = on
	v.version++
	v.mu.Unlock()
}

func (v *MarkupView) Notify(level Level, text string) {
	v.mu.Lock()
	v.notice = &Notice{Level: level, Text: text}
	v.version++
	v.mu.Unlock()
}

func (v *MarkupView) SetChannel(ch chat.Channel) {
	v.mu.Lock()
	v.channel = ch
	v.version++
	v.mu.Unlock()
}

// Count returns the number of rendered messages.
func (v *MarkupView) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.nodes)
}

func (v *MarkupView) Snapshot() MarkupSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s := MarkupSnapshot{
		Channel: v.channel,
		HTML:    strings.Join(v.nodes, "\n"),
		Count:   len(v.nodes),
		Typing:  v.typing,
		Version: v.version,
	}
	if v.notice != nil {
		n := *v.notice
		s.Notice = &n
	}
	return s
}

// TakeNotice returns and clears the pending notification.
func (v *MarkupView) TakeNotice() *Notice {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := v.notice
	v.notice = nil
	return n
}
