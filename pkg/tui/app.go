// Package tui is the terminal front end of the chat widget.
package tui

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/duochat/duochat/pkg/attachment"
	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/latex"
	"github.com/duochat/duochat/pkg/logger"
	"github.com/duochat/duochat/pkg/render"
	"github.com/duochat/duochat/pkg/widget"
)

const (
	pageMain   = "main"
	pageAttach = "attach"
	pageLatex  = "latex"
)

type Options struct {
	MaxUploadBytes int64
	// Screen replaces the terminal, e.g. a tcell simulation screen in tests.
	Screen tcell.Screen
}

// App is a tview application implementing widget.View. Fields below the
// primitives are only touched inside the tview event loop.
type App struct {
	app         *tview.Application
	pages       *tview.Pages
	header      *tview.TextView
	messages    *tview.TextView
	status      *tview.TextView
	attachments *tview.TextView
	input       *tview.InputField

	opts   Options
	widget *widget.Widget
	ctx    context.Context

	// done closes once the event loop is gone; queued updates are dropped
	// from then on.
	done     chan struct{}
	doneOnce sync.Once

	updMu    sync.Mutex
	updates  []func()
	flushing bool

	channel chat.Channel
	frame   int
	shown   []render.Instruction
	pending []attachment.File
	typing  bool
	notice  string
}

func New(opts Options) *App {
	a := &App{
		app:     tview.NewApplication(),
		opts:    opts,
		channel: chat.ChannelAI,
		ctx:     context.Background(),
		done:    make(chan struct{}),
	}
	if opts.Screen != nil {
		a.app.SetScreen(opts.Screen)
	}
	a.build()
	return a
}

// Bind connects the widget driven by key presses. It must be called before
// Run.
func (a *App) Bind(w *widget.Widget) {
	a.widget = w
}

func (a *App) build() {
	a.header = tview.NewTextView()
	a.header.SetDynamicColors(true)
	a.header.SetBorder(true)
	a.header.SetBorderColor(tcell.ColorDarkCyan)
	a.header.SetBorderPadding(0, 0, 1, 1)

	a.messages = tview.NewTextView()
	a.messages.SetDynamicColors(true)
	a.messages.SetScrollable(true)
	a.messages.SetWordWrap(true)

	a.status = tview.NewTextView()
	a.status.SetDynamicColors(true)

	a.attachments = tview.NewTextView()
	a.attachments.SetDynamicColors(true)

	a.input = tview.NewInputField()
	a.input.SetLabel("> ")
	a.input.SetPlaceholder("Type a message (Ctrl+O attach, Ctrl+L formula)")
	a.input.SetFieldBackgroundColor(tcell.ColorBlack)
	a.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			a.submit()
		}
	})

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 3, 0, false).
		AddItem(a.messages, 0, 1, false).
		AddItem(a.status, 1, 0, false).
		AddItem(a.attachments, 1, 0, false).
		AddItem(a.input, 1, 0, true)

	a.pages = tview.NewPages().AddPage(pageMain, layout, true, true)
	a.app.SetRoot(a.pages, true)
	a.app.SetInputCapture(a.handleKey)
	a.redrawHeader()
}

func (a *App) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if name, _ := a.pages.GetFrontPage(); name != pageMain {
		return ev
	}
	switch ev.Key() {
	case tcell.KeyTab:
		a.switchChannel()
		return nil
	case tcell.KeyCtrlO:
		a.showAttachPrompt()
		return nil
	case tcell.KeyCtrlX:
		a.pending = nil
		a.attachments.SetText("")
		return nil
	case tcell.KeyCtrlL:
		a.showLatexPrompt()
		return nil
	case tcell.KeyCtrlY:
		a.copyLast()
		return nil
	case tcell.KeyCtrlK:
		a.shown = nil
		a.messages.Clear()
		return nil
	}
	return ev
}

func (a *App) submit() {
	if a.widget == nil {
		return
	}
	draft := widget.Draft{
		Text:        a.input.GetText(),
		Attachments: attachment.GroupFor(a.pending...),
	}
	if strings.TrimSpace(draft.Text) == "" && draft.Attachments.Empty() {
		go a.widget.Send(a.ctx, draft)
		return
	}
	a.input.SetText("")
	a.pending = nil
	a.attachments.SetText("")
	go func() {
		if err := a.widget.Send(a.ctx, draft); err != nil {
			logger.DebugCF("tui", "Send finished with error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}

func (a *App) switchChannel() {
	if a.widget == nil {
		return
	}
	next := a.channel.Other()
	go func() {
		if err := a.widget.SwitchChannel(next); err != nil {
			logger.WarnCF("tui", "Channel switch failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}

func (a *App) showAttachPrompt() {
	field := tview.NewInputField().SetLabel("File path: ").SetFieldWidth(0)
	field.SetDoneFunc(func(key tcell.Key) {
		path := strings.TrimSpace(field.GetText())
		a.closeModal(pageAttach)
		if key != tcell.KeyEnter || path == "" {
			return
		}
		a.attach(path)
	})
	field.SetBorder(true).SetTitle(" Attach file (Esc to cancel) ")
	a.pages.AddPage(pageAttach, modal(field, 70, 3), true, true)
	a.app.SetFocus(field)
}

func (a *App) attach(path string) {
	f, err := attachment.Load(path, a.opts.MaxUploadBytes)
	if err != nil {
		logger.WarnCF("tui", "Attachment rejected", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		a.setNotice(widget.LevelError, err.Error())
		return
	}
	a.pending = append(a.pending, f)
	a.attachments.SetText(formatAttachments(a.pending))
}

func (a *App) showLatexPrompt() {
	form := tview.NewForm()
	form.AddInputField("Formula", "", 0, nil, nil)
	insert := func() {
		formula := form.GetFormItemByLabel("Formula").(*tview.InputField).GetText()
		a.input.SetText(latex.Insert(a.input.GetText(), formula))
		a.closeModal(pageLatex)
	}
	form.AddButton("Insert", insert)
	form.AddButton("Cancel", func() { a.closeModal(pageLatex) })
	form.SetCancelFunc(func() { a.closeModal(pageLatex) })

	list := tview.NewList().ShowSecondaryText(false)
	for i, s := range latex.Shortcuts() {
		s := s
		var key rune
		if i < 9 {
			key = rune('1' + i)
		} else if i == 9 {
			key = '0'
		}
		list.AddItem(formatShortcut(s), "", key, func() {
			field := form.GetFormItemByLabel("Formula").(*tview.InputField)
			field.SetText(field.GetText() + s.Command)
			a.app.SetFocus(form)
		})
	}
	list.SetDoneFunc(func() { a.closeModal(pageLatex) })

	body := tview.NewFlex().
		AddItem(form, 0, 2, true).
		AddItem(list, 24, 0, false)
	body.SetBorder(true).SetTitle(" Insert formula (Tab to move, Esc to cancel) ")
	a.pages.AddPage(pageLatex, modal(body, 80, 14), true, true)
	a.app.SetFocus(form)
}

func (a *App) closeModal(name string) {
	a.pages.RemovePage(name)
	a.app.SetFocus(a.input)
}

func (a *App) copyLast() {
	if len(a.shown) == 0 {
		return
	}
	text := render.PlainText(a.shown[len(a.shown)-1], nil)
	if err := clipboard.WriteAll(text); err != nil {
		a.setNotice(widget.LevelError, "Clipboard unavailable")
		return
	}
	a.setNotice(widget.LevelSuccess, "Copied last message")
}

func (a *App) redrawHeader() {
	a.header.SetText(formatHeader(a.channel, a.frame))
}

func (a *App) redrawMessages() {
	a.messages.SetText(formatMessages(a.shown))
	a.messages.ScrollToEnd()
}

func (a *App) redrawStatus() {
	var parts []string
	if a.typing {
		parts = append(parts, "[gray]typing…[-]")
	}
	if a.notice != "" {
		parts = append(parts, a.notice)
	}
	a.status.SetText(strings.Join(parts, "  "))
}

func (a *App) setNotice(level widget.Level, text string) {
	a.notice = formatNotice(level, text)
	a.redrawStatus()
}

// queue hands f to the event loop without waiting for it. The widget calls
// View methods while holding its lock, so nothing here may block on tview.
// Updates run in order: pending ones are drained by a single flush.
func (a *App) queue(f func()) {
	if a.isDone() {
		return
	}
	a.updMu.Lock()
	a.updates = append(a.updates, f)
	start := !a.flushing
	a.flushing = true
	a.updMu.Unlock()
	if start {
		// Parks here if the loop has died; the goroutine holds no locks.
		go a.app.QueueUpdateDraw(a.flush)
	}
}

// flush runs inside the event loop.
func (a *App) flush() {
	a.updMu.Lock()
	batch := a.updates
	a.updates = nil
	a.flushing = false
	a.updMu.Unlock()
	for _, f := range batch {
		f()
	}
}

func (a *App) isDone() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *App) markDone() {
	a.doneOnce.Do(func() { close(a.done) })
}

func (a *App) Replace(ins []render.Instruction) {
	cp := append([]render.Instruction(nil), ins...)
	a.queue(func() {
		a.shown = cp
		a.redrawMessages()
	})
}

func (a *App) Clear() {
	a.queue(func() {
		a.shown = nil
		a.messages.Clear()
	})
}

func (a *App) Append(in render.Instruction) {
	a.queue(func() {
		a.shown = append(a.shown, in)
		a.redrawMessages()
	})
}

func (a *App) SetTyping(on bool) {
	a.queue(func() {
		a.typing = on
		a.redrawStatus()
	})
}

func (a *App) Notify(level widget.Level, text string) {
	a.queue(func() {
		a.setNotice(level, text)
	})
	// Notices fade after a few seconds.
	time.AfterFunc(4*time.Second, func() {
		a.queue(func() {
			if a.notice == formatNotice(level, text) {
				a.notice = ""
				a.redrawStatus()
			}
		})
	})
}

func (a *App) SetChannel(ch chat.Channel) {
	a.queue(func() {
		a.channel = ch
		a.redrawHeader()
	})
}

// Run blocks until the user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.ctx = ctx
	defer a.markDone()
	go func() {
		select {
		case <-ctx.Done():
			a.Stop()
		case <-a.done:
		}
	}()
	go a.animate(ctx)
	return a.app.Run()
}

// Stop ends the event loop. It is safe to call more than once and before Run.
func (a *App) Stop() {
	a.markDone()
	a.app.Stop()
}

// Done is closed once the event loop has stopped or Stop was called.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// animate cycles the idle marker shown in ai mode.
func (a *App) animate(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case <-ticker.C:
			a.queue(func() {
				if a.channel != chat.ChannelAI {
					return
				}
				a.frame++
				a.redrawHeader()
			})
		}
	}
}

func modal(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}
