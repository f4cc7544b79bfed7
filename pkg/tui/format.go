package tui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/duochat/duochat/pkg/attachment"
	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/latex"
	"github.com/duochat/duochat/pkg/render"
	"github.com/duochat/duochat/pkg/widget"
)

type senderStyle struct {
	label string
	color string
}

var senderStyles = map[chat.Sender]senderStyle{
	chat.SenderUser:    {"You", "aqua"},
	chat.SenderAI:      {"Assistant", "green"},
	chat.SenderSupport: {"Support", "yellow"},
	chat.SenderSystem:  {"System", "gray"},
}

var channelTitles = map[chat.Channel]string{
	chat.ChannelAI:      "AI assistant",
	chat.ChannelSupport: "Human support",
}

var levelColors = map[widget.Level]string{
	widget.LevelInfo:    "aqua",
	widget.LevelSuccess: "green",
	widget.LevelWarning: "yellow",
	widget.LevelError:   "red",
}

var idleFrames = []string{"◐", "◓", "◑", "◒"}

// formatMessage renders one instruction as tview-tagged text. Every value
// that came from the backend goes through tview.Escape.
func formatMessage(in render.Instruction) string {
	style, ok := senderStyles[in.Sender]
	if !ok {
		style = senderStyles[chat.SenderSystem]
	}

	var b strings.Builder
	if in.Time != "" {
		fmt.Fprintf(&b, "[gray]%s[-] ", tview.Escape(in.Time))
	}
	fmt.Fprintf(&b, "[%s::b]%s[-::-] ", style.color, style.label)

	text := render.PlainText(in, latex.Unicode)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n    ")
		}
		b.WriteString(tview.Escape(line))
	}

	if in.Media != render.MediaNone {
		fmt.Fprintf(&b, "\n    [blue]%s %s[-] [gray]%s[-]",
			mediaGlyph(in.Media), tview.Escape(in.FileName), tview.Escape(in.FileURL))
	}
	return b.String()
}

func mediaGlyph(m render.Media) string {
	switch m {
	case render.MediaImage:
		return "▣ image"
	case render.MediaVideo:
		return "▶ video"
	case render.MediaAudio:
		return "♪ audio"
	default:
		return "⇩ file"
	}
}

func formatMessages(ins []render.Instruction) string {
	parts := make([]string, len(ins))
	for i, in := range ins {
		parts[i] = formatMessage(in)
	}
	return strings.Join(parts, "\n")
}

func formatHeader(ch chat.Channel, frame int) string {
	title := tview.Escape(channelTitles[ch])
	if ch == chat.ChannelAI {
		return fmt.Sprintf("[green]%s[-] [::b]%s[::-]  [gray]Tab: switch to support[-]",
			idleFrames[frame%len(idleFrames)], title)
	}
	return fmt.Sprintf("[yellow]☎[-] [::b]%s[::-]  [gray]Tab: switch to AI[-]", title)
}

func formatNotice(level widget.Level, text string) string {
	color, ok := levelColors[level]
	if !ok {
		color = "white"
	}
	return fmt.Sprintf("[%s]%s[-]", color, tview.Escape(text))
}

func formatAttachments(files []attachment.File) string {
	if len(files) == 0 {
		return ""
	}
	parts := make([]string, len(files))
	for i, f := range files {
		parts[i] = tview.Escape(attachment.Describe(f))
	}
	return "[gray]Attached:[-] " + strings.Join(parts, ", ") + "  [gray]Ctrl+X to drop[-]"
}

func formatShortcut(s latex.Shortcut) string {
	return fmt.Sprintf("%s  %s", s.Symbol, s.Command)
}
