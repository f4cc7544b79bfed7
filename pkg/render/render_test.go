package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/latex"
)

var utcOpts = Options{Location: time.UTC}

func TestClassify(t *testing.T) {
	tests := map[string]Media{
		"":                 MediaNone,
		"users/a.png":      MediaImage,
		"users/A.JPEG":     MediaImage,
		"clip.mp4":         MediaVideo,
		"voice.mp3":        MediaAudio,
		"voice.ogg":        MediaAudio,
		"bundle.zip":       MediaDownload,
		"no-extension":     MediaDownload,
		"dir.with.dots/x":  MediaDownload,
		"archive.tar.webm": MediaVideo,
	}
	for in, want := range tests {
		assert.Equal(t, want, Classify(in), "Classify(%q)", in)
	}
}

func TestFileURLEscapesSegments(t *testing.T) {
	assert.Equal(t, "/uploads/users/20240101_my%20cat.png", FileURL("/uploads/", "users/20240101_my cat.png"))
	assert.Equal(t, "https://cdn/x/a.png", FileURL("https://cdn/x", "/a.png"))
}

func TestBuild(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 5, 7, 0, time.UTC)
	in := Build(chat.Message{
		Sender:    chat.SenderAI,
		Content:   "area $\\pi r^2$",
		FilePath:  "users/plot.png",
		Timestamp: ts,
	}, utcOpts)

	assert.Equal(t, chat.SenderAI, in.Sender)
	assert.Equal(t, MediaImage, in.Media)
	assert.Equal(t, "/uploads/users/plot.png", in.FileURL)
	assert.Equal(t, "plot.png", in.FileName)
	assert.Equal(t, "09:05:07", in.Time)
	assert.True(t, in.HasMath)
	require.Len(t, in.Segments, 2)
	assert.Equal(t, latex.Inline, in.Segments[1].Kind)
}

func TestBuildZeroTimestampRendersEmpty(t *testing.T) {
	in := Build(chat.Message{Sender: chat.SenderUser, Content: "hi"}, utcOpts)
	assert.Empty(t, in.Time)
	assert.False(t, in.HasMath)
	assert.Equal(t, MediaNone, in.Media)
}

func TestMarkupWidgets(t *testing.T) {
	msgs := []chat.Message{
		{Sender: chat.SenderUser, FilePath: "users/a.png"},
		{Sender: chat.SenderSupport, FilePath: "admin/b.mp4"},
		{Sender: chat.SenderAI, FilePath: "users/c.mp3"},
		{Sender: chat.SenderUser, FilePath: "users/d.zip"},
	}
	out := BuildAll(msgs, utcOpts)
	require.Len(t, out, 4)

	assert.Contains(t, Markup(out[0]), `<img src="/uploads/users/a.png" class="file-preview"`)
	assert.Contains(t, Markup(out[1]), `<video controls class="file-preview"><source src="/uploads/admin/b.mp4"`)
	assert.Contains(t, Markup(out[2]), `<audio controls><source src="/uploads/users/c.mp3">`)
	assert.Contains(t, Markup(out[3]), `<a href="/uploads/users/d.zip" download="d.zip" class="file-download">`)
	assert.True(t, strings.HasPrefix(Markup(out[1]), `<div class="message support-message">`))
}

func TestMarkupAllPreservesOrderAndCount(t *testing.T) {
	var msgs []chat.Message
	for _, c := range []string{"one", "two", "three", "four", "five"} {
		msgs = append(msgs, chat.Message{Sender: chat.SenderUser, Content: c})
	}

	lines := strings.Split(MarkupAll(BuildAll(msgs, utcOpts)), "\n")
	require.Len(t, lines, 5)
	for i, c := range []string{"one", "two", "three", "four", "five"} {
		assert.Contains(t, lines[i], ">"+c+"<")
	}
}

func TestMarkupEscapesContent(t *testing.T) {
	in := Build(chat.Message{
		Sender:   chat.SenderUser,
		Content:  `<script>alert(1)</script> $a<b$`,
		FilePath: `x"onerror="alert(1).png`,
	}, utcOpts)

	html := Markup(in)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, html, `<span class="latex">\(a&lt;b\)</span>`)
	assert.NotContains(t, html, `"onerror="`)
}

func TestMarkupKeepsBackendFormulaWrappers(t *testing.T) {
	in := Build(chat.Message{
		Sender:  chat.SenderAI,
		Content: `see <div class="latex-block">x^2</div>`,
	}, utcOpts)
	assert.Contains(t, Markup(in), `see <div class="latex-block">\[x^2\]</div>`)
}

func TestMarkupIsIdempotent(t *testing.T) {
	msgs := []chat.Message{
		{Sender: chat.SenderUser, Content: "q", Timestamp: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)},
		{Sender: chat.SenderAI, Content: "a $x$", FilePath: "f.webp", Timestamp: time.Date(2024, 1, 1, 1, 0, 1, 0, time.UTC)},
	}
	first := MarkupAll(BuildAll(msgs, utcOpts))
	second := MarkupAll(BuildAll(msgs, utcOpts))
	assert.Equal(t, first, second)
}

func TestPlainText(t *testing.T) {
	in := Build(chat.Message{Content: `x = $\alpha$`}, utcOpts)
	assert.Equal(t, `x = \alpha`, PlainText(in, nil))
	assert.Equal(t, "x = α", PlainText(in, latex.Unicode))
}

func TestFormatTimeLatinLocale(t *testing.T) {
	ts := time.Date(2024, 1, 1, 13, 4, 5, 0, time.UTC)
	assert.Equal(t, "13:04:05", FormatTime(ts, Options{Location: time.UTC, Locale: "en"}))
	assert.Equal(t, "13:04", FormatTime(ts, Options{Location: time.UTC, TimeLayout: "15:04"}))
}

func TestFormatTimePersianDigits(t *testing.T) {
	ts := time.Date(2024, 1, 1, 13, 4, 5, 0, time.UTC)
	assert.Equal(t, "۱۳:۰۴:۰۵", FormatTime(ts, Options{Location: time.UTC, Locale: "fa"}))
	assert.Equal(t, "۱۳:۰۴", FormatTime(ts, Options{Location: time.UTC, Locale: "fa", TimeLayout: "15:04"}))
	assert.Empty(t, FormatTime(time.Time{}, Options{Locale: "fa"}))

	in := Build(chat.Message{Content: "hi", Timestamp: ts}, Options{Location: time.UTC, Locale: "fa"})
	assert.Equal(t, "۱۳:۰۴:۰۵", in.Time)
}
