// Package render turns message records into view-independent render
// instructions, and instructions into escaped HTML markup.
package render

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/duochat/duochat/pkg/chat"
	"github.com/duochat/duochat/pkg/latex"
)

// Media is the widget used for a message's attached file.
type Media int

const (
	MediaNone Media = iota
	MediaImage
	MediaVideo
	MediaAudio
	MediaDownload
)

func (m Media) String() string {
	switch m {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	case MediaDownload:
		return "download"
	default:
		return "none"
	}
}

var mediaByExt = map[string]Media{
	"jpg": MediaImage, "jpeg": MediaImage, "png": MediaImage, "gif": MediaImage, "webp": MediaImage,
	"mp4": MediaVideo, "avi": MediaVideo, "mov": MediaVideo, "webm": MediaVideo,
	"mp3": MediaAudio, "wav": MediaAudio, "ogg": MediaAudio,
}

// Classify picks the media widget from the extension of filePath. Any path
// with an unknown or missing extension is a download.
func Classify(filePath string) Media {
	if filePath == "" {
		return MediaNone
	}
	ext := filePath
	if i := strings.LastIndexByte(filePath, '.'); i >= 0 {
		ext = filePath[i+1:]
	}
	if m, ok := mediaByExt[strings.ToLower(ext)]; ok {
		return m
	}
	return MediaDownload
}

// Instruction is everything a view needs to draw one message.
type Instruction struct {
	Sender   chat.Sender
	Segments []latex.Segment
	Media    Media
	FileURL  string
	FileName string
	Time     string
	HasMath  bool
}

// Options controls URL and time formatting. The zero value is usable.
type Options struct {
	// UploadsPrefix is prepended to file paths; defaults to "/uploads/".
	UploadsPrefix string
	// TimeLayout defaults to "15:04:05".
	TimeLayout string
	// Location defaults to time.Local.
	Location *time.Location
	// Locale selects the digits used in times, e.g. "fa" for Persian digits.
	Locale string

	digits *strings.Replacer
}

// WithDefaults fills unset fields and prepares the digit table.
func (o Options) WithDefaults() Options {
	if o.UploadsPrefix == "" {
		o.UploadsPrefix = "/uploads/"
	}
	if o.TimeLayout == "" {
		o.TimeLayout = "15:04:05"
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.digits == nil {
		o.digits = digitReplacer(o.Locale)
	}
	return o
}

func digitReplacer(locale string) *strings.Replacer {
	if locale == "" {
		return nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil
	}
	p := message.NewPrinter(tag)
	pairs := make([]string, 0, 20)
	changed := false
	for d := 0; d < 10; d++ {
		ascii := strconv.Itoa(d)
		local := p.Sprint(d)
		changed = changed || local != ascii
		pairs = append(pairs, ascii, local)
	}
	if !changed {
		return nil
	}
	return strings.NewReplacer(pairs...)
}

// FileURL joins the uploads prefix with the escaped segments of filePath.
func FileURL(prefix, filePath string) string {
	parts := strings.Split(strings.TrimLeft(filePath, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + strings.Join(parts, "/")
}

// FormatTime renders ts in the configured layout and digits. The zero time
// renders as "".
func FormatTime(ts time.Time, opts Options) string {
	if ts.IsZero() {
		return ""
	}
	opts = opts.WithDefaults()
	s := ts.In(opts.Location).Format(opts.TimeLayout)
	if opts.digits != nil {
		s = opts.digits.Replace(s)
	}
	return s
}

// Build maps a message record to its render instruction. It has no side
// effects.
func Build(m chat.Message, opts Options) Instruction {
	opts = opts.WithDefaults()

	in := Instruction{
		Sender:   m.Sender,
		Segments: latex.Segments(m.Content),
		Media:    Classify(m.FilePath),
		Time:     FormatTime(m.Timestamp, opts),
	}
	if in.Media != MediaNone {
		in.FileURL = FileURL(opts.UploadsPrefix, m.FilePath)
		in.FileName = path.Base(m.FilePath)
	}
	for _, s := range in.Segments {
		if s.Kind != latex.Text {
			in.HasMath = true
			break
		}
	}
	return in
}

// BuildAll maps a message list preserving order.
func BuildAll(msgs []chat.Message, opts Options) []Instruction {
	opts = opts.WithDefaults()
	out := make([]Instruction, len(msgs))
	for i, m := range msgs {
		out[i] = Build(m, opts)
	}
	return out
}

// PlainText joins text segments and delimits formulas with typeset applied.
// A nil typeset keeps formulas as written.
func PlainText(in Instruction, typeset func(string) string) string {
	var b strings.Builder
	for _, s := range in.Segments {
		if s.Kind == latex.Text {
			b.WriteString(s.Value)
			continue
		}
		v := s.Value
		if typeset != nil {
			v = typeset(v)
		}
		b.WriteString(v)
	}
	return b.String()
}
