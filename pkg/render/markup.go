package render

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/duochat/duochat/pkg/latex"
)

type markupSegment struct {
	Text   string
	Inline bool
	Block  bool
}

type markupData struct {
	Class    string
	Segments []markupSegment
	Media    string
	FileURL  string
	FileName string
	Time     string
}

// Every value is escaped by html/template; formulas keep their MathJax
// delimiters so a page-level typesetter can pick them up.
var messageTemplate = template.Must(template.New("message").Parse(
	`<div class="message {{.Class}}-message">` +
		`{{if .Segments}}<div class="message-content">` +
		`{{range .Segments}}` +
		`{{if .Inline}}<span class="latex">\({{.Text}}\)</span>` +
		`{{else if .Block}}<div class="latex-block">\[{{.Text}}\]</div>` +
		`{{else}}{{.Text}}{{end}}` +
		`{{end}}</div>{{end}}` +
		`{{if eq .Media "image"}}<div class="message-file"><img src="{{.FileURL}}" class="file-preview" alt="{{.FileName}}"></div>` +
		`{{else if eq .Media "video"}}<div class="message-file"><video controls class="file-preview"><source src="{{.FileURL}}" type="video/mp4"></video></div>` +
		`{{else if eq .Media "audio"}}<div class="message-file"><audio controls><source src="{{.FileURL}}"></audio></div>` +
		`{{else if eq .Media "download"}}<div class="message-file"><a href="{{.FileURL}}" download="{{.FileName}}" class="file-download">Download file</a></div>` +
		`{{end}}` +
		`<div class="message-time">{{.Time}}</div>` +
		`</div>`))

// Markup renders one instruction as an HTML fragment.
func Markup(in Instruction) string {
	data := markupData{
		Class:    string(in.Sender),
		Media:    in.Media.String(),
		FileURL:  in.FileURL,
		FileName: in.FileName,
		Time:     in.Time,
	}
	for _, s := range in.Segments {
		data.Segments = append(data.Segments, markupSegment{
			Text:   s.Value,
			Inline: s.Kind == latex.Inline,
			Block:  s.Kind == latex.Block,
		})
	}

	var buf bytes.Buffer
	if err := messageTemplate.Execute(&buf, data); err != nil {
		// Only reachable on a writer error, which bytes.Buffer never returns.
		return ""
	}
	return buf.String()
}

// MarkupAll renders instructions one per line, preserving order.
func MarkupAll(ins []Instruction) string {
	parts := make([]string, len(ins))
	for i, in := range ins {
		parts[i] = Markup(in)
	}
	return strings.Join(parts, "\n")
}
