// Package latex handles formula insertion into composed messages and the
// detection of formulas in received content.
package latex

import (
	"regexp"
	"strings"
)

type Kind int

const (
	Text Kind = iota
	Inline
	Block
)

func (k Kind) String() string {
	switch k {
	case Inline:
		return "inline"
	case Block:
		return "block"
	default:
		return "text"
	}
}

// Segment is a run of content that is either plain text or a formula.
type Segment struct {
	Kind  Kind
	Value string
}

// Shortcut is a symbol offered by the formula keyboard.
type Shortcut struct {
	Symbol      string
	Command     string
	Description string
}

var shortcuts = []Shortcut{
	{"α", `\alpha`, "alpha"},
	{"β", `\beta`, "beta"},
	{"γ", `\gamma`, "gamma"},
	{"∑", `\sum`, "sum"},
	{"∫", `\int`, "integral"},
	{"√", `\sqrt`, "square root"},
	{"∞", `\infty`, "infinity"},
	{"π", `\pi`, "pi"},
	{"≠", `\neq`, "not equal"},
	{"≈", `\approx`, "approximately"},
}

// Shortcuts returns a copy of the formula keyboard.
func Shortcuts() []Shortcut {
	out := make([]Shortcut, len(shortcuts))
	copy(out, shortcuts)
	return out
}

// IsBlock reports whether formula should be typeset as a display block.
func IsBlock(formula string) bool {
	return strings.Contains(formula, `\begin{`) || strings.Contains(formula, `\[`)
}

// Wrap delimits formula for inclusion in message text: $$...$$ for display
// environments, $...$ otherwise. Blank input wraps to "".
func Wrap(formula string) string {
	formula = strings.TrimSpace(formula)
	if formula == "" {
		return ""
	}
	if IsBlock(formula) {
		return "$$" + formula + "$$"
	}
	return "$" + formula + "$"
}

// Insert appends the wrapped formula and a separating space to input.
func Insert(input, formula string) string {
	wrapped := Wrap(formula)
	if wrapped == "" {
		return input
	}
	return input + wrapped + " "
}

// InsertShortcut appends a keyboard command and a separating space to input.
func InsertShortcut(input string, s Shortcut) string {
	return input + s.Command + " "
}

// The backend wraps formulas it finds in stored text; both its wrappers and
// raw dollar delimiters are recognised. Alternation order matters: display
// forms are tried before inline ones at the same offset.
var segmentPattern = regexp.MustCompile(
	`(?s)<div class="latex-block">(.*?)</div>` +
		`|<span class="latex">(.*?)</span>` +
		`|\$\$(.+?)\$\$` +
		`|\$([^$\n]+?)\$`)

// Segments splits content into text and formula runs, in order. Empty
// formulas are dropped; adjacent text is never split.
func Segments(content string) []Segment {
	if content == "" {
		return nil
	}

	var out []Segment
	appendText := func(s string) {
		if s == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].Kind == Text {
			out[n-1].Value += s
			return
		}
		out = append(out, Segment{Kind: Text, Value: s})
	}

	last := 0
	for _, m := range segmentPattern.FindAllStringSubmatchIndex(content, -1) {
		appendText(content[last:m[0]])
		last = m[1]

		var seg Segment
		switch {
		case m[2] >= 0:
			seg = Segment{Kind: Block, Value: content[m[2]:m[3]]}
		case m[4] >= 0:
			seg = Segment{Kind: Inline, Value: content[m[4]:m[5]]}
		case m[6] >= 0:
			seg = Segment{Kind: Block, Value: content[m[6]:m[7]]}
		default:
			seg = Segment{Kind: Inline, Value: content[m[8]:m[9]]}
		}
		seg.Value = strings.TrimSpace(seg.Value)
		if seg.Value == "" {
			continue
		}
		out = append(out, seg)
	}
	appendText(content[last:])
	return out
}

// HasMath reports whether content contains at least one formula.
func HasMath(content string) bool {
	for _, s := range Segments(content) {
		if s.Kind != Text {
			return true
		}
	}
	return false
}
