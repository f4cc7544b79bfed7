package latex

import (
	"regexp"
	"strings"
)

var (
	fracPattern = regexp.MustCompile(`\\frac\{([^{}]*)\}\{([^{}]*)\}`)
	sqrtPattern = regexp.MustCompile(`\\sqrt\{([^{}]*)\}`)
	envPattern  = regexp.MustCompile(`\\(begin|end)\{[a-z*]+\}`)
)

// Longer commands come first so \infty is not read as \in followed by "fty".
var symbolReplacer = strings.NewReplacer(
	`\rightarrow`, "→",
	`\leftarrow`, "←",
	`\approx`, "≈",
	`\lambda`, "λ",
	`\partial`, "∂",
	`\epsilon`, "ε",
	`\forall`, "∀",
	`\exists`, "∃",
	`\infty`, "∞",
	`\alpha`, "α",
	`\gamma`, "γ",
	`\delta`, "δ",
	`\Delta`, "Δ",
	`\theta`, "θ",
	`\sigma`, "σ",
	`\Sigma`, "Σ",
	`\omega`, "ω",
	`\Omega`, "Ω",
	`\times`, "×",
	`\nabla`, "∇",
	`\beta`, "β",
	`\sqrt`, "√",
	`\cdot`, "·",
	`\prod`, "∏",
	`\leq`, "≤",
	`\geq`, "≥",
	`\neq`, "≠",
	`\sum`, "∑",
	`\int`, "∫",
	`\phi`, "φ",
	`\psi`, "ψ",
	`\div`, "÷",
	`\mu`, "μ",
	`\pi`, "π",
	`\pm`, "±",
	`\to`, "→",
	`\in`, "∈",
	`\[`, "",
	`\]`, "",
	`\\`, " ",
	`\,`, " ",
	`\;`, " ",
	`\!`, "",
)

// Unicode is a best-effort plain-text typesetter for terminals: known
// commands become their symbols, simple fractions and roots are flattened.
// Unknown commands are left as written.
func Unicode(formula string) string {
	s := envPattern.ReplaceAllString(formula, "")
	s = fracPattern.ReplaceAllString(s, "($1)/($2)")
	s = sqrtPattern.ReplaceAllString(s, "√($1)")
	s = symbolReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
