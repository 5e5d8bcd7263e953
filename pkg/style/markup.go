package style

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// tagPattern matches innermost pairs: the content holds no "[" other
// than the ones opening ANSI sequences left by inner tags
var tagPattern = regexp.MustCompile(`\[([a-z_]+)\]((?:[^\[]|\x1b\[)*?)\[/([a-z_]+)\]`)

// MarkupParser renders [tag]text[/tag] markup with named styles. Unknown
// tags and mismatched pairs are left as they are.
type MarkupParser struct {
	styles map[string]lipgloss.Style
	plain  bool
}

// NewMarkupParser creates a parser with the default tags
func NewMarkupParser() *MarkupParser {
	return &MarkupParser{
		styles: map[string]lipgloss.Style{
			"title":   TitleStyle,
			"success": SuccessStyle,
			"error":   ErrorStyle,
			"warning": WarningStyle,
			"info":    InfoStyle,
			"code":    CodeStyle,
			"path":    PathStyle,
			"muted":   MutedStyle,
			"bold":    lipgloss.NewStyle().Bold(true),
		},
	}
}

// Plain returns a parser that strips known tags instead of styling them
func (p *MarkupParser) Plain() *MarkupParser {
	return &MarkupParser{styles: p.styles, plain: true}
}

// AddStyle registers or replaces a tag
func (p *MarkupParser) AddStyle(tag string, style lipgloss.Style) {
	p.styles[tag] = style
}

// Render processes markup. Nested tags resolve from the inside out.
func (p *MarkupParser) Render(text string) string {
	for {
		next := tagPattern.ReplaceAllStringFunc(text, func(match string) string {
			m := tagPattern.FindStringSubmatch(match)
			style, ok := p.styles[m[1]]
			if !ok || m[1] != m[3] {
				return match
			}
			if p.plain {
				return m[2]
			}
			return style.Render(m[2])
		})
		if next == text {
			return text
		}
		text = next
	}
}

// RenderTemplate substitutes {{name}} variables, then renders markup
func (p *MarkupParser) RenderTemplate(template string, vars map[string]string) string {
	for key, value := range vars {
		template = strings.ReplaceAll(template, "{{"+key+"}}", value)
	}
	return p.Render(template)
}

var defaultParser = NewMarkupParser()

// Render uses the default parser
func Render(text string) string {
	return defaultParser.Render(text)
}

// RenderTemplate uses the default parser
func RenderTemplate(template string, vars map[string]string) string {
	return defaultParser.RenderTemplate(template, vars)
}

// Strip removes known markup tags without styling
func Strip(text string) string {
	return defaultParser.Plain().Render(text)
}
