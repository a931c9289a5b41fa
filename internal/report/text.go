package report

import (
	"fmt"
	"strings"
)

// TextRenderer renders the report as Markdown.
type TextRenderer struct{}

// Ext implements Renderer.
func (TextRenderer) Ext() string { return "md" }

// Render implements Renderer.
func (TextRenderer) Render(m *Model) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", reportTitle)
	for _, h := range headerLines(m) {
		fmt.Fprintf(&b, "%s  \n", h)
	}
	for _, s := range sections(m) {
		fmt.Fprintf(&b, "\n## %s\n\n", s.Title)
		for _, l := range s.Lines {
			fmt.Fprintf(&b, "- %s: %s\n", l.Label, l.Value)
		}
		if s.Emphasis != nil {
			fmt.Fprintf(&b, "\n**%s: %s**\n", s.Emphasis.Label, s.Emphasis.Value)
		}
	}
	fmt.Fprintf(&b, "\n---\n\n%s\n", strings.Join(footerLines(m), "  \n"))
	return []byte(b.String()), nil
}
