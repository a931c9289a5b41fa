package notify

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
)

// Template names.
const (
	TemplateMonthlyReport    = "monthly-report"
	TemplateGoalAchieved     = "goal-achieved"
	TemplatePerformanceAlert = "performance-alert"
)

//go:embed templates/*.html
var embedded embed.FS

// Templates holds the parsed message templates.
type Templates struct {
	set *template.Template
}

// LoadTemplates parses the built-in templates. When dir is set, files in it
// named <template>.html replace the built-in ones.
func LoadTemplates(dir string) (*Templates, error) {
	base, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, eris.Wrap(err, "notify: open embedded templates")
	}
	set, err := template.ParseFS(base, "*.html")
	if err != nil {
		return nil, eris.Wrap(err, "notify: parse embedded templates")
	}
	if dir != "" {
		matches, err := fs.Glob(os.DirFS(dir), "*.html")
		if err != nil {
			return nil, eris.Wrapf(err, "notify: list templates in %s", dir)
		}
		if len(matches) > 0 {
			if set, err = set.ParseFS(os.DirFS(dir), "*.html"); err != nil {
				return nil, eris.Wrapf(err, "notify: parse templates in %s", dir)
			}
		}
	}
	return &Templates{set: set}, nil
}

// Render executes the named template with data.
func (t *Templates) Render(name string, data any) (string, error) {
	tpl := t.set.Lookup(name + ".html")
	if tpl == nil {
		return "", eris.Errorf("notify: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "notify: render %s", name)
	}
	return buf.String(), nil
}
