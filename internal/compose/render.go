package compose

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/email.html
var templateFS embed.FS

const dateLayout = "02/01/2006 15h04"

// Renderer turns a batch into the HTML body of the notification.
type Renderer struct {
	tmpl     *template.Template
	md       goldmark.Markdown
	policy   *bluemonday.Policy
	location *time.Location
}

// NewRenderer parses the email template. Dates are shown in loc.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{
		md:       goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps())),
		policy:   summaryPolicy(),
		location: loc,
	}

	tmpl, err := template.New("email.html").Funcs(template.FuncMap{
		"markdown": r.renderMarkdown,
		"date":     r.formatDate,
	}).ParseFS(templateFS, "templates/email.html")
	if err != nil {
		return nil, fmt.Errorf("parsing email template: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// Render produces the HTML body: an index linking to every entry, then one
// section per entry.
func (r *Renderer) Render(b Batch) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, b); err != nil {
		return "", fmt.Errorf("rendering notification: %w", err)
	}
	return buf.String(), nil
}

// summaryPolicy allows the markup goldmark emits for plain summaries.
func summaryPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "h3", "h4", "h5", "h6",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.RequireNoReferrerOnLinks(true)
	return p
}

func (r *Renderer) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(text) + "</pre>")
	}
	return template.HTML(r.policy.Sanitize(buf.String())) //nolint: gosec
}

func (r *Renderer) formatDate(t time.Time) string {
	return t.In(r.location).Format(dateLayout)
}
