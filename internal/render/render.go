// Package render turns model markdown into the restricted HTML shown to users.
package render

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// AllowedTags is the complete set of elements that survive sanitization.
var AllowedTags = []string{
	"p", "br", "pre", "code",
	"h1", "h2", "h3", "h4", "h5", "h6",
	"strong", "em", "ul", "ol", "li", "blockquote", "a",
	"table", "thead", "tbody", "tr", "th", "td",
}

type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func New() *Renderer {
	policy := bluemonday.NewPolicy()
	policy.AllowElements(AllowedTags...)
	policy.AllowAttrs("href", "title").OnElements("a")
	policy.RequireParseableURLs(true)
	policy.AllowRelativeURLs(true)
	policy.AllowURLSchemes("http", "https", "mailto")

	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: policy,
	}
}

// HTML converts markdown to HTML and strips every element and attribute
// outside the allowlist, keeping the text of stripped elements.
func (r *Renderer) HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return r.Sanitize(buf.String()), nil
}

// Sanitize applies the allowlist to already rendered HTML.
func (r *Renderer) Sanitize(s string) string {
	return r.policy.Sanitize(s)
}
