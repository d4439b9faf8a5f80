package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLKeepsAllowedMarkup(t *testing.T) {
	r := New()
	out, err := r.HTML("# Heading\n\nSome **bold** and *soft* text with `code`.\n\n- one\n- two\n\n> quoted\n")
	require.NoError(t, err)

	assert.Contains(t, out, "<h1>Heading</h1>")
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, "<em>soft</em>")
	assert.Contains(t, out, "<code>code</code>")
	assert.Contains(t, out, "<li>one</li>")
	assert.Contains(t, out, "<blockquote>")
}

func TestHTMLLinks(t *testing.T) {
	r := New()
	out, err := r.HTML(`[site](https://example.com "Example") and [bad](javascript:alert(1))`)
	require.NoError(t, err)

	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, `title="Example"`)
	assert.NotContains(t, out, "javascript")
}

func TestHTMLDropsRawHTML(t *testing.T) {
	r := New()
	out, err := r.HTML("<script>alert(1)</script>\n\nhello <img src=x onerror=alert(2)> world")
	require.NoError(t, err)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "<img")
	assert.NotContains(t, out, "onerror")
	assert.Contains(t, out, "hello")
}

func TestSanitizeStripsDisallowedAttributesAndTags(t *testing.T) {
	r := New()
	out := r.Sanitize(`<p class="x" onclick="steal()">hi <span style="color:red">there</span></p><a href="/rel" target="_blank" rel="x">link</a><iframe src="https://evil"></iframe>`)

	assert.Equal(t, `<p>hi there</p><a href="/rel">link</a>`, out)
}

func TestHTMLTable(t *testing.T) {
	r := New()
	out, err := r.HTML("| a | b |\n|---|---|\n| 1 | 2 |\n")
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>1</td>")
}
