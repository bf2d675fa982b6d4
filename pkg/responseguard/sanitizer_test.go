// pkg/responseguard/sanitizer_test.go

package responseguard

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aegis-security/aegis/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSanitizer(t *testing.T, mutate func(*config.Options)) *Sanitizer {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func TestXSSCorpusNeutralized(t *testing.T) {
	s := newTestSanitizer(t, nil)

	tests := []struct {
		name    string
		input   string
		mustNot []string
	}{
		{
			name:    "script element",
			input:   `<p>hello</p><script>alert(1)</script>`,
			mustNot: []string{"<script", "alert(1)"},
		},
		{
			name:    "event handler attribute",
			input:   `<img src=x onerror=alert(1)>`,
			mustNot: []string{"onerror", "alert(1)", "<img"},
		},
		{
			name:    "javascript url scheme",
			input:   `<a href="javascript:alert(1)">click</a>`,
			mustNot: []string{"javascript:"},
		},
		{
			name:    "data url scheme",
			input:   `<a href="data:text/html,<script>alert(1)</script>">x</a>`,
			mustNot: []string{"data:"},
		},
		{
			name:    "embedded document",
			input:   `<iframe src="https://evil.example"></iframe>ok`,
			mustNot: []string{"<iframe"},
		},
		{
			name:    "malformed nesting bypass attempt",
			input:   `<p><scr<script>ipt>alert(1)</script>`,
			mustNot: []string{"<script"},
		},
		{
			name:    "style with expression",
			input:   `<div style="background:url(javascript:alert(1))">x</div>`,
			mustNot: []string{"style=", "javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.SanitizeResponse(tt.input, FormatHTML)
			for _, forbidden := range tt.mustNot {
				assert.NotContains(t, out, forbidden)
			}
		})
	}
}

func TestHTMLAllowListPreserved(t *testing.T) {
	s := newTestSanitizer(t, nil)

	in := `<h2>Title</h2><p>Some <strong>bold</strong> and <em>italic</em> text.</p>` +
		`<ul><li>one</li><li>two</li></ul>` +
		`<blockquote>quoted</blockquote>`
	out := s.SanitizeResponse(in, FormatHTML)

	for _, keep := range []string{"<h2>", "<p>", "<strong>", "<em>", "<ul>", "<li>", "<blockquote>"} {
		assert.Contains(t, out, keep)
	}
}

func TestExternalLinksGetDefensiveAttributes(t *testing.T) {
	s := newTestSanitizer(t, nil)

	out := s.SanitizeResponse(`<a href="https://example.com" title="t">ref</a>`, FormatHTML)
	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, "nofollow")
	assert.Contains(t, out, "noreferrer")
	assert.Contains(t, out, `target="_blank"`)
}

func TestLinksDisabledStripsAnchors(t *testing.T) {
	s := newTestSanitizer(t, func(cfg *config.Options) {
		cfg.AllowLinks = false
	})

	out := s.SanitizeResponse(`<p>see <a href="https://example.com">docs</a></p>`, FormatHTML)
	assert.NotContains(t, out, "<a")
	assert.Contains(t, out, "docs")
}

func TestCodeBlocksWrappedInIsolatingContainer(t *testing.T) {
	s := newTestSanitizer(t, nil)

	out := s.SanitizeResponse(`<p>run</p><pre><code>rm -rf ./build</code></pre>`, FormatHTML)
	assert.Contains(t, out, `<div class="aegis-code-block"><pre>`)
	assert.Contains(t, out, "rm -rf ./build")

	// A second pass must not wrap the wrapper again.
	again := s.SanitizeResponse(out, FormatHTML)
	assert.Equal(t, 1, strings.Count(again, codeBlockClass))
}

func TestHTMLDisabledStripsEverything(t *testing.T) {
	s := newTestSanitizer(t, func(cfg *config.Options) {
		cfg.AllowHTML = false
	})

	out := s.SanitizeResponse(`<p>hello <b>world</b></p><script>alert(1)</script>`, FormatHTML)
	assert.NotContains(t, out, "<")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "world")
}

func TestMarkdownLinkSchemes(t *testing.T) {
	s := newTestSanitizer(t, nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "https kept",
			in:   "see [docs](https://example.com/guide)",
			want: "see [docs](https://example.com/guide)",
		},
		{
			name: "mailto kept",
			in:   "write [us](mailto:team@example.com)",
			want: "write [us](mailto:team@example.com)",
		},
		{
			name: "javascript reduced to label",
			in:   "click [here](javascript:alert%281%29)",
			want: "click here",
		},
		{
			name: "data scheme reduced to label",
			in:   "open [file](data:text/html;base64,PHNjcmlwdD4)",
			want: "open file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.SanitizeResponse(tt.in, FormatMarkdown))
		})
	}
}

func TestMarkdownInlineHTML(t *testing.T) {
	// HTML allowed: angle brackets render as literal text.
	s := newTestSanitizer(t, nil)
	out := s.SanitizeResponse("safe <script>alert(1)</script> text", FormatMarkdown)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")

	// HTML disabled: inline HTML is stripped entirely.
	s = newTestSanitizer(t, func(cfg *config.Options) {
		cfg.AllowHTML = false
	})
	out = s.SanitizeResponse("safe <script>alert(1)</script> text", FormatMarkdown)
	assert.NotContains(t, out, "script")
}

func TestMarkdownDisabledFallsBackToPlain(t *testing.T) {
	s := newTestSanitizer(t, func(cfg *config.Options) {
		cfg.AllowMarkdown = false
	})

	in := "see [docs](https://example.com) for <b>details</b>"
	out := s.SanitizeResponse(in, FormatMarkdown)
	assert.Equal(t, "see [docs](https://example.com) for &lt;b&gt;details&lt;/b&gt;", out)

	// With markdown enabled the same input goes through the markdown path.
	s = newTestSanitizer(t, nil)
	assert.Contains(t, s.SanitizeResponse(in, FormatMarkdown), "[docs](https://example.com)")
}

func TestPlainTextAlwaysEncoded(t *testing.T) {
	s := newTestSanitizer(t, nil)

	out := s.SanitizeResponse(`<b>x</b> & "y"`, FormatPlain)
	assert.NotContains(t, out, "<b>")
	assert.Contains(t, out, "&lt;b&gt;")

	// Unknown formats fall back to plain.
	out = s.SanitizeResponse("<i>x</i>", "yaml")
	assert.Contains(t, out, "&lt;i&gt;")
}

func TestTruncationMarkerVisible(t *testing.T) {
	s := newTestSanitizer(t, func(cfg *config.Options) {
		cfg.MaxResponseLength = 10
	})

	out := s.SanitizeResponse(strings.Repeat("a", 50), FormatPlain)
	assert.True(t, strings.HasSuffix(out, truncationMarker))
	assert.Contains(t, out, "aaaaaaaaaa")

	short := s.SanitizeResponse("short", FormatPlain)
	assert.NotContains(t, short, truncationMarker)
}

func TestTruncationKeepsValidUTF8(t *testing.T) {
	s := newTestSanitizer(t, func(cfg *config.Options) {
		cfg.MaxResponseLength = 10
	})

	// "日" is three bytes; byte 10 falls inside the fourth rune.
	out := s.SanitizeResponse(strings.Repeat("日", 8), FormatPlain)
	trimmed := strings.TrimSuffix(out, truncationMarker)
	assert.True(t, utf8.ValidString(trimmed), "truncation must not split a rune")
	assert.Equal(t, strings.Repeat("日", 3), trimmed)
}

func TestSanitizeStructuredOutput(t *testing.T) {
	s := newTestSanitizer(t, nil)

	in := map[string]interface{}{
		"title": "<script>alert(1)</script>",
		"count": 3,
		"nested": map[string]interface{}{
			"<key>": "value & more",
		},
		"items": []interface{}{"<b>one</b>", 2.5, true},
	}

	out, ok := s.SanitizeStructuredOutput(in).(map[string]interface{})
	require.True(t, ok)

	assert.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt;", out["title"])
	assert.Equal(t, 3, out["count"])

	nested, ok := out["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value &amp; more", nested["&lt;key&gt;"])

	items, ok := out["items"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, "&lt;b&gt;one&lt;/b&gt;", items[0])
	assert.Equal(t, 2.5, items[1])
	assert.Equal(t, true, items[2])
}
