// Package responseguard sanitizes inbound LLM completions before they reach
// any rendering context. HTML goes through an allow-list policy on a real
// parse tree; markdown link targets are scheme-checked; plain text is always
// entity-encoded.
package responseguard

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/aegis-security/aegis/pkg/config"
	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Supported response formats. Unknown formats fall back to plain, the safe
// default.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatPlain    = "plain"
)

// codeBlockClass marks the isolating container wrapped around code content so
// downstream styling and scripting never treat it as live markup.
const codeBlockClass = "aegis-code-block"

// truncationMarker is appended whenever a response is cut; truncation is
// never silent.
const truncationMarker = "… [truncated]"

// Sanitizer applies the configured content policy to provider responses.
type Sanitizer struct {
	cfg    config.Options
	policy *bluemonday.Policy
	strip  *bluemonday.Policy
}

// New builds a sanitizer with the HTML allow-list policy.
func New(cfg config.Options) *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"em", "strong", "i", "b", "u", "s",
		"ul", "ol", "li",
		"table", "thead", "tbody", "tr", "th", "td",
		"blockquote", "code", "pre", "span", "div",
	)
	if cfg.AllowLinks {
		p.AllowElements("a")
		p.AllowAttrs("href", "title", "rel").OnElements("a")
		p.AllowURLSchemes("http", "https", "mailto")
		p.RequireParseableURLs(true)
		p.AllowRelativeURLs(false)
		p.RequireNoFollowOnLinks(true)
		p.RequireNoReferrerOnLinks(true)
		p.AddTargetBlankToFullyQualifiedLinks(true)
	}
	p.AllowAttrs("class").OnElements("div", "span", "code", "pre")

	return &Sanitizer{
		cfg:    cfg,
		policy: p,
		strip:  bluemonday.StrictPolicy(),
	}
}

// SanitizeResponse sanitizes text according to its declared format. Formats
// this package does not recognize are treated as plain text.
func (s *Sanitizer) SanitizeResponse(text, format string) string {
	text, truncated := s.truncate(text)

	var out string
	switch format {
	case FormatHTML:
		if s.cfg.AllowHTML {
			out = s.sanitizeHTML(text)
		} else {
			out = s.strip.Sanitize(text)
		}
	case FormatMarkdown:
		if s.cfg.AllowMarkdown {
			out = s.sanitizeMarkdown(text)
		} else {
			out = html.EscapeString(text)
		}
	default:
		out = html.EscapeString(text)
	}

	if truncated {
		out += truncationMarker
	}
	return out
}

// SanitizeStructuredOutput walks JSON-ish data (maps, slices, strings) and
// entity-encodes every string leaf, keys included. Non-string scalars pass
// through unchanged.
func (s *Sanitizer) SanitizeStructuredOutput(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		return html.EscapeString(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			out[html.EscapeString(key)] = s.SanitizeStructuredOutput(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, value := range v {
			out[i] = s.SanitizeStructuredOutput(value)
		}
		return out
	default:
		return v
	}
}

func (s *Sanitizer) truncate(text string) (string, bool) {
	if len(text) <= s.cfg.MaxResponseLength {
		return text, false
	}
	// Back up to a rune boundary so the cut never emits invalid UTF-8.
	cut := s.cfg.MaxResponseLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], true
}

// sanitizeHTML runs the allow-list policy, then re-parses and wraps every
// pre/code subtree in the isolating container. The policy has already fixed
// malformed markup, so the second parse operates on well-formed HTML.
func (s *Sanitizer) sanitizeHTML(text string) string {
	cleaned := s.policy.Sanitize(text)

	body := &xhtml.Node{Type: xhtml.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := xhtml.ParseFragment(strings.NewReader(cleaned), body)
	if err != nil {
		return s.strip.Sanitize(text)
	}

	var out strings.Builder
	for _, node := range nodes {
		body.AppendChild(node)
	}
	wrapCodeBlocks(body)
	for child := body.FirstChild; child != nil; child = child.NextSibling {
		if err := xhtml.Render(&out, child); err != nil {
			return s.strip.Sanitize(text)
		}
	}
	return out.String()
}

// wrapCodeBlocks wraps each top-most pre or code element in a container div.
// Nested code inside an already-wrapped pre is left alone.
func wrapCodeBlocks(n *xhtml.Node) {
	child := n.FirstChild
	for child != nil {
		next := child.NextSibling
		if child.Type == xhtml.ElementNode && (child.Data == "pre" || child.Data == "code") {
			if !isCodeWrapper(n) {
				wrapper := &xhtml.Node{
					Type:     xhtml.ElementNode,
					Data:     "div",
					DataAtom: atom.Div,
					Attr:     []xhtml.Attribute{{Key: "class", Val: codeBlockClass}},
				}
				n.InsertBefore(wrapper, child)
				n.RemoveChild(child)
				wrapper.AppendChild(child)
			}
		} else {
			wrapCodeBlocks(child)
		}
		child = next
	}
}

func isCodeWrapper(n *xhtml.Node) bool {
	if n.Type != xhtml.ElementNode || n.Data != "div" {
		return false
	}
	for _, attr := range n.Attr {
		if attr.Key == "class" && attr.Val == codeBlockClass {
			return true
		}
	}
	return false
}

// markdownLink matches [text](target "optional title").
var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\(\s*([^)\s]+)(?:\s+"[^"]*")?\s*\)`)

var allowedLinkSchemes = []string{"http://", "https://", "mailto:"}

// sanitizeMarkdown scheme-checks every link target and handles inline HTML
// per the AllowHTML flag: stripped entirely when HTML is disabled, escaped
// otherwise so it renders as literal text instead of markup.
func (s *Sanitizer) sanitizeMarkdown(text string) string {
	text = markdownLink.ReplaceAllStringFunc(text, func(match string) string {
		groups := markdownLink.FindStringSubmatch(match)
		label, target := groups[1], groups[2]
		if !s.cfg.AllowLinks || !allowedScheme(target) {
			return label
		}
		return match
	})

	if strings.ContainsAny(text, "<>") {
		if s.cfg.AllowHTML {
			text = strings.NewReplacer("<", "&lt;", ">", "&gt;").Replace(text)
		} else {
			text = s.strip.Sanitize(text)
		}
	}
	return text
}

func allowedScheme(target string) bool {
	lower := strings.ToLower(strings.TrimSpace(target))
	for _, scheme := range allowedLinkSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
