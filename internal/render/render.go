// Package render produces the subject and HTML body for a template and
// recipient pair. Rendering is pure: identical inputs yield byte-identical
// output, so it is safe to call from concurrent send workers.
package render

import (
	"crypto/md5"
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/coldpost/coldpost/internal/domain"
)

// UnsubscribeMarker is replaced in the body with an anchor to the
// recipient's unsubscribe URL.
const UnsubscribeMarker = "[UNSUBSCRIBE]"

// Renderer compiles and renders Liquid templates with a content-hash cache,
// so a campaign's template is parsed once and reused across every recipient.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // md5 content hash -> *liquid.Template
}

// New creates a Renderer with the custom filters registered.
func New() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// Fallback value: {{ first_name | default: "Friend" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// URL encode: {{ email | urlencode }}
	r.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// HTML escape: {{ company | escape }}
	r.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// Extract domain from email: {{ email | email_domain }}
	r.engine.RegisterFilter("email_domain", func(email string) string {
		parts := strings.Split(email, "@")
		if len(parts) == 2 {
			return parts[1]
		}
		return ""
	})
}

// Render produces (subject, htmlBody) for one recipient. Token resolution
// order: the recipient's variable map, then the built-ins derived from the
// recipient (email, firstName, lastName, fullName), then unsubscribe_url.
// Unresolved tokens render as empty string. The body is wrapped in the
// responsive shell unless it already carries an <html document root.
func (r *Renderer) Render(tmpl *domain.Template, rcpt *domain.Recipient, unsubscribeHost string) (string, string, error) {
	bindings := make(map[string]interface{}, len(rcpt.Variables)+5)
	for k, v := range rcpt.Variables {
		bindings[k] = v
	}
	bindings["email"] = rcpt.Email
	bindings["firstName"] = rcpt.FirstName
	bindings["lastName"] = rcpt.LastName
	bindings["fullName"] = rcpt.FullName()
	unsubURL := UnsubscribeURL(unsubscribeHost, rcpt.Email)
	bindings["unsubscribe_url"] = unsubURL

	subject, err := r.renderString(tmpl.Subject, bindings)
	if err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}

	body, err := r.renderString(tmpl.BodyHTML, bindings)
	if err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}

	body = strings.ReplaceAll(body, UnsubscribeMarker,
		fmt.Sprintf(`<a href="%s">Unsubscribe</a>`, unsubURL))

	if !hasDocumentRoot(body) {
		body = wrapInShell(body, unsubURL)
	}
	return subject, body, nil
}

// renderString renders one template string, compiling and caching by
// content hash on first use.
func (r *Renderer) renderString(templateStr string, bindings map[string]interface{}) (string, error) {
	key := fmt.Sprintf("%x", md5.Sum([]byte(templateStr)))
	if cached, ok := r.cache.Load(key); ok {
		return cached.(*liquid.Template).RenderString(bindings)
	}

	tpl, err := r.engine.ParseString(templateStr)
	if err != nil {
		return "", err
	}
	r.cache.Store(key, tpl)
	return tpl.RenderString(bindings)
}

// UnsubscribeURL builds the deterministic per-recipient unsubscribe link.
func UnsubscribeURL(host, email string) string {
	return fmt.Sprintf("https://%s/unsubscribe?email=%s", host, url.QueryEscape(email))
}

func hasDocumentRoot(body string) bool {
	return strings.Contains(strings.ToLower(body), "<html")
}
