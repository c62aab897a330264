// Package render wraps third-party ad payloads in placement containers.
// Payloads are inserted verbatim: they are opaque network markup and are
// never parsed, sandboxed or rewritten here.
package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// Container describes the element a payload is mounted into.
type Container struct {
	Kind     string
	AdType   string
	Position string
	ScriptID string
	// Trigger and Delay are set for popups only.
	Trigger string
	Delay   int
	// Dismissible adds a close control (social bar).
	Dismissible bool
}

// Wrap returns payload inside a container element whose data attributes let
// the page script activate it.
func Wrap(c Container, payload string) string {
	var b strings.Builder
	kind := html.EscapeString(c.Kind)
	fmt.Fprintf(&b, `<div class="moovie-ad moovie-ad--%s" data-ad-kind="%s" data-ad-type="%s"`, kind, kind, html.EscapeString(c.AdType))
	writeAttr(&b, "data-position", c.Position)
	writeAttr(&b, "data-script-id", c.ScriptID)
	writeAttr(&b, "data-trigger", c.Trigger)
	if c.Trigger != "" {
		writeAttr(&b, "data-delay", strconv.Itoa(c.Delay))
	}
	b.WriteString(">")
	if c.Dismissible {
		b.WriteString(`<button type="button" class="moovie-ad__close" data-ad-dismiss aria-label="Close ad">&times;</button>`)
	}
	b.WriteString(payload)
	b.WriteString("</div>")
	return b.String()
}

func writeAttr(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, ` %s="%s"`, name, html.EscapeString(value))
}

// HeaderScripts returns the site wide header markup unchanged, trimmed of
// surrounding whitespace.
func HeaderScripts(raw string) string {
	return strings.TrimSpace(raw)
}
