package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsPayloadVerbatim(t *testing.T) {
	payload := `<script async src="//cdn.example/ad.js?a=1&b=2"></script><div id="x">"quoted"</div>`
	out := Wrap(Container{Kind: "banner", AdType: "banner_728x90", Position: "homepage_hero", ScriptID: "s1"}, payload)

	assert.True(t, strings.Contains(out, payload), "payload must not be escaped or rewritten")
	assert.True(t, strings.HasPrefix(out, `<div class="moovie-ad moovie-ad--banner"`))
	assert.Contains(t, out, `data-position="homepage_hero"`)
	assert.Contains(t, out, `data-script-id="s1"`)
	assert.NotContains(t, out, "data-trigger")
	assert.True(t, strings.HasSuffix(out, "</div>"))
}

func TestWrapEscapesAttributes(t *testing.T) {
	out := Wrap(Container{Kind: "native", AdType: "native", Position: `x" onload="evil()`}, "")
	assert.NotContains(t, out, `onload="evil()"`)
	assert.Contains(t, out, `data-position="x&#34; onload=&#34;evil()"`)
}

func TestWrapPopupAndSocialBar(t *testing.T) {
	popup := Wrap(Container{Kind: "popup", AdType: "popup", Trigger: "time", Delay: 5}, "<script>p()</script>")
	assert.Contains(t, popup, `data-trigger="time"`)
	assert.Contains(t, popup, `data-delay="5"`)

	bar := Wrap(Container{Kind: "social_bar", AdType: "social_bar", Dismissible: true}, "<div>bar</div>")
	assert.Contains(t, bar, "data-ad-dismiss")
}

func TestHeaderScripts(t *testing.T) {
	assert.Equal(t, `<meta name="x">`, HeaderScripts("  <meta name=\"x\">\n"))
	assert.Equal(t, "", HeaderScripts(""))
}
