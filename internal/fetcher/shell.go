package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// shellMountPoints are the elements client-side frameworks render into.
const shellMountPoints = "#__next, #root, #app, [data-reactroot]"

const (
	// minVisibleText is the visible body text below which a page is considered empty.
	minVisibleText = 200
	// scriptSharePercent is the share of the raw page taken by inline scripts that marks a shell.
	scriptSharePercent = 25
)

// looksClientRendered reports whether a statically fetched page is probably an empty
// application shell that only a browser would fill in.
func looksClientRendered(doc *goquery.Document, rawLen int) bool {
	if rawLen == 0 {
		return true
	}
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	if len(strings.TrimSpace(body.Text())) >= minVisibleText {
		return false
	}
	if doc.Find(shellMountPoints).Length() > 0 {
		return true
	}
	scriptBytes := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scriptBytes += len(s.Text())
	})
	return scriptBytes*100/rawLen >= scriptSharePercent
}
