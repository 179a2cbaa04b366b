// Package tracking implements the HTML tracking rewriter (spec.md §4.4) and
// the open/click ingress endpoints (§4.7). The rewriter walks the raw token
// stream from golang.org/x/net/html instead of parsing into a DOM and
// re-serializing: a DOM round-trip (html.Parse, or goquery's wrapper around
// it) re-wraps a bare fragment in <html><head><body> and can reflow
// whitespace, which would violate the byte-preservation properties in
// spec.md §8. The tests there are explicitly parser-agnostic, so a raw
// tokenizer pass is used: every token other than an <a> start tag is copied
// through from z.Raw(), byte for byte. Every <a> start tag, including one
// whose href is excluded from tracking, is re-serialized with double-quoted,
// HTML-escaped attribute values.
package tracking

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/relaysend/mailat/internal/idgen"
)

// exclusions mirror the teacher's regex-skip list, with unsubscribe/optout
// added per spec.md §4.4 (the teacher's own wrapLinksWithTracking skips
// these too, just via substring checks rather than as part of the anchor
// regex itself).
var exclusions = []string{"unsubscribe", "optout", "mailto:", "tel:", "#"}

// Link describes one rewritten anchor.
type Link struct {
	TrackingID  string
	OriginalURL string
	TrackingURL string
}

// Result is the output of Rewrite.
type Result struct {
	ModifiedHTML   string
	OpenTrackingID string
	Links          []Link
}

func isExcluded(url string) bool {
	lower := strings.ToLower(url)
	for _, needle := range exclusions {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// Rewrite rewrites every non-excluded <a href> to the click-tracking
// endpoint and injects a 1x1 open-tracking pixel immediately before the
// first </body> (or appends one if no </body> exists).
func Rewrite(rawHTML, baseURL string) *Result {
	result := &Result{OpenTrackingID: idgen.TrackingID()}
	linksByURL := make(map[string]*Link)

	var out strings.Builder
	bodyClosed := false

	z := html.NewTokenizer(strings.NewReader(rawHTML))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		// Copy the raw bytes before z.Token(): Token lowercases names and
		// unescapes text in the tokenizer's buffer, which Raw shares.
		raw := append([]byte(nil), z.Raw()...)
		tok := z.Token()

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if strings.EqualFold(tok.Data, "a") {
				out.WriteString(rewriteAnchor(tok, tt == html.SelfClosingTagToken, baseURL, result, linksByURL))
				continue
			}
			out.Write(raw)
		case html.EndTagToken:
			if strings.EqualFold(tok.Data, "body") && !bodyClosed {
				out.WriteString(openPixelTag(baseURL, result.OpenTrackingID))
				bodyClosed = true
			}
			out.Write(raw)
		default:
			out.Write(raw)
		}
	}

	modified := out.String()
	if !bodyClosed {
		modified += openPixelTag(baseURL, result.OpenTrackingID)
	}
	result.ModifiedHTML = modified
	return result
}

func rewriteAnchor(tok html.Token, selfClosing bool, baseURL string, result *Result, linksByURL map[string]*Link) string {
	var b strings.Builder
	b.WriteString("<a")
	for _, attr := range tok.Attr {
		if strings.EqualFold(attr.Key, "href") && !isExcluded(attr.Val) {
			link, ok := linksByURL[attr.Val]
			if !ok {
				id := idgen.TrackingID()
				link = &Link{
					TrackingID:  id,
					OriginalURL: attr.Val,
					TrackingURL: baseURL + "/t/c/" + id,
				}
				linksByURL[attr.Val] = link
				result.Links = append(result.Links, *link)
			}
			b.WriteString(` href="`)
			b.WriteString(html.EscapeString(link.TrackingURL))
			b.WriteString(`"`)
			continue
		}
		b.WriteString(" ")
		b.WriteString(attr.Key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(attr.Val))
		b.WriteString(`"`)
	}
	if selfClosing {
		b.WriteString("/>")
	} else {
		b.WriteString(">")
	}
	return b.String()
}

func openPixelTag(baseURL, openID string) string {
	return `<img src="` + baseURL + `/t/o/` + openID +
		`" width="1" height="1" alt="" style="display:none;width:1px;height:1px;border:0;" />`
}
