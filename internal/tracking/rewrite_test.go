package tracking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteInjectsPixelBeforeBodyClose(t *testing.T) {
	html := `<html><body><p>hi</p></body></html>`
	result := Rewrite(html, "https://track.example.com")

	require.NotEmpty(t, result.OpenTrackingID)
	assert.Contains(t, result.ModifiedHTML, "/t/o/"+result.OpenTrackingID)
	assert.Less(t, strings.Index(result.ModifiedHTML, "/t/o/"), strings.Index(result.ModifiedHTML, "</body>"))
}

func TestRewriteAppendsPixelWhenNoBodyTag(t *testing.T) {
	html := `<p>hello</p>`
	result := Rewrite(html, "https://track.example.com")
	assert.Contains(t, result.ModifiedHTML, "/t/o/"+result.OpenTrackingID)
}

func TestRewriteRewritesAnchorHref(t *testing.T) {
	html := `<a href="https://example.com/path">click</a>`
	result := Rewrite(html, "https://track.example.com")

	require.Len(t, result.Links, 1)
	link := result.Links[0]
	assert.Equal(t, "https://example.com/path", link.OriginalURL)
	assert.Equal(t, "https://track.example.com/t/c/"+link.TrackingID, link.TrackingURL)
	assert.Contains(t, result.ModifiedHTML, link.TrackingURL)
	assert.NotContains(t, result.ModifiedHTML, "https://example.com/path")
}

func TestRewriteSkipsExcludedLinks(t *testing.T) {
	html := `<a href="https://example.com/unsubscribe">unsubscribe</a><a href="mailto:a@b.com">mail</a><a href="#section">anchor</a>`
	result := Rewrite(html, "https://track.example.com")

	assert.Empty(t, result.Links)
	assert.Contains(t, result.ModifiedHTML, `href="https://example.com/unsubscribe"`)
	assert.Contains(t, result.ModifiedHTML, `href="mailto:a@b.com"`)
	assert.Contains(t, result.ModifiedHTML, `href="#section"`)
}

func TestRewriteDedupesRepeatedLinks(t *testing.T) {
	html := `<a href="https://example.com/path">one</a><a href="https://example.com/path">two</a>`
	result := Rewrite(html, "https://track.example.com")
	assert.Len(t, result.Links, 1)
}

func TestRewritePreservesNonAnchorContentByteExact(t *testing.T) {
	html := `<div class="wrapper"><span>Hello &amp; welcome</span></div>`
	result := Rewrite(html, "https://track.example.com")

	before, _, found := strings.Cut(result.ModifiedHTML, "<img src=")
	require.True(t, found)
	assert.Equal(t, html, before)
}

func TestRewriteEscapesAttributeValues(t *testing.T) {
	html := `<a href="https://example.com/path?a=1&b=2" data-x="he said &quot;hi&quot;">link</a>`
	result := Rewrite(html, "https://track.example.com")
	require.Len(t, result.Links, 1)
	assert.Contains(t, result.ModifiedHTML, `data-x="he said &#34;hi&#34;"`)
}
