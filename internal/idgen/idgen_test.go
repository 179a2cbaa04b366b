package idgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpaque(t *testing.T) {
	a := Opaque(24)
	b := Opaque(24)
	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.True(t, strings.ContainsRune(opaqueAlphabet, r))
	}
}

func TestTrackingID(t *testing.T) {
	assert.Len(t, TrackingID(), 24)
}

func TestEventIDIsLexicallyIncreasing(t *testing.T) {
	a := EventID()
	b := EventID()
	assert.LessOrEqual(t, a, b)
	assert.Contains(t, a, "_")
}

func TestJobIDIsHex(t *testing.T) {
	id := JobID()
	assert.Len(t, id, 32)
	for _, r := range id {
		assert.True(t, strings.ContainsRune("0123456789abcdef", r))
	}
}

func TestMessageIDShape(t *testing.T) {
	id := MessageID("example.com")
	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@example.com>"))
}

func TestHashAPIKeyIsDeterministic(t *testing.T) {
	h1 := HashAPIKey("secret-key")
	h2 := HashAPIKey("secret-key")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, HashAPIKey("other-key"))
	assert.Len(t, h1, 64)
}

func TestTransparentGIFDecodes(t *testing.T) {
	require.NotEmpty(t, TransparentGIF)
	assert.Equal(t, "GIF89a", string(TransparentGIF[:6]))
}
