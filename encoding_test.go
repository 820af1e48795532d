package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupEncoding(t *testing.T) {
	assert.NotNil(t, lookupEncoding("latin1"))
	assert.NotNil(t, lookupEncoding("windows-1252"))
	assert.NotNil(t, lookupEncoding("UTF-8"))
	assert.Nil(t, lookupEncoding("no-such-charset"))
}

func TestConvertEncodingConfigured(t *testing.T) {
	c, err := New(Config{Server: "irc.test", Nick: "bot", Encoding: "latin1"})
	require.NoError(t, err)

	// "café" in latin1
	got := c.convertEncoding([]byte{'c', 'a', 'f', 0xe9})
	assert.Equal(t, "café", got)
}

func TestConvertEncodingFallback(t *testing.T) {
	c, err := New(Config{Server: "irc.test", Nick: "bot", EncodingFallback: "latin1"})
	require.NoError(t, err)

	// valid UTF-8 passes through untouched
	assert.Equal(t, "héllo", c.convertEncoding([]byte("héllo")))
	// invalid UTF-8 decodes through the fallback
	assert.Equal(t, "café", c.convertEncoding([]byte{'c', 'a', 'f', 0xe9}))
}

func TestConvertEncodingInvalidWithoutFallback(t *testing.T) {
	c, err := New(Config{Server: "irc.test", Nick: "bot"})
	require.NoError(t, err)

	got := c.convertEncoding([]byte{'o', 'k', 0xff})
	// undecodable bytes degrade to the replacement char instead of
	// poisoning downstream parsing
	assert.Equal(t, "ok�", got)
}
