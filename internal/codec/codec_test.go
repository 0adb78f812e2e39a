package codec

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New("fastest", 0)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCodec_PackCompressibleData(t *testing.T) {
	c := newCodec(t)
	data := bytes.Repeat([]byte("syftsync "), 1000)

	packed, compressed := c.Pack(data)
	assert.True(t, compressed)
	assert.Less(t, len(packed), len(data))

	out, err := c.Unpack(packed, compressed)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestCodec_PackKeepsIncompressibleData(t *testing.T) {
	c := newCodec(t)
	data := make([]byte, 512)
	_, err := rand.Read(data)
	require.NoError(t, err)

	packed, compressed := c.Pack(data)
	assert.False(t, compressed)
	assert.Equal(t, data, packed)

	packed, compressed = c.Pack(nil)
	assert.False(t, compressed)
	assert.Empty(t, packed)
}

func TestCodec_CorruptInput(t *testing.T) {
	c := newCodec(t)
	_, err := c.Unpack([]byte("definitely not zstd"), true)
	assert.ErrorIs(t, err, ErrInflate)
}

func TestCodec_Levels(t *testing.T) {
	for _, level := range []string{"", "default", "fastest", "better", "BEST"} {
		c, err := New(level, 0)
		require.NoError(t, err, level)
		c.Close()
	}
	_, err := New("ultra", 0)
	assert.ErrorIs(t, err, ErrInvalidLevel)
}
