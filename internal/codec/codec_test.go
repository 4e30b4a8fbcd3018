package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressors(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"dimensions":{"width":640,"height":480}}`), 50)

	for _, algo := range []string{None, Zstd, Snappy} {
		t.Run(algo, func(t *testing.T) {
			c, err := New(algo, 0)
			require.NoError(t, err)
			assert.Equal(t, algo, c.Algorithm())

			packed, err := c.Compress(payload)
			require.NoError(t, err)
			if algo != None {
				assert.Less(t, len(packed), len(payload))
			}

			unpacked, err := c.Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, payload, unpacked)
		})
	}
}

func TestNew(t *testing.T) {
	c, err := New("", 0)
	require.NoError(t, err)
	assert.Equal(t, None, c.Algorithm())

	_, err = New("lz4", 0)
	assert.Error(t, err)

	_, err = New(Zstd, 42)
	assert.Error(t, err)
}

func TestDecompressGarbage(t *testing.T) {
	z, err := NewZstdCompressor(1)
	require.NoError(t, err)
	_, err = z.Decompress([]byte("definitely not zstd"))
	assert.Error(t, err)

	_, err = SnappyCompressor{}.Decompress([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
