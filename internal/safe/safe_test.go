package safe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec(t *testing.T) {
	codec, err := NewCodec(CompressionOptions{MinSize: 64, Level: 2})
	require.NoError(t, err)

	t.Run("small payloads stay verbatim", func(t *testing.T) {
		payload := []byte(`{"a":1}`)
		sealed := codec.Seal(payload)
		assert.Equal(t, payload, sealed)
		assert.False(t, IsCompressed(sealed))

		opened, err := codec.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, payload, opened)
	})

	t.Run("large payloads round trip compressed", func(t *testing.T) {
		payload := append([]byte(`{"rules":"`), bytes.Repeat([]byte("abc"), 2000)...)
		payload = append(payload, []byte(`"}`)...)

		sealed := codec.Seal(payload)
		assert.True(t, IsCompressed(sealed))
		assert.Less(t, len(sealed), len(payload))

		opened, err := codec.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, payload, opened)
	})

	t.Run("corrupt frame", func(t *testing.T) {
		_, err := codec.Open(append(append([]byte{}, zstdMagic...), 0x00, 0x01, 0x02))
		assert.Error(t, err)
	})
}

func TestCache(t *testing.T) {
	type record struct {
		repo string
		body string
	}

	cache, err := NewCache[record](2)
	require.NoError(t, err)

	cache.Add("a", record{repo: "r1", body: "A"})
	cache.Add("b", record{repo: "r2", body: "B"})
	cache.Add("c", record{repo: "r1", body: "C"})

	_, ok := cache.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	assert.Equal(t, 2, cache.Len())

	removed := cache.RemoveFunc(func(r record) bool { return r.repo == "r1" })
	assert.Equal(t, 1, removed)

	got, ok := cache.Get("b")
	require.True(t, ok)
	assert.Equal(t, "B", got.body)
}
