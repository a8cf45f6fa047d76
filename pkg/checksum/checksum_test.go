package checksum

import (
	"testing"

	"github.com/go-faster/city"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumsOrder(t *testing.T) {
	c := New()
	c.Add("data.bin", Entry{IsCompressed: true, FileSize: 10})
	c.Add("data.mrk3", Entry{FileSize: 20})
	c.Add("primary.idx", Entry{FileSize: 30})

	assert.Equal(t, []string{"data.bin", "data.mrk3", "primary.idx"}, c.Files())
	assert.Equal(t, 3, c.Len())

	// Replacing keeps insertion order.
	c.Add("data.bin", Entry{IsCompressed: true, FileSize: 11})
	assert.Equal(t, []string{"data.bin", "data.mrk3", "primary.idx"}, c.Files())
	e, ok := c.Get("data.bin")
	require.True(t, ok)
	assert.Equal(t, uint64(11), e.FileSize)
}

func TestChecksumsStringDeterministic(t *testing.T) {
	build := func() *Checksums {
		c := New()
		c.Add("data.bin", Entry{
			IsCompressed:     true,
			UncompressedSize: 100,
			UncompressedHash: city.U128{Low: 1, High: 2},
			FileSize:         50,
			FileHash:         city.U128{Low: 3, High: 4},
		})
		c.Add("data.mrk3", Entry{FileSize: 20, FileHash: city.U128{Low: 5, High: 6}})
		return c
	}

	assert.Equal(t, build().String(), build().String())
	assert.Contains(t, build().String(), "data.bin compressed=true size=50")
}
