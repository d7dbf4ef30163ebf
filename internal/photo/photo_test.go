package photo

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)

func TestSniff(t *testing.T) {
	ct, err := Sniff(pngHeader, DefaultMaxBytes)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	ct, err = Sniff(jpegHeader, DefaultMaxBytes)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)

	_, err = Sniff([]byte("<html>hello</html>"), DefaultMaxBytes)
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Sniff(nil, DefaultMaxBytes)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Sniff(append(jpegHeader, make([]byte, 64)...), 32)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestObjectName(t *testing.T) {
	name := ObjectName("p1", "main_lobby", "image/webp")
	assert.True(t, strings.HasPrefix(name, "p1-main_lobby-"), name)
	assert.True(t, strings.HasSuffix(name, ".webp"), name)
	assert.NotEqual(t, name, ObjectName("p1", "main_lobby", "image/webp"))
}

func TestInspectWithoutExif(t *testing.T) {
	now := time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC)

	small := Inspect(jpegHeader, now)
	assert.Contains(t, small.Issues, "file smaller than 50 KB")
	assert.Contains(t, small.Issues, "no EXIF metadata")
	assert.Nil(t, small.TakenAt)

	big := append(bytes.Clone(jpegHeader), make([]byte, 60<<10)...)
	r := Inspect(big, now)
	assert.Equal(t, []string{"no EXIF metadata"}, r.Issues)
	assert.Equal(t, len(big), r.Size)
}

func TestUploadMetadata(t *testing.T) {
	lat, lng := -6.2, 106.8
	u := Upload{
		PlayerID:   "p1",
		LocationID: "east_dome",
		TakenAt:    time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC),
		Latitude:   &lat,
		Longitude:  &lng,
		UserAgent:  "Mobile Safari",
	}
	m := u.metadata()
	assert.Equal(t, "2026-08-17T10:00:00Z", m["captured-at"])
	assert.Equal(t, "-6.200000,106.800000", m["geolocation"])
	assert.Equal(t, "Mobile Safari", m["device-info"])

	u.Latitude = nil
	_, ok := u.metadata()["geolocation"]
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	url, err := s.Put(context.Background(), Upload{PlayerID: "p1", LocationID: "a", ContentType: "image/png", Data: pngHeader})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "memory://p1-a-"))
	assert.Equal(t, 1, s.Len())
}
