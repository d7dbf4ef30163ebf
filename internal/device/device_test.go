package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCapability(t *testing.T) {
	tests := []struct {
		in      string
		want    Capability
		wantErr bool
	}{
		{"available", Available, false},
		{"unavailable", Unavailable, false},
		{"permission_denied", PermissionDenied, false},
		{"", "", false},
		{"granted", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCapability(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestFallbacks(t *testing.T) {
	for _, camera := range []Capability{Unavailable, PermissionDenied} {
		caps := Capabilities{Camera: camera}
		assert.True(t, caps.ManualScan(), camera)
		assert.True(t, caps.PhotoSkipAllowed(), camera)
	}

	caps := Capabilities{Camera: Available, Geolocation: PermissionDenied}
	assert.False(t, caps.ManualScan())
	assert.False(t, caps.PhotoSkipAllowed())
	assert.False(t, caps.HasGeolocation())
}

func TestWithDefaults(t *testing.T) {
	assert.Equal(t, Unknown(), Capabilities{}.WithDefaults())

	caps := Capabilities{Camera: PermissionDenied}.WithDefaults()
	assert.Equal(t, PermissionDenied, caps.Camera)
	assert.Equal(t, Unavailable, caps.Geolocation)
	assert.True(t, caps.PhotoSkipAllowed())

	caps = Capabilities{Geolocation: Available}.WithDefaults()
	assert.Equal(t, Available, caps.Camera)
	assert.False(t, caps.PhotoSkipAllowed())
	assert.False(t, caps.ManualScan())
}

func TestCacheExpiry(t *testing.T) {
	now := time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC)
	c := NewCache(time.Hour)
	c.now = func() time.Time { return now }

	_, ok := c.Get("p1")
	assert.False(t, ok)

	c.Put("p1", Capabilities{Camera: PermissionDenied})
	got, ok := c.Get("p1")
	require.True(t, ok)
	assert.Equal(t, PermissionDenied, got.Camera)
	assert.Equal(t, now, got.ReportedAt)

	now = now.Add(2 * time.Hour)
	got, ok = c.Get("p1")
	assert.False(t, ok)
	assert.Equal(t, Unknown(), got)
	assert.Zero(t, c.Len())
}
