// Package device models what the player's browser reported about its
// camera, flash and geolocation, and the fallback paths that follow.
package device

import (
	"fmt"
	"sync"
	"time"
)

type Capability string

const (
	Available        Capability = "available"
	Unavailable      Capability = "unavailable"
	PermissionDenied Capability = "permission_denied"
)

// ParseCapability returns the empty Capability for an unreported field;
// WithDefaults fills it in.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(s); c {
	case Available, Unavailable, PermissionDenied, "":
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// Capabilities is the report a client sends once per session.
type Capabilities struct {
	Camera      Capability
	Flash       Capability
	Geolocation Capability
	UserAgent   string
	ReportedAt  time.Time
}

// Unknown is assumed for sessions that never reported. The camera is
// taken as available so the normal scan and photo flow is offered first.
func Unknown() Capabilities {
	return Capabilities{Camera: Available, Flash: Unavailable, Geolocation: Unavailable}
}

// WithDefaults takes Unknown's value for every field the client left
// out, so the fallbacks only open on an explicit report.
func (c Capabilities) WithDefaults() Capabilities {
	def := Unknown()
	if c.Camera == "" {
		c.Camera = def.Camera
	}
	if c.Flash == "" {
		c.Flash = def.Flash
	}
	if c.Geolocation == "" {
		c.Geolocation = def.Geolocation
	}
	return c
}

// ManualScan reports whether the client should offer typed code entry
// instead of the camera scanner.
func (c Capabilities) ManualScan() bool { return c.Camera != Available }

// PhotoSkipAllowed reports whether the selfie stage may be passed
// without an image.
func (c Capabilities) PhotoSkipAllowed() bool { return c.Camera != Available }

func (c Capabilities) HasGeolocation() bool { return c.Geolocation == Available }

// Cache holds the latest report per session key. Entries expire after
// ttl so a long-idle session re-reports.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Capabilities
	ttl     time.Duration
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]Capabilities), ttl: ttl, now: time.Now}
}

func (c *Cache) Put(key string, caps Capabilities) Capabilities {
	if caps.ReportedAt.IsZero() {
		caps.ReportedAt = c.now()
	}
	c.mu.Lock()
	c.entries[key] = caps
	c.mu.Unlock()
	return caps
}

// Get returns the cached report, or Unknown and false.
func (c *Cache) Get(key string) (Capabilities, bool) {
	c.mu.RLock()
	caps, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Unknown(), false
	}
	if c.ttl > 0 && c.now().Sub(caps.ReportedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Unknown(), false
	}
	return caps, true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
