// Package photo stores player selfies and inspects their metadata.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"
)

const (
	DefaultMaxBytes = 5 << 20
	minBytes        = 50 << 10
	maxAge          = 10 * time.Minute
)

var (
	ErrTooLarge    = errors.New("photo exceeds size limit")
	ErrUnsupported = errors.New("photo must be jpeg, png or webp")
	ErrEmpty       = errors.New("photo is empty")
)

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Sniff checks the payload against the size limit and returns its
// content type, detected from the bytes rather than the client header.
func Sniff(data []byte, maxBytes int64) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	ct := http.DetectContentType(data)
	if _, ok := extensions[ct]; !ok {
		return "", fmt.Errorf("%w: got %s", ErrUnsupported, ct)
	}
	return ct, nil
}

// ObjectName builds the storage key for a player's selfie.
func ObjectName(playerID, locationID, contentType string) string {
	ext, ok := extensions[contentType]
	if !ok {
		ext = "bin"
	}
	return fmt.Sprintf("%s-%s-%s.%s", playerID, locationID, uuid.NewString(), ext)
}

// Report is the metadata advisory for one photo. Issues is empty when
// nothing looked off.
type Report struct {
	TakenAt   *time.Time
	Latitude  *float64
	Longitude *float64
	Size      int
	Issues    []string
}

// Inspect reads EXIF metadata and flags photos that look old, carry no
// location, or are suspiciously small. Face presence is not checked.
func Inspect(data []byte, now time.Time) Report {
	r := Report{Size: len(data)}
	if len(data) < minBytes {
		r.Issues = append(r.Issues, fmt.Sprintf("file smaller than %d KB", minBytes>>10))
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		r.Issues = append(r.Issues, "no EXIF metadata")
		return r
	}

	if taken, err := x.DateTime(); err != nil {
		r.Issues = append(r.Issues, "no EXIF timestamp")
	} else {
		r.TakenAt = &taken
		if d := now.Sub(taken); d > maxAge || d < -maxAge {
			r.Issues = append(r.Issues, "photo not taken within the last 10 minutes")
		}
	}

	if lat, lng, err := x.LatLong(); err != nil {
		r.Issues = append(r.Issues, "no GPS location in EXIF")
	} else {
		r.Latitude, r.Longitude = &lat, &lng
	}
	return r
}

// Upload is a selfie ready for storage.
type Upload struct {
	PlayerID    string
	LocationID  string
	ContentType string
	Data        []byte
	TakenAt     time.Time
	Latitude    *float64
	Longitude   *float64
	UserAgent   string
}

func (u Upload) metadata() map[string]string {
	m := map[string]string{
		"player-id":   u.PlayerID,
		"location-id": u.LocationID,
		"captured-at": u.TakenAt.UTC().Format(time.RFC3339),
	}
	if u.UserAgent != "" {
		m["device-info"] = u.UserAgent
	}
	if u.Latitude != nil && u.Longitude != nil {
		m["geolocation"] = fmt.Sprintf("%.6f,%.6f", *u.Latitude, *u.Longitude)
	}
	return m
}
