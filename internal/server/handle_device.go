package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/mallhunt/treasurehunt/internal/device"
)

type DeviceRequest struct {
	Camera      string `json:"camera"`
	Flash       string `json:"flash"`
	Geolocation string `json:"geolocation"`
}

type DeviceResponse struct {
	Camera           string    `json:"camera"`
	Flash            string    `json:"flash"`
	Geolocation      string    `json:"geolocation"`
	ManualScan       bool      `json:"manualScan"`
	PhotoSkipAllowed bool      `json:"photoSkipAllowed"`
	ReportedAt       time.Time `json:"reportedAt"`
}

func toDeviceResponse(c device.Capabilities) DeviceResponse {
	return DeviceResponse{
		Camera:           string(c.Camera),
		Flash:            string(c.Flash),
		Geolocation:      string(c.Geolocation),
		ManualScan:       c.ManualScan(),
		PhotoSkipAllowed: c.PhotoSkipAllowed(),
		ReportedAt:       c.ReportedAt,
	}
}

// handleDeviceReport records what the browser could access. The report
// decides whether the scan step offers manual entry and whether the
// selfie may be skipped.
func handleDeviceReport(devices *device.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)

		var req DeviceRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var caps device.Capabilities
		for _, f := range []struct {
			name string
			raw  string
			dst  *device.Capability
		}{
			{"camera", req.Camera, &caps.Camera},
			{"flash", req.Flash, &caps.Flash},
			{"geolocation", req.Geolocation, &caps.Geolocation},
		} {
			c, err := device.ParseCapability(strings.ToLower(strings.TrimSpace(f.raw)))
			if err != nil {
				writeError(w, http.StatusBadRequest, f.name+": "+err.Error())
				return
			}
			*f.dst = c
		}
		caps = caps.WithDefaults()
		caps.UserAgent = r.UserAgent()

		writeJSON(w, http.StatusOK, toDeviceResponse(devices.Put(playerID, caps)))
	}
}

func handleDeviceGet(devices *device.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := playerFrom(r)
		caps, _ := devices.Get(playerID)
		writeJSON(w, http.StatusOK, toDeviceResponse(caps))
	}
}
