package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
)

// HealthResponse maps each dependency to its status.
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

type locationPath struct {
	ID string `path:"id"`
}

type codePath struct {
	Code string `path:"code"`
}

type qrQuery struct {
	ID    string `path:"id"`
	Token string `query:"token"`
	Size  int    `query:"size"`
}

type repairQuery struct {
	DryRun bool `query:"dry_run"`
}

type cooldownPath struct {
	PlayerID   string `path:"playerID"`
	LocationID string `path:"locationID"`
}

type photoForm struct {
	ID        string  `path:"id"`
	Photo     []byte  `formData:"photo" format:"binary"`
	Latitude  float64 `formData:"latitude"`
	Longitude float64 `formData:"longitude"`
}

type scanInput struct {
	locationPath
	ScanRequest
}

type answerInput struct {
	locationPath
	AnswerRequest
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Mall Treasure Hunt API"
	r.Spec.Info.Version = "1.0.0"
	r.Spec.Info.WithDescription("Backend API for the mall treasure hunt: registration, the scan, photo and quiz challenge per location, and the admin console.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /api/signup-codes/{code}
	getCode, _ := r.NewOperationContext(http.MethodGet, "/api/signup-codes/{code}")
	getCode.SetSummary("Check signup code")
	getCode.SetDescription("Reports whether a signup code exists and is still unused.")
	getCode.AddReqStructure(codePath{})
	getCode.AddRespStructure(SignupCodeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getCode)

	// POST /api/register
	postRegister, _ := r.NewOperationContext(http.MethodPost, "/api/register")
	postRegister.SetSummary("Register player")
	postRegister.SetDescription("Consumes a signup code and creates the player. Returns a bearer token.")
	postRegister.AddReqStructure(RegisterRequest{})
	postRegister.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	postRegister.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postRegister.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postRegister.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postRegister)

	// POST /api/recover
	postRecover, _ := r.NewOperationContext(http.MethodPost, "/api/recover")
	postRecover.SetSummary("Recover session")
	postRecover.SetDescription("Issues a fresh bearer token for the player registered with the phone number.")
	postRecover.AddReqStructure(RecoverRequest{})
	postRecover.AddRespStructure(SessionResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postRecover.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postRecover)

	// GET /api/locations
	getLocations, _ := r.NewOperationContext(http.MethodGet, "/api/locations")
	getLocations.SetSummary("List locations")
	getLocations.SetDescription("Locations in unlock order. With a bearer token each entry carries the player's status and stage.")
	getLocations.AddRespStructure([]LocationResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getLocations)

	// GET /api/progress
	getProgress, _ := r.NewOperationContext(http.MethodGet, "/api/progress")
	getProgress.SetSummary("Player progress")
	getProgress.SetDescription("Passing records and per-location stages. Requires Bearer token.")
	getProgress.AddRespStructure(ProgressResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getProgress.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getProgress)

	// POST /api/device
	postDevice, _ := r.NewOperationContext(http.MethodPost, "/api/device")
	postDevice.SetSummary("Report device capabilities")
	postDevice.SetDescription("Camera, flash and geolocation availability: available, unavailable or permission_denied.")
	postDevice.AddReqStructure(DeviceRequest{})
	postDevice.AddRespStructure(DeviceResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postDevice.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(postDevice)

	// GET /api/device
	getDevice, _ := r.NewOperationContext(http.MethodGet, "/api/device")
	getDevice.SetSummary("Current device capabilities")
	getDevice.AddRespStructure(DeviceResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getDevice)

	// GET /api/locations/{id}/challenge
	getChallenge, _ := r.NewOperationContext(http.MethodGet, "/api/locations/{id}/challenge")
	getChallenge.SetSummary("Challenge state")
	getChallenge.SetDescription("Current stage for the location. The quiz is included once the photo is accepted.")
	getChallenge.AddReqStructure(locationPath{})
	getChallenge.AddRespStructure(ChallengeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getChallenge.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getChallenge)

	// POST /api/locations/{id}/scan
	postScan, _ := r.NewOperationContext(http.MethodPost, "/api/locations/{id}/scan")
	postScan.SetSummary("Submit QR scan")
	postScan.SetDescription("Validates scanned or typed QR text against the location's tokens.")
	postScan.AddReqStructure(scanInput{})
	postScan.AddRespStructure(ScanResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postScan.AddRespStructure(ScanResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	postScan.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postScan)

	// POST /api/locations/{id}/photo
	postPhoto, _ := r.NewOperationContext(http.MethodPost, "/api/locations/{id}/photo")
	postPhoto.SetSummary("Upload selfie")
	postPhoto.SetDescription("Multipart upload of the location selfie (JPEG, PNG or WebP).")
	postPhoto.AddReqStructure(photoForm{})
	postPhoto.AddRespStructure(PhotoResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postPhoto.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postPhoto.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postPhoto.AddRespStructure(PhotoResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	_ = r.AddOperation(postPhoto)

	// POST /api/locations/{id}/photo/skip
	postSkip, _ := r.NewOperationContext(http.MethodPost, "/api/locations/{id}/photo/skip")
	postSkip.SetSummary("Skip selfie")
	postSkip.SetDescription("Allowed only when the device reported its camera unavailable or denied.")
	postSkip.AddReqStructure(locationPath{})
	postSkip.AddRespStructure(PhotoResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postSkip.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postSkip)

	// POST /api/locations/{id}/answer
	postAnswer, _ := r.NewOperationContext(http.MethodPost, "/api/locations/{id}/answer")
	postAnswer.SetSummary("Answer quiz")
	postAnswer.SetDescription("A wrong answer locks the quiz for the cooldown period. Returns 423 while locked.")
	postAnswer.AddReqStructure(answerInput{})
	postAnswer.AddRespStructure(AnswerResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postAnswer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postAnswer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postAnswer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusLocked))
	_ = r.AddOperation(postAnswer)

	// GET /api/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events for the player's progression. Pass the token as ?token=.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /ws/events
	getWSEvents, _ := r.NewOperationContext(http.MethodGet, "/ws/events")
	getWSEvents.SetSummary("WebSocket event stream")
	getWSEvents.SetDescription("Same events as /api/events over a WebSocket connection.")
	getWSEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWSEvents)

	// POST /api/admin/login
	postLogin, _ := r.NewOperationContext(http.MethodPost, "/api/admin/login")
	postLogin.SetSummary("Admin login")
	postLogin.SetDescription("Sets the admin_session cookie.")
	postLogin.AddReqStructure(AdminLoginRequest{})
	postLogin.AddRespStructure(AdminMeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postLogin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(postLogin)

	// POST /api/admin/logout
	postLogout, _ := r.NewOperationContext(http.MethodPost, "/api/admin/logout")
	postLogout.SetSummary("Admin logout")
	postLogout.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(postLogout)

	// GET /api/admin/me
	getMe, _ := r.NewOperationContext(http.MethodGet, "/api/admin/me")
	getMe.SetSummary("Current admin")
	getMe.AddRespStructure(AdminMeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getMe.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getMe)

	// GET /api/admin/locations
	listLocations, _ := r.NewOperationContext(http.MethodGet, "/api/admin/locations")
	listLocations.SetSummary("List locations (admin)")
	listLocations.SetDescription("Full locations including answers and QR tokens. Requires admin_session cookie.")
	listLocations.AddRespStructure([]AdminLocation{}, openapi.WithHTTPStatus(http.StatusOK))
	listLocations.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(listLocations)

	// POST /api/admin/locations
	createLocation, _ := r.NewOperationContext(http.MethodPost, "/api/admin/locations")
	createLocation.SetSummary("Create location")
	createLocation.SetDescription("Unlock order and QR tokens must be unique across locations.")
	createLocation.AddReqStructure(AdminLocation{})
	createLocation.AddRespStructure(AdminLocation{}, openapi.WithHTTPStatus(http.StatusCreated))
	createLocation.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	createLocation.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(createLocation)

	// GET /api/admin/locations/{id}
	getLocation, _ := r.NewOperationContext(http.MethodGet, "/api/admin/locations/{id}")
	getLocation.SetSummary("Get location")
	getLocation.AddReqStructure(locationPath{})
	getLocation.AddRespStructure(AdminLocation{}, openapi.WithHTTPStatus(http.StatusOK))
	getLocation.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getLocation)

	// PUT /api/admin/locations/{id}
	updateLocation, _ := r.NewOperationContext(http.MethodPut, "/api/admin/locations/{id}")
	updateLocation.SetSummary("Update location")
	updateLocation.AddReqStructure(AdminLocation{})
	updateLocation.AddRespStructure(AdminLocation{}, openapi.WithHTTPStatus(http.StatusOK))
	updateLocation.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	updateLocation.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	updateLocation.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(updateLocation)

	// DELETE /api/admin/locations/{id}
	deleteLocation, _ := r.NewOperationContext(http.MethodDelete, "/api/admin/locations/{id}")
	deleteLocation.SetSummary("Delete location")
	deleteLocation.SetDescription("Blocked once any player has completed the location.")
	deleteLocation.AddReqStructure(locationPath{})
	deleteLocation.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	deleteLocation.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	deleteLocation.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(deleteLocation)

	// GET /api/admin/locations/{id}/qr.png
	getQR, _ := r.NewOperationContext(http.MethodGet, "/api/admin/locations/{id}/qr.png")
	getQR.SetSummary("Printable QR code")
	getQR.SetDescription("PNG QR code for one of the location's tokens; the first token by default.")
	getQR.AddReqStructure(qrQuery{})
	getQR.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK), openapi.WithContentType("image/png"))
	getQR.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getQR)

	// GET /api/admin/signup-codes
	listCodes, _ := r.NewOperationContext(http.MethodGet, "/api/admin/signup-codes")
	listCodes.SetSummary("List signup codes")
	listCodes.AddRespStructure([]AdminSignupCode{}, openapi.WithHTTPStatus(http.StatusOK))
	listCodes.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(listCodes)

	// POST /api/admin/signup-codes
	createCodes, _ := r.NewOperationContext(http.MethodPost, "/api/admin/signup-codes")
	createCodes.SetSummary("Create signup codes")
	createCodes.SetDescription("Generates count random codes and adds the explicit codes. Existing codes are skipped.")
	createCodes.AddReqStructure(CreateCodesRequest{})
	createCodes.AddRespStructure([]AdminSignupCode{}, openapi.WithHTTPStatus(http.StatusCreated))
	createCodes.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(createCodes)

	// GET /api/admin/players
	listPlayers, _ := r.NewOperationContext(http.MethodGet, "/api/admin/players")
	listPlayers.SetSummary("List players")
	listPlayers.AddRespStructure([]AdminPlayer{}, openapi.WithHTTPStatus(http.StatusOK))
	listPlayers.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(listPlayers)

	// GET /api/admin/players/export.xlsx
	exportPlayers, _ := r.NewOperationContext(http.MethodGet, "/api/admin/players/export.xlsx")
	exportPlayers.SetSummary("Export players")
	exportPlayers.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	_ = r.AddOperation(exportPlayers)

	// DELETE /api/admin/players/{playerID}/cooldowns/{locationID}
	clearCooldown, _ := r.NewOperationContext(http.MethodDelete, "/api/admin/players/{playerID}/cooldowns/{locationID}")
	clearCooldown.SetSummary("Clear quiz cooldown")
	clearCooldown.SetDescription("Lifts the lockout and resets the attempt counter for one player and location.")
	clearCooldown.AddReqStructure(cooldownPath{})
	clearCooldown.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK))
	clearCooldown.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(clearCooldown)

	// POST /api/admin/repair-stats
	repairStats, _ := r.NewOperationContext(http.MethodPost, "/api/admin/repair-stats")
	repairStats.SetSummary("Repair player counters")
	repairStats.SetDescription("Recomputes current progress and completion from passing records.")
	repairStats.AddReqStructure(repairQuery{})
	repairStats.AddRespStructure(RepairStatsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(repairStats)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
