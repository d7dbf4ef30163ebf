package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdminEmail    = "ops@mall.test"
	testAdminPassword = "s3cret-pass"
)

// adminLogin creates the admin account and returns its session cookie.
func (env *testEnv) adminLogin(t *testing.T) *http.Cookie {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := env.store.EnsureAdmin(context.Background(), testAdminEmail, string(hash)); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}

	w := env.do(http.MethodPost, "/api/admin/login", "", AdminLoginRequest{Email: "OPS@mall.test ", Password: testAdminPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == adminCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("login: no session cookie set")
	return nil
}

func (env *testEnv) admin(method, path string, cookie *http.Cookie, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func newAdminLocation() AdminLocation {
	return AdminLocation{
		ID:            "food_court",
		Name:          "Food Court",
		Floor:         "ff",
		UnlockOrder:   5,
		QuizQuestion:  "Apa ibu kota Indonesia?",
		QuizOptions:   []string{"Jakarta", "Bandung", "Surabaya"},
		CorrectAnswer: "Jakarta",
		Tokens:        []string{"food_court_qr"},
	}
}

func TestAdminSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.admin(http.MethodGet, "/api/admin/me", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without cookie, got %d", w.Code)
	}

	cookie := env.adminLogin(t)

	w = env.admin(http.MethodGet, "/api/admin/me", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var me AdminMeResponse
	decode(t, w, &me)
	if me.Email != testAdminEmail {
		t.Errorf("expected %s, got %s", testAdminEmail, me.Email)
	}

	w = env.do(http.MethodPost, "/api/admin/login", "", AdminLoginRequest{Email: testAdminEmail, Password: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", w.Code)
	}
	w = env.do(http.MethodPost, "/api/admin/login", "", AdminLoginRequest{Email: "nobody@mall.test", Password: "x"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown admin, got %d", w.Code)
	}

	w = env.admin(http.MethodPost, "/api/admin/logout", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	w = env.admin(http.MethodGet, "/api/admin/me", cookie, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", w.Code)
	}
}

func TestAdminRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "ABC123", "081234567890")

	for _, path := range []string{
		"/api/admin/locations",
		"/api/admin/signup-codes",
		"/api/admin/players",
		"/api/admin/players/export.xlsx",
	} {
		w := env.admin(http.MethodGet, path, nil, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, w.Code)
		}
		// A player token is not an admin session.
		w = env.do(http.MethodGet, path, token, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s with player token: expected 401, got %d", path, w.Code)
		}
	}
}

func TestAdminLocationCRUD(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.adminLogin(t)

	w := env.admin(http.MethodGet, "/api/admin/locations", cookie, nil)
	var list []AdminLocation
	decode(t, w, &list)
	if len(list) != 4 || list[0].CorrectAnswer != "17 Agustus 1945" || len(list[0].Tokens) != 3 {
		t.Fatalf("unexpected admin listing: %+v", list)
	}

	w = env.admin(http.MethodPost, "/api/admin/locations", cookie, newAdminLocation())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created AdminLocation
	decode(t, w, &created)
	if created.Floor != "FF" || created.Tokens[0] != "FOOD_COURT_QR" {
		t.Errorf("expected normalized location, got %+v", created)
	}

	w = env.admin(http.MethodGet, "/api/admin/locations/food_court", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	upd := newAdminLocation()
	upd.Name = "Food Court Level 1"
	w = env.admin(http.MethodPut, "/api/admin/locations/food_court", cookie, upd)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	loc, err := env.store.Location(context.Background(), "food_court")
	if err != nil || loc.Name != "Food Court Level 1" {
		t.Errorf("update not stored: %+v %v", loc, err)
	}

	w = env.admin(http.MethodPut, "/api/admin/locations/cinema", cookie, upd)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 updating unknown location, got %d", w.Code)
	}

	// The public board now has five locations.
	w = env.do(http.MethodGet, "/api/locations", "", nil)
	var board []LocationResponse
	decode(t, w, &board)
	if len(board) != 5 || board[4].ID != "food_court" {
		t.Errorf("unexpected board after create: %+v", board)
	}

	w = env.admin(http.MethodDelete, "/api/admin/locations/food_court", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = env.admin(http.MethodGet, "/api/admin/locations/food_court", cookie, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}

func TestAdminLocationRejections(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.adminLogin(t)

	tests := []struct {
		name   string
		mutate func(l *AdminLocation)
		want   int
	}{
		{"duplicate unlock order", func(l *AdminLocation) { l.UnlockOrder = 1 }, http.StatusConflict},
		{"duplicate id", func(l *AdminLocation) { l.ID = "main_lobby"; l.UnlockOrder = 6 }, http.StatusConflict},
		{"token contains another", func(l *AdminLocation) { l.Tokens = []string{"XX_LOCATION_MAIN_LOBBY"} }, http.StatusConflict},
		{"token reused", func(l *AdminLocation) { l.Tokens = []string{"TREASURE_U_WALK"} }, http.StatusConflict},
		{"answer not an option", func(l *AdminLocation) { l.CorrectAnswer = "Medan" }, http.StatusBadRequest},
		{"one option", func(l *AdminLocation) { l.QuizOptions = []string{"Jakarta"} }, http.StatusBadRequest},
		{"bad id", func(l *AdminLocation) { l.ID = "Food Court!" }, http.StatusBadRequest},
		{"zero order", func(l *AdminLocation) { l.UnlockOrder = 0 }, http.StatusBadRequest},
		{"missing question", func(l *AdminLocation) { l.QuizQuestion = " " }, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newAdminLocation()
			tt.mutate(&req)
			w := env.admin(http.MethodPost, "/api/admin/locations", cookie, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestAdminDeleteCompletedLocation(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.adminLogin(t)
	token := env.register(t, "ABC123", "081234567890")
	env.reachQuiz(t, token, "main_lobby")
	env.do(http.MethodPost, "/api/locations/main_lobby/answer", token, AnswerRequest{Answer: "17 Agustus 1945"})

	w := env.admin(http.MethodDelete, "/api/admin/locations/main_lobby", cookie, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdminLocationQR(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.adminLogin(t)

	w := env.admin(http.MethodGet, "/api/admin/locations/main_lobby/qr.png?size=128", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Errorf("body is not a PNG")
	}

	w = env.admin(http.MethodGet, "/api/admin/locations/main_lobby/qr.png?token=treasure_main_lobby", cookie, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for own token, got %d", w.Code)
	}
	w = env.admin(http.MethodGet, "/api/admin/locations/main_lobby/qr.png?token=TREASURE_U_WALK", cookie, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for foreign token, got %d", w.Code)
	}
	w = env.admin(http.MethodGet, "/api/admin/locations/nowhere/qr.png", cookie, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown location, got %d", w.Code)
	}
}

func TestAdminSignupCodes(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.adminLogin(t)

	w := env.admin(http.MethodPost, "/api/admin/signup-codes", cookie, CreateCodesRequest{Count: 3})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created []AdminSignupCode
	decode(t, w, &created)
	if len(created) != 3 {
		t.Fatalf("expected 3 codes, got %d", len(created))
	}
	for _, c := range created {
		if !signupCodeRe.MatchString(c.Code) || c.Status != "ACTIVE" {
			t.Errorf("unexpected generated code: %+v", c)
		}
	}

	w = env.admin(http.MethodPost, "/api/admin/signup-codes", cookie, CreateCodesRequest{Codes: []string{"ABC123", "new001"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &created)
	if len(created) != 1 || created[0].Code != "NEW001" {
		t.Errorf("expected only NEW001, got %+v", created)
	}

	for _, req := range []CreateCodesRequest{{}, {Codes: []string{"TOO-LONG-CODE"}}, {Count: 501}} {
		w = env.admin(http.MethodPost, "/api/admin/signup-codes", cookie, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%+v: expected 400, got %d", req, w.Code)
		}
	}

	env.register(t, "NEW001", "081234567890")
	w = env.admin(http.MethodGet, "/api/admin/signup-codes", cookie, nil)
	var all []AdminSignupCode
	decode(t, w, &all)
	if len(all) != len(demoCodes)+4 {
		t.Fatalf("expected %d codes, got %d", len(demoCodes)+4, len(all))
	}
	for _, c := range all {
		if c.Code == "NEW001" && (c.Status != "USED" || c.UsedBy == "" || c.UsedAt == nil) {
			t.Errorf("expected NEW001 used, got %+v", c)
		}
	}
}

func TestAdminPlayersAndExport(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.adminLogin(t)
	env.register(t, "ABC123", "081234567890")

	w := env.do(http.MethodPost, "/api/register", "", RegisterRequest{Code: "DEF456", Name: "=HYPERLINK(\"x\")", Phone: "081234567891"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = env.admin(http.MethodGet, "/api/admin/players", cookie, nil)
	var players []AdminPlayer
	decode(t, w, &players)
	if len(players) != 2 || players[0].SignupCode != "ABC123" {
		t.Fatalf("unexpected players: %+v", players)
	}

	w = env.admin(http.MethodGet, "/api/admin/players/export.xlsx", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Players")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Name" || rows[1][2] != "ABC123" || rows[1][5] != "4" {
		t.Errorf("unexpected export rows: %v", rows[:2])
	}
	if rows[2][0] != `'=HYPERLINK("x")` {
		t.Errorf("expected formula to be neutralized, got %q", rows[2][0])
	}
}

func TestAdminRepairStats(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.adminLogin(t)
	token := env.register(t, "ABC123", "081234567890")
	env.reachQuiz(t, token, "main_lobby")
	env.do(http.MethodPost, "/api/locations/main_lobby/answer", token, AnswerRequest{Answer: "17 Agustus 1945"})

	if _, err := env.store.db.Exec(`UPDATE players SET current_progress = 0`); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	w := env.admin(http.MethodPost, "/api/admin/repair-stats?dry_run=true", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp RepairStatsResponse
	decode(t, w, &resp)
	if !resp.DryRun || len(resp.Repairs) != 1 || resp.Repairs[0].NewProgress != 1 {
		t.Fatalf("unexpected dry run: %+v", resp)
	}

	w = env.admin(http.MethodPost, "/api/admin/repair-stats", cookie, nil)
	decode(t, w, &resp)
	if resp.DryRun || len(resp.Repairs) != 1 {
		t.Fatalf("unexpected repair: %+v", resp)
	}

	w = env.admin(http.MethodPost, "/api/admin/repair-stats?dry_run=1", cookie, nil)
	decode(t, w, &resp)
	if len(resp.Repairs) != 0 {
		t.Errorf("expected nothing left to repair, got %+v", resp.Repairs)
	}
}

func TestAdminClearCooldown(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.adminLogin(t)

	w := env.do(http.MethodPost, "/api/register", "", RegisterRequest{Code: "ABC123", Name: "Siti Rahma", Phone: "081234567890"})
	var sess SessionResponse
	decode(t, w, &sess)
	env.reachQuiz(t, sess.Token, "main_lobby")

	w = env.do(http.MethodPost, "/api/locations/main_lobby/answer", sess.Token, AnswerRequest{Answer: "Soekarno"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for option of another quiz, got %d", w.Code)
	}
	w = env.do(http.MethodPost, "/api/locations/main_lobby/answer", sess.Token, AnswerRequest{Answer: "18 Agustus 1945"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	path := "/api/admin/players/" + sess.Player.ID + "/cooldowns/main_lobby"
	w = env.admin(http.MethodDelete, path, cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, "/api/locations/main_lobby/answer", sess.Token, AnswerRequest{Answer: "17 Agustus 1945"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected answer accepted after clearing, got %d: %s", w.Code, w.Body.String())
	}

	w = env.admin(http.MethodDelete, "/api/admin/players/nobody/cooldowns/main_lobby", cookie, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown player, got %d", w.Code)
	}
	w = env.admin(http.MethodDelete, "/api/admin/players/"+sess.Player.ID+"/cooldowns/nowhere", cookie, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown location, got %d", w.Code)
	}
}
