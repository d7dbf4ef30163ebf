package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandleSPA(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>hunt</html>"), 0o644)
	os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644)

	h := handleSPA(dir)

	tests := []struct {
		path      string
		wantCode  int
		wantBody  string
		wantCache string
	}{
		{"/", http.StatusOK, "hunt", "no-cache"},
		{"/hunt/east_dome", http.StatusOK, "hunt", "no-cache"},
		{"/assets/app.js", http.StatusOK, "console.log", "public, max-age=31536000, immutable"},
		{"/api/nope", http.StatusNotFound, `"error"`, ""},
		{"/ws/nope", http.StatusNotFound, `"error"`, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

		if rec.Code != tt.wantCode {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.wantCode)
		}
		if !strings.Contains(rec.Body.String(), tt.wantBody) {
			t.Errorf("%s: body %q missing %q", tt.path, rec.Body.String(), tt.wantBody)
		}
		if got := rec.Header().Get("Cache-Control"); got != tt.wantCache {
			t.Errorf("%s: cache-control = %q, want %q", tt.path, got, tt.wantCache)
		}
	}
}
