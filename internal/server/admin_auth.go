package server

import (
	"errors"
	"net/http"
	"time"
)

type adminSession struct {
	AdminID string
	Email   string
}

var errNoAdminSession = errors.New("no valid admin session")

const (
	adminCookieName = "admin_session"
	adminSessionTTL = 7 * 24 * time.Hour
)

// adminFromRequest reads the admin_session cookie and looks up the admin session.
func adminFromRequest(r *http.Request, store Store) (adminSession, error) {
	cookie, err := r.Cookie(adminCookieName)
	if err != nil || cookie.Value == "" {
		return adminSession{}, errNoAdminSession
	}
	return store.AdminFromSession(r.Context(), cookie.Value, time.Now())
}

func setAdminCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     adminCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
