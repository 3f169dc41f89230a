package httpapi

import (
	"net/http"
	"time"

	"github.com/storydesk/curation/internal/app/services/auth"
)

const (
	accessCookieName   = "jwt-access"
	refreshCookieName  = "jwt-refresh"
	rememberCookieName = "jwt-remember"
	csrfCookieName     = "csrftoken"
)

// setSessionCookies installs the token pair. The access and refresh cookies
// are HttpOnly; the remember cookie is readable so the frontend can tell a
// persistent session from a browser one. Without remember, the refresh and
// remember cookies are session scoped.
func setSessionCookies(w http.ResponseWriter, pair auth.TokenPair, remember bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    pair.Access,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	refresh := &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.Refresh,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	rememberFlag := &http.Cookie{
		Name:     rememberCookieName,
		Value:    "false",
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if remember {
		refresh.Expires = pair.RefreshExpiresAt
		rememberFlag.Value = "true"
		rememberFlag.Expires = pair.RefreshExpiresAt
	}
	http.SetCookie(w, refresh)
	http.SetCookie(w, rememberFlag)
}

// clearSessionCookies expires all three session cookies.
func clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName, rememberCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// rememberRequested reports whether the browser carries a persistent
// session, used when refreshing to keep the cookie lifetime consistent.
func rememberRequested(r *http.Request) bool {
	c, err := r.Cookie(rememberCookieName)
	return err == nil && c.Value == "true"
}
