package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/services/auth"
)

// boolish accepts a JSON bool or a string flag, since browser form clients
// send "true"/"false" strings for remember.
type boolish bool

func (b *boolish) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = boolish(t)
	case string:
		if parsed, err := strconv.ParseBool(t); err == nil {
			*b = boolish(parsed)
		} else {
			*b = t != ""
		}
	default:
		*b = false
	}
	return nil
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email     string `json:"email"`
		Password1 string `json:"password1"`
		Password2 string `json:"password2"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Auth.Register(r.Context(), user.Registration{
		Email:     payload.Email,
		Password1: payload.Password1,
		Password2: payload.Password2,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(created))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string  `json:"email"`
		Password string  `json:"password"`
		Remember boolish `json:"remember"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	u, pair, err := h.app.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	setSessionCookies(w, pair, bool(payload.Remember))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    toUserView(u),
		"access":  pair.Access,
		"refresh": pair.Refresh,
	})
}

// refreshToken rotates a refresh token taken from the body, or failing
// that, from the refresh cookie.
func (h *handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Refresh string `json:"refresh"`
	}
	// The body is optional for cookie-based clients.
	_ = decodeJSON(r.Body, &payload)
	token := payload.Refresh
	if token == "" {
		if c, err := r.Cookie(refreshCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		writeServiceError(w, auth.ErrInvalidToken)
		return
	}

	pair, err := h.app.Auth.Refresh(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	setSessionCookies(w, pair, rememberRequested(r))
	writeJSON(w, http.StatusOK, map[string]string{
		"access":  pair.Access,
		"refresh": pair.Refresh,
	})
}

func (h *handler) verifyToken(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := h.app.Auth.Verify(r.Context(), payload.Token); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
}

// logout revokes the refresh token when one is usable and always clears the
// session cookies. It never fails.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Refresh string `json:"refresh"`
	}
	_ = decodeJSON(r.Body, &payload)
	token := payload.Refresh
	if token == "" {
		if c, err := r.Cookie(refreshCookieName); err == nil {
			token = c.Value
		}
	}
	if token != "" {
		h.app.Auth.Logout(r.Context(), token)
	}
	clearSessionCookies(w)
	w.WriteHeader(http.StatusResetContent)
}

// csrf hands the frontend a readable token to echo back in mutating
// requests routed through browsers.
func (h *handler) csrf(w http.ResponseWriter, _ *http.Request) {
	token := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"detail": "CSRF cookie set"})
}

func (h *handler) currentUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUserView(requestUser(r)))
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Auth.UpdateProfile(r.Context(), requestUser(r).ID, payload.FirstName, payload.LastName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(updated))
}
