// Package httpapi exposes the application services as a REST API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	app "github.com/storydesk/curation/internal/app"
	"github.com/storydesk/curation/internal/app/domain/user"
	"github.com/storydesk/curation/internal/app/domain/validation"
	"github.com/storydesk/curation/internal/app/services/auth"
	"github.com/storydesk/curation/internal/app/services/publications"
	"github.com/storydesk/curation/internal/app/services/publishers"
	"github.com/storydesk/curation/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the REST API. All /api routes
// require an authenticated user.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", h.register).Methods(http.MethodPost)
	authRouter.HandleFunc("/token", h.login).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", h.login).Methods(http.MethodPost)
	authRouter.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	authRouter.HandleFunc("/token/refresh", h.refreshToken).Methods(http.MethodPost)
	authRouter.HandleFunc("/token/verify", h.verifyToken).Methods(http.MethodPost)
	authRouter.HandleFunc("/csrf", h.csrf).Methods(http.MethodGet)
	authRouter.Handle("/user", h.requireUser(h.currentUser)).Methods(http.MethodGet)
	authRouter.Handle("/user", h.requireUser(h.updateUser)).Methods(http.MethodPatch)
	authRouter.Handle("/queries/report", h.requireStaff(h.queryReport)).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.authenticate)

	// Bulk, lookup, and other literal subroutes come before the {id} routes
	// so their segments are not captured as IDs.
	api.HandleFunc("/publishers/bulk-update", h.bulkUpdatePublishers).Methods(http.MethodPost)
	api.HandleFunc("/publishers/bulk-delete", h.bulkDeletePublishers).Methods(http.MethodPost)
	api.HandleFunc("/publishers", h.listPublishers).Methods(http.MethodGet)
	api.HandleFunc("/publishers", h.createPublisher).Methods(http.MethodPost)
	api.HandleFunc("/publishers/{id}", h.getPublisher).Methods(http.MethodGet)
	api.HandleFunc("/publishers/{id}", h.updatePublisher).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/publishers/{id}", h.deletePublisher).Methods(http.MethodDelete)
	api.HandleFunc("/publishers/{id}/stats", h.publisherStats).Methods(http.MethodGet)
	api.HandleFunc("/publishers/{id}/publications", h.listPublisherPublications).Methods(http.MethodGet)

	api.HandleFunc("/publications/bulk-create", h.bulkCreatePublications).Methods(http.MethodPost)
	api.HandleFunc("/publications/bulk-update", h.bulkUpdatePublications).Methods(http.MethodPost)
	api.HandleFunc("/publications/bulk-delete", h.bulkDeletePublications).Methods(http.MethodPost)
	api.HandleFunc("/publications/visible", h.listVisiblePublications).Methods(http.MethodGet)
	api.HandleFunc("/publications/recent", h.listRecentPublications).Methods(http.MethodGet)
	api.HandleFunc("/publications/search", h.searchPublications).Methods(http.MethodGet)
	api.HandleFunc("/publications/lookup", h.lookupPublication).Methods(http.MethodGet)
	api.HandleFunc("/publications", h.listPublications).Methods(http.MethodGet)
	api.HandleFunc("/publications", h.createPublication).Methods(http.MethodPost)
	api.HandleFunc("/publications/{id}", h.getPublication).Methods(http.MethodGet)
	api.HandleFunc("/publications/{id}", h.updatePublication).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/publications/{id}", h.deletePublication).Methods(http.MethodDelete)

	api.HandleFunc("/stories/current", h.currentStory).Methods(http.MethodGet)
	api.HandleFunc("/stories", h.listStories).Methods(http.MethodGet)
	api.HandleFunc("/stories", h.createStory).Methods(http.MethodPost)
	api.HandleFunc("/stories/{id}", h.getStory).Methods(http.MethodGet)
	api.HandleFunc("/stories/{id}", h.updateStory).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/stories/{id}", h.deleteStory).Methods(http.MethodDelete)
	api.HandleFunc("/stories/{id}/set_current", h.setCurrentStory).Methods(http.MethodPost)
	api.HandleFunc("/stories/{id}/add_source", h.addStorySource).Methods(http.MethodPost)
	api.HandleFunc("/stories/{id}/remove_source", h.removeStorySource).Methods(http.MethodPost)

	api.HandleFunc("/meta", h.meta).Methods(http.MethodGet)

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type contextKey string

const userContextKey contextKey = "user"

// authenticate resolves the request's user from the Authorization header or
// the access cookie and rejects the request when neither holds a valid
// token.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := h.userFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, u)))
	})
}

func (h *handler) requireUser(fn http.HandlerFunc) http.Handler {
	return h.authenticate(fn)
}

// requireStaff additionally rejects non-staff accounts.
func (h *handler) requireStaff(fn http.HandlerFunc) http.Handler {
	return h.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestUser(r).Staff {
			writeError(w, http.StatusForbidden, errors.New("staff access required"))
			return
		}
		fn(w, r)
	}))
}

func (h *handler) userFromRequest(r *http.Request) (user.User, error) {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(accessCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return user.User{}, auth.ErrInvalidToken
	}
	return h.app.Auth.Verify(r.Context(), token)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func requestUser(r *http.Request) user.User {
	u, _ := r.Context().Value(userContextKey).(user.User)
	return u
}

// writeServiceError maps service failures onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var fieldErrs validation.Errors
	switch {
	case errors.As(err, &fieldErrs):
		writeFieldErrors(w, fieldErrs)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, errors.New("not found"))
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, errors.New("invalid email or password"))
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, errors.New("invalid or expired token"))
	case errors.Is(err, publications.ErrTooManyItems), errors.Is(err, publishers.ErrTooManyItems):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func writeFieldErrors(w http.ResponseWriter, errs validation.Errors) {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		if _, ok := fields[fe.Field]; !ok {
			fields[fe.Field] = fe.Message
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  errs.Error(),
		"fields": fields,
	})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
