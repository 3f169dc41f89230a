package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/storydesk/curation/internal/app/domain/story"
	"github.com/storydesk/curation/internal/app/services/analytics"
)

func (h *handler) listStories(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	list, err := h.app.Stories.List(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	views := make([]storyView, 0, len(list))
	for _, st := range list {
		views = append(views, toStoryView(st))
	}
	writeJSON(w, http.StatusOK, listView{Count: len(views), Results: views})
}

type storyPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	IsCurrent   *bool  `json:"is_current"`
}

func (h *handler) createStory(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload storyPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Stories.Create(r.Context(), story.Story{
		OwnerID:     u.ID,
		Title:       payload.Title,
		Description: payload.Description,
		IsCurrent:   payload.IsCurrent != nil && *payload.IsCurrent,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStoryView(created))
}

func (h *handler) getStory(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	st, err := h.app.Stories.Get(r.Context(), u.ID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoryView(st))
}

func (h *handler) currentStory(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	st, err := h.app.Stories.Current(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoryView(st))
}

func (h *handler) updateStory(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload storyPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Stories.Update(r.Context(), story.Story{
		ID:          mux.Vars(r)["id"],
		OwnerID:     u.ID,
		Title:       payload.Title,
		Description: payload.Description,
	}, payload.IsCurrent)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoryView(updated))
}

func (h *handler) deleteStory(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	if err := h.app.Stories.Delete(r.Context(), u.ID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setCurrentStory(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	payload := struct {
		IsCurrent bool `json:"is_current"`
	}{IsCurrent: true}
	// The body is optional; an empty POST means "make this current".
	_ = decodeJSON(r.Body, &payload)

	updated, err := h.app.Stories.SetCurrent(r.Context(), u.ID, mux.Vars(r)["id"], payload.IsCurrent)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoryView(updated))
}

func (h *handler) addStorySource(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload struct {
		Publication string `json:"publication"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Stories.AddSource(r.Context(), u.ID, mux.Vars(r)["id"], payload.Publication)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoryView(updated))
}

func (h *handler) removeStorySource(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload struct {
		Publication string `json:"publication"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Stories.RemoveSource(r.Context(), u.ID, mux.Vars(r)["id"], payload.Publication)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStoryView(updated))
}

func (h *handler) queryReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.app.Analytics.BuildReport(r.Context(), analytics.ReportParams{
		Days:        intParam(q.Get("days")),
		Limit:       intParam(q.Get("limit")),
		RecentLimit: intParam(q.Get("recent")),
		Referrer:    q.Get("referrer"),
		UserID:      q.Get("user_id"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportView(report))
}

func intParam(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
