package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/filter"
	"github.com/storydesk/curation/internal/app/metrics"
	"github.com/storydesk/curation/internal/app/services/publications"
	"github.com/storydesk/curation/internal/app/services/publishers"
)

// Publishers

func (h *handler) listPublishers(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	f := filter.ParsePublisher(r.URL.Query())
	h.recordSearch(r)

	list, total, err := h.app.Publishers.List(r.Context(), u.ID, f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	views := make([]publisherView, 0, len(list))
	for _, p := range list {
		views = append(views, toPublisherView(p))
	}
	writeJSON(w, http.StatusOK, listView{Count: total, Results: views})
}

type publisherPayload struct {
	Name   string `json:"name"`
	Link   string `json:"link"`
	Hidden bool   `json:"hidden"`
}

func (h *handler) createPublisher(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload publisherPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Publishers.Create(r.Context(), publisher.Publisher{
		OwnerID: u.ID,
		Name:    payload.Name,
		Link:    payload.Link,
		Hidden:  payload.Hidden,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPublisherView(created))
}

func (h *handler) getPublisher(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	p, err := h.app.Publishers.Get(r.Context(), u.ID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublisherView(p))
}

func (h *handler) updatePublisher(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload publisherPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Publishers.Update(r.Context(), publisher.Publisher{
		ID:      mux.Vars(r)["id"],
		OwnerID: u.ID,
		Name:    payload.Name,
		Link:    payload.Link,
		Hidden:  payload.Hidden,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublisherView(updated))
}

func (h *handler) deletePublisher(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	if err := h.app.Publishers.Delete(r.Context(), u.ID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listPublisherPublications narrows the publication list to one publisher.
// The publisher filter from the query string is overridden by the path.
func (h *handler) listPublisherPublications(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	if _, err := h.app.Publishers.Get(r.Context(), u.ID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	f := filter.ParsePublication(r.URL.Query())
	f.PublisherID = mux.Vars(r)["id"]
	h.recordSearch(r)

	list, total, err := h.app.Publications.List(r.Context(), u.ID, f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listView{Count: total, Results: toPublicationViews(list)})
}

func (h *handler) publisherStats(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	stats, err := h.app.Publishers.Stats(r.Context(), u.ID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsView(stats))
}

func (h *handler) meta(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	meta, err := h.app.Publishers.BuildMeta(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMetaView(meta))
}

// Publications

func (h *handler) listPublications(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	f := filter.ParsePublication(r.URL.Query())
	h.recordSearch(r)

	list, total, err := h.app.Publications.List(r.Context(), u.ID, f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listView{Count: total, Results: toPublicationViews(list)})
}

// recordSearch captures the search term for the signed-in user, with the
// request path as the referrer. Best effort; the list request proceeds
// regardless.
func (h *handler) recordSearch(r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		term = r.URL.Query().Get("search")
	}
	if term == "" {
		return
	}
	h.app.Analytics.Record(r.Context(), requestUser(r).ID, r.URL.Path, term)
	metrics.RecordQueryCaptured()
}

func (h *handler) listVisiblePublications(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	f := filter.ParsePublication(r.URL.Query())
	h.recordSearch(r)

	list, total, err := h.app.Publications.ListVisible(r.Context(), u.ID, f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listView{Count: total, Results: toPublicationViews(list)})
}

func (h *handler) listRecentPublications(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	days := intParam(r.URL.Query().Get("days"))
	page := filter.ParsePage(r.URL.Query())

	list, total, err := h.app.Publications.ListRecent(r.Context(), u.ID, days, page)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listView{Count: total, Results: toPublicationViews(list)})
}

func (h *handler) searchPublications(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	f := filter.ParsePublication(r.URL.Query())
	h.recordSearch(r)

	list, total, err := h.app.Publications.Search(r.Context(), u.ID, f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listView{Count: total, Results: toPublicationViews(list)})
}

type publicationPayload struct {
	Publisher   string     `json:"publisher"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Hidden      bool       `json:"hidden"`
	PublishedAt *time.Time `json:"published_at"`
}

func (p publicationPayload) toDomain(ownerID, id string) publication.Publication {
	return publication.Publication{
		ID:          id,
		OwnerID:     ownerID,
		PublisherID: p.Publisher,
		Title:       p.Title,
		Link:        p.Link,
		Hidden:      p.Hidden,
		PublishedAt: p.PublishedAt,
	}
}

func (h *handler) createPublication(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload publicationPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Publications.Create(r.Context(), payload.toDomain(u.ID, ""))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPublicationView(created))
}

func (h *handler) getPublication(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	p, err := h.app.Publications.Get(r.Context(), u.ID, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicationView(p))
}

func (h *handler) lookupPublication(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	link := r.URL.Query().Get("link")
	if link == "" {
		writeError(w, http.StatusBadRequest, errors.New("link parameter is required"))
		return
	}
	p, err := h.app.Publications.GetByLink(r.Context(), u.ID, link)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicationView(p))
}

func (h *handler) updatePublication(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload publicationPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Publications.Update(r.Context(), payload.toDomain(u.ID, mux.Vars(r)["id"]))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicationView(updated))
}

func (h *handler) deletePublication(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	if err := h.app.Publications.Delete(r.Context(), u.ID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Bulk operations

// bulkStatus picks the response code: every item succeeded, every item
// failed, or a mix.
func bulkStatus(succeeded, failed, allOK int) int {
	switch {
	case failed == 0:
		return allOK
	case succeeded == 0:
		return http.StatusBadRequest
	default:
		return http.StatusMultiStatus
	}
}

func (h *handler) bulkCreatePublications(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload []publicationPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	items := make([]publication.Publication, 0, len(payload))
	for _, item := range payload {
		items = append(items, item.toDomain(u.ID, ""))
	}
	result, err := h.app.Publications.BulkCreate(r.Context(), u.ID, items)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.RecordBulkItems("create", result.Succeeded, result.Failed)
	writeJSON(w, bulkStatus(result.Succeeded, result.Failed, http.StatusCreated), toBulkResultView(result, true))
}

func (h *handler) bulkUpdatePublications(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload struct {
		IDs       []string `json:"ids"`
		Hidden    *bool    `json:"hidden"`
		Publisher *string  `json:"publisher"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Publications.BulkUpdate(r.Context(), u.ID, payload.IDs, publications.BulkFields{
		Hidden:      payload.Hidden,
		PublisherID: payload.Publisher,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.RecordBulkItems("update", result.Succeeded, result.Failed)
	writeJSON(w, bulkStatus(result.Succeeded, result.Failed, http.StatusOK), toBulkResultView(result, true))
}

func (h *handler) bulkDeletePublications(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Publications.BulkDelete(r.Context(), u.ID, payload.IDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.RecordBulkItems("delete", result.Succeeded, result.Failed)
	writeJSON(w, bulkStatus(result.Succeeded, result.Failed, http.StatusOK), toBulkResultView(result, false))
}

func (h *handler) bulkUpdatePublishers(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload struct {
		IDs    []string `json:"ids"`
		Hidden *bool    `json:"hidden"`
		Link   *string  `json:"link"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Publishers.BulkUpdate(r.Context(), u.ID, payload.IDs, publishers.BulkFields{
		Hidden: payload.Hidden,
		Link:   payload.Link,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.RecordBulkItems("publisher_update", result.Succeeded, result.Failed)
	writeJSON(w, bulkStatus(result.Succeeded, result.Failed, http.StatusOK), toPublisherBulkResultView(result, true))
}

func (h *handler) bulkDeletePublishers(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.app.Publishers.BulkDelete(r.Context(), u.ID, payload.IDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	metrics.RecordBulkItems("publisher_delete", result.Succeeded, result.Failed)
	writeJSON(w, bulkStatus(result.Succeeded, result.Failed, http.StatusOK), toPublisherBulkResultView(result, false))
}
