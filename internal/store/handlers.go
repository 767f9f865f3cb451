package store

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/httpapi"
)

// Handlers exposes the public store read API and the internal sync surface
// the saga worker uses.
type Handlers struct {
	documents DocumentStore
	index     SearchIndex
	projector *Projector
}

// NewHandlers wires the store API.
func NewHandlers(documents DocumentStore, index SearchIndex, projector *Projector) *Handlers {
	return &Handlers{documents: documents, index: index, projector: projector}
}

// Register mounts the routes. Reads are public; the sync surface is meant to
// stay behind the gateway's internal routing.
func (h *Handlers) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1/store").Subrouter()
	api.HandleFunc("/offerings", h.list).Methods(http.MethodGet)
	api.HandleFunc("/search", h.search).Methods(http.MethodGet)
	api.HandleFunc("/offerings/{id}", h.get).Methods(http.MethodGet)
	api.HandleFunc("/sync/{id}", h.sync).Methods(http.MethodPost)
	api.HandleFunc("/offerings/{id}", h.remove).Methods(http.MethodDelete)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context())
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if docs == nil {
		docs = []Document{}
	}
	httpapi.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := Query{
		Text:             params.Get("q"),
		Channel:          params.Get("channel"),
		CharacteristicID: params.Get("characteristic_id"),
	}
	if raw := params.Get("min_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpapi.WriteError(w, r, apperr.New(apperr.KindValidation, "min_price must be numeric"))
			return
		}
		q.MinPrice = &v
	}
	if raw := params.Get("max_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httpapi.WriteError(w, r, apperr.New(apperr.KindValidation, "max_price must be numeric"))
			return
		}
		q.MaxPrice = &v
	}

	docs, err := h.index.Search(r.Context(), q)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, docs)
}

func (h *Handlers) sync(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.projector.Sync(r.Context(), id); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "status": "synced"})
}

func (h *Handlers) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.projector.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
