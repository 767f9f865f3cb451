package offering

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/auth"
	"github.com/procat/backend/internal/httpapi"
)

// Handlers exposes the offering CRUD surface and the lifecycle endpoints.
type Handlers struct {
	service *Service
}

// NewHandlers wires handlers around the service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register mounts the routes. Mutations and lifecycle require the admin role.
func (h *Handlers) Register(r *mux.Router, verifier *auth.Verifier) {
	api := r.PathPrefix("/api/v1/offerings").Subrouter()
	api.Use(auth.Middleware(verifier))

	admin := auth.RequireRole(auth.RoleAdmin)
	api.Handle("", admin(http.HandlerFunc(h.create))).Methods(http.MethodPost)
	api.Handle("/{id}", admin(http.HandlerFunc(h.update))).Methods(http.MethodPut)
	api.Handle("/{id}", admin(http.HandlerFunc(h.delete))).Methods(http.MethodDelete)
	api.Handle("/{id}/publish", admin(http.HandlerFunc(h.publish))).Methods(http.MethodPost)
	api.Handle("/{id}/retire", admin(http.HandlerFunc(h.retire))).Methods(http.MethodPost)
	api.Handle("/{id}/confirm", admin(http.HandlerFunc(h.confirm))).Methods(http.MethodPost)
	api.Handle("/{id}/fail", admin(http.HandlerFunc(h.fail))).Methods(http.MethodPost)
	api.HandleFunc("", h.list).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpapi.WriteError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	o, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpapi.WriteError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	o, err := h.service.Update(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, o)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, o)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []Offering{}
	}
	httpapi.WriteJSON(w, http.StatusOK, list)
}

func (h *Handlers) publish(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.Publish(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, o)
}

func (h *Handlers) retire(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.Retire(r.Context(), id); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "lifecycle_status": StatusRetired})
}

func (h *Handlers) confirm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.ConfirmPublication(r.Context(), id); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "lifecycle_status": StatusPublished})
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.service.FailPublication(r.Context(), id); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "lifecycle_status": StatusDraft})
}
