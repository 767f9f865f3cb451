package pricing

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/auth"
	"github.com/procat/backend/internal/httpapi"
)

// Handlers exposes the price CRUD surface plus the lock protocol.
type Handlers struct {
	service *Service
}

// NewHandlers wires handlers around the service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register mounts the routes. Mutations require the admin role.
func (h *Handlers) Register(r *mux.Router, verifier *auth.Verifier) {
	api := r.PathPrefix("/api/v1/prices").Subrouter()
	api.Use(auth.Middleware(verifier))

	admin := auth.RequireRole(auth.RoleAdmin)
	api.Handle("", admin(http.HandlerFunc(h.create))).Methods(http.MethodPost)
	api.Handle("/{id}", admin(http.HandlerFunc(h.update))).Methods(http.MethodPut)
	api.Handle("/{id}", admin(http.HandlerFunc(h.delete))).Methods(http.MethodDelete)
	api.Handle("/{id}/lock", admin(http.HandlerFunc(h.lock))).Methods(http.MethodPost)
	api.Handle("/{id}/unlock", admin(http.HandlerFunc(h.unlock))).Methods(http.MethodPost)
	api.HandleFunc("", h.list).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := decode(r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	p, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := decode(r, &in); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	p, err := h.service.Update(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, p)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, p)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []Price{}
	}
	httpapi.WriteJSON(w, http.StatusOK, list)
}

type lockRequest struct {
	SagaID string `json:"saga_id"`
}

func (h *Handlers) lock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decode(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if err := h.service.Lock(r.Context(), mux.Vars(r)["id"], req.SagaID); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "locked"})
}

func (h *Handlers) unlock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decode(r, &req); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if err := h.service.Unlock(r.Context(), mux.Vars(r)["id"], req.SagaID); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.KindValidation, "invalid request body")
	}
	return nil
}
