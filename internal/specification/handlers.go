package specification

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/auth"
	"github.com/procat/backend/internal/httpapi"
)

// Handlers exposes the specification CRUD surface plus the reference
// validation endpoint.
type Handlers struct {
	service *Service
}

// NewHandlers wires handlers around the service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register mounts the routes. Mutations require the admin role.
func (h *Handlers) Register(r *mux.Router, verifier *auth.Verifier) {
	api := r.PathPrefix("/api/v1/specifications").Subrouter()
	api.Use(auth.Middleware(verifier))

	api.Handle("", auth.RequireRole(auth.RoleAdmin)(http.HandlerFunc(h.create))).Methods(http.MethodPost)
	api.Handle("/{id}", auth.RequireRole(auth.RoleAdmin)(http.HandlerFunc(h.update))).Methods(http.MethodPut)
	api.Handle("/{id}", auth.RequireRole(auth.RoleAdmin)(http.HandlerFunc(h.delete))).Methods(http.MethodDelete)
	api.HandleFunc("", h.list).Methods(http.MethodGet)
	api.HandleFunc("/validate", h.validate).Methods(http.MethodPost)
	api.HandleFunc("/{id}", h.get).Methods(http.MethodGet)
}

func (h *Handlers) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpapi.WriteError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	spec, err := h.service.Create(r.Context(), in)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, spec)
}

func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpapi.WriteError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	spec, err := h.service.Update(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, spec)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) get(w http.ResponseWriter, r *http.Request) {
	spec, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, spec)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []Specification{}
	}
	httpapi.WriteJSON(w, http.StatusOK, list)
}

type validateRequest struct {
	SpecificationIDs []string `json:"specification_ids"`
}

// validate reports whether every referenced specification exists. The saga's
// validation step calls it through the service client as well.
func (h *Handlers) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}
	ok, err := h.service.ValidateExisting(r.Context(), req.SpecificationIDs)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}
