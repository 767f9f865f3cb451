package identity

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/auth"
	"github.com/procat/backend/internal/httpapi"
)

// Handlers exposes login and the public verification key.
type Handlers struct {
	repo         *Repository
	issuer       *auth.Issuer
	publicKeyPEM string
}

// NewHandlers wires the identity API.
func NewHandlers(repo *Repository, issuer *auth.Issuer, publicKeyPEM string) *Handlers {
	return &Handlers{repo: repo, issuer: issuer, publicKeyPEM: publicKeyPEM}
}

// Register mounts the routes.
func (h *Handlers) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1/auth").Subrouter()
	api.HandleFunc("/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/public-key", h.publicKey).Methods(http.MethodGet)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Role        string `json:"role"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, r, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}

	user, err := h.repo.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	token, err := h.issuer.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		httpapi.WriteError(w, r, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        user.Role,
	})
}

func (h *Handlers) publicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.publicKeyPEM))
}
