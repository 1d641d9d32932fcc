package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chronos-cypher-service/internal/app"
	"chronos-cypher-service/internal/domain"
)

// APIHandler exposes registration, the leaderboard view model, and the admin
// team operations over plain HTTP. Admin authentication itself is an external
// collaborator; a static bearer token stands in for it when configured.
type APIHandler struct {
	service    *app.GameService
	adminToken string
}

func NewAPIHandler(service *app.GameService, adminToken string) *APIHandler {
	return &APIHandler{service: service, adminToken: adminToken}
}

// Register wires the routes onto the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /teams", h.handleRegisterTeam)
	mux.HandleFunc("GET /teams/{code}", h.handleGetTeam)
	mux.HandleFunc("GET /teams/{code}/timer", h.handleTimer)
	mux.HandleFunc("POST /teams/{code}/start", h.handleStartGame)
	mux.HandleFunc("GET /leaderboard", h.handleLeaderboard)

	mux.HandleFunc("GET /admin/teams", h.admin(h.handleListTeams))
	mux.HandleFunc("PUT /admin/teams/{code}", h.admin(h.handleRenameTeam))
	mux.HandleFunc("DELETE /admin/teams/{code}", h.admin(h.handleDeleteTeam))
	mux.HandleFunc("POST /admin/teams/{code}/revert", h.admin(h.handleRevertTeam))
}

func (h *APIHandler) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token != h.adminToken {
				writeError(w, http.StatusUnauthorized, "invalid admin credentials")
				return
			}
		}
		next(w, r)
	}
}

type registerTeamRequest struct {
	TeamName string `json:"teamName"`
}

func (h *APIHandler) handleRegisterTeam(w http.ResponseWriter, r *http.Request) {
	var req registerTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	team, err := h.service.RegisterTeam(r.Context(), req.TeamName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (h *APIHandler) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.service.GetTeam(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *APIHandler) handleTimer(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Timer(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *APIHandler) handleStartGame(w http.ResponseWriter, r *http.Request) {
	team, err := h.service.StartGame(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *APIHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.service.Leaderboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.service.ListTeams(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, teams)
}

type renameTeamRequest struct {
	TeamName string `json:"teamName"`
}

func (h *APIHandler) handleRenameTeam(w http.ResponseWriter, r *http.Request) {
	var req renameTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.service.RenameTeam(r.Context(), r.PathValue("code"), req.TeamName); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteTeam(r.Context(), r.PathValue("code")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) handleRevertTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.service.RevertTeam(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeServiceError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrTeamNotFound), errors.Is(err, domain.ErrLevelNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": validation.Fields,
		})
	case errors.Is(err, domain.ErrTimerExpired):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
