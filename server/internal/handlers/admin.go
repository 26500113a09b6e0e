package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/devilmonastery/ara/internal/domain/entities"
	"github.com/devilmonastery/ara/internal/domain/services"
)

const maxListLimit = 500

type userDetailsDTO struct {
	User   *entities.User                  `json:"user"`
	Roles  []*entities.UserRole            `json:"roles"`
	Scopes []*entities.UserProjectScope    `json:"scopes"`
	Groups []*entities.UserGroupMembership `json:"groups"`
}

// ListUsers lists stored users, optionally filtered by ?provider=
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"), 100)
	if err != nil || limit < 1 || limit > maxListLimit {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	offset, err := queryInt(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid_offset")
		return
	}

	users, err := h.users.ListUsers(r.Context(), q.Get("provider"), limit, offset)
	if err != nil {
		h.log.Error("failed to list users", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	if users == nil {
		users = []*entities.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser returns one user with its roles, scopes and group memberships
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	details, err := h.users.GetUser(r.Context(), vars["provider"], vars["login"])
	if err != nil {
		if services.IsUserNotFound(err) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		h.log.Error("failed to load user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, userDetailsDTO{
		User:   details.User,
		Roles:  details.Roles,
		Scopes: details.Scopes,
		Groups: details.Groups,
	})
}

func queryInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
