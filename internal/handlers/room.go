package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/codepair/internal/models"
)

// CreateRoomRequest represents the room creation request.
type CreateRoomRequest struct {
	Language string `json:"language"`
}

// UpdateCodeRequest represents the code update request.
type UpdateCodeRequest struct {
	Code *string `json:"code"`
}

// UpdateLanguageRequest represents the language update request.
type UpdateLanguageRequest struct {
	Language string `json:"language"`
}

const roomNotFound = "Room not found"

// CreateRoom handles room creation. A missing language means javascript.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeBody(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	language := models.LanguageJavaScript
	if req.Language != "" {
		l, err := models.ParseLanguage(req.Language)
		if err != nil {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		language = l
	}

	room, err := h.rooms.CreateRoom(r.Context(), language)
	if err != nil {
		h.Internal(w, r, err)
		return
	}

	h.JSON(w, http.StatusCreated, room)
}

// GetRoom returns a room's current state.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), chi.URLParam(r, "id"))
	h.roomResponse(w, r, room, err)
}

// JoinRoom counts a new participant in.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.JoinRoom(r.Context(), chi.URLParam(r, "id"))
	h.roomResponse(w, r, room, err)
}

// LeaveRoom counts a participant out.
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.LeaveRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.Internal(w, r, err)
		return
	}
	if room == nil {
		h.Error(w, http.StatusNotFound, roomNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateCode replaces the shared code buffer.
func (h *Handler) UpdateCode(w http.ResponseWriter, r *http.Request) {
	var req UpdateCodeRequest
	if err := decodeBody(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Code == nil {
		h.Error(w, http.StatusBadRequest, "code is required")
		return
	}

	room, err := h.rooms.UpdateCode(r.Context(), chi.URLParam(r, "id"), *req.Code)
	h.roomResponse(w, r, room, err)
}

// UpdateLanguage switches the room's language.
func (h *Handler) UpdateLanguage(w http.ResponseWriter, r *http.Request) {
	var req UpdateLanguageRequest
	if err := decodeBody(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	language, err := models.ParseLanguage(req.Language)
	if err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	room, err := h.rooms.UpdateLanguage(r.Context(), chi.URLParam(r, "id"), language)
	h.roomResponse(w, r, room, err)
}

func (h *Handler) roomResponse(w http.ResponseWriter, r *http.Request, room *models.Room, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidLanguage):
		h.Error(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.Internal(w, r, err)
	case room == nil:
		h.Error(w, http.StatusNotFound, roomNotFound)
	default:
		h.JSON(w, http.StatusOK, room)
	}
}
