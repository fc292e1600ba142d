package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AddParticipantRequest represents the participant registration request.
type AddParticipantRequest struct {
	Name *string `json:"name"`
}

// AddParticipant registers a participant in a room.
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req AddParticipantRequest
	if err := decodeBody(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var name *string
	if req.Name != nil {
		if n := sanitizeName(*req.Name); n != "" {
			name = &n
		}
	}

	p, err := h.rooms.AddParticipant(r.Context(), chi.URLParam(r, "id"), name)
	if err != nil {
		h.Internal(w, r, err)
		return
	}
	if p == nil {
		h.Error(w, http.StatusNotFound, roomNotFound)
		return
	}

	h.JSON(w, http.StatusCreated, p)
}

// ListParticipants lists a room's participants.
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.rooms.ListParticipants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.Internal(w, r, err)
		return
	}
	if participants == nil {
		h.Error(w, http.StatusNotFound, roomNotFound)
		return
	}

	h.JSON(w, http.StatusOK, participants)
}

// RemoveParticipant removes a participant from a room.
func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	ok, err := h.rooms.RemoveParticipant(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "pid"))
	if err != nil {
		h.Internal(w, r, err)
		return
	}
	if !ok {
		h.Error(w, http.StatusNotFound, "Participant not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
