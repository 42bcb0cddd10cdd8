package httpapi

import (
	"net/http"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/notes"
)

type createNoteRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	if s.notes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "notes store not configured")
		return
	}
	s.writeJSON(w, http.StatusOK, s.notes.List())
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	if s.notes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "notes store not configured")
		return
	}
	note, err := s.notes.Get(r.PathValue("id"))
	if err != nil {
		if sdkerrors.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	if s.notes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "notes store not configured")
		return
	}
	var req createNoteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, err := s.notes.Create(req.Title)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	if s.notes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "notes store not configured")
		return
	}
	var update notes.Update
	if err := decodeBody(r, &update); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	note, err := s.notes.Apply(r.PathValue("id"), update)
	if err != nil {
		if sdkerrors.IsNotFound(err) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if s.notes == nil {
		s.writeError(w, http.StatusServiceUnavailable, "notes store not configured")
		return
	}
	if err := s.notes.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Note deleted"})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil {
		s.writeError(w, http.StatusServiceUnavailable, "sources store not configured")
		return
	}
	s.writeJSON(w, http.StatusOK, s.sources.List())
}

func (s *Server) handleAddSources(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil {
		s.writeError(w, http.StatusServiceUnavailable, "sources store not configured")
		return
	}
	var urls []string
	if err := decodeBody(r, &urls); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	all, err := s.sources.Add(urls)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sources": all})
}

func (s *Server) handleClearSources(w http.ResponseWriter, r *http.Request) {
	if s.sources == nil {
		s.writeError(w, http.StatusServiceUnavailable, "sources store not configured")
		return
	}
	if err := s.sources.Clear(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "Sources cleared"})
}
