package httpapi

import (
	"encoding/json"
	"net/http"
)

type saveRequest struct {
	Path     string          `json:"path"`
	Notebook json.RawMessage `json:"notebook"`
}

type runRequest struct {
	Path string `json:"path"`
}

type runCellRequest struct {
	Path      string `json:"path"`
	CellIndex int    `json:"cell_index"`
}

type suggestRequest struct {
	Path      string `json:"path"`
	CellIndex int    `json:"cell_index"`
	Mode      string `json:"mode"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListDocuments(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	doc, err := s.service.GetDocument(r.Context(), path)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"path":     path,
		"notebook": doc,
	})
}

func (s *Server) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.service.SaveDocument(r.Context(), req.Path, req.Notebook); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": req.Path})
}

func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	executed, err := s.service.RunAll(r.Context(), req.Path)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"path":     req.Path,
		"notebook": executed,
	})
}

func (s *Server) handleRunCell(w http.ResponseWriter, r *http.Request) {
	var req runCellRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	merged, cell, err := s.service.RunCell(r.Context(), req.Path, req.CellIndex)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"path":       req.Path,
		"cell_index": req.CellIndex,
		"cell":       cell,
		"notebook":   merged,
	})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	suggestion, err := s.service.SuggestCell(r.Context(), req.Path, req.CellIndex, req.Mode)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"suggestion": suggestion})
}
