package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

// in-memory part of a multipart form; the rest spills to temp files
const maxMemory = 32 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type uploadResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "File too large"})
			return
		}
		hlog.FromRequest(r).Debug().Err(err).Msg("Upload without multipart body")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file part"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		// a part sent with an empty filename is parsed as a plain value
		if _, ok := r.MultipartForm.Value["file"]; ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No selected file"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file part"})
		return
	}
	defer file.Close()

	if err := s.svc.Upload(r.Context(), header.Filename, file); err != nil {
		if errors.Is(err, models.ErrNoFileProvided) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No selected file"})
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("file", header.Filename).Msg("Upload failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to process document"})
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}
	if !s.svc.Status().Ready {
		writeNoDocument(w)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No query provided"})
		return
	}

	msg, err := s.svc.Query(r.Context(), req.Query, req.ThreadID)
	switch {
	case errors.Is(err, models.ErrIndexNotReady):
		writeNoDocument(w)
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("thread_id", req.ThreadID).Msg("Query failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to answer query"})
		return
	}
	if msg.References == nil {
		msg.References = []models.Reference{}
	}
	writeJSON(w, http.StatusOK, models.QueryResponse{Messages: []models.Message{msg}})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"index":  s.svc.Status(),
	})
}

func writeNoDocument(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, models.QueryResponse{Messages: []models.Message{{
		Content:    models.NoDocumentMessage,
		References: []models.Reference{},
	}}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
