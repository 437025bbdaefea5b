package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/zombor/invoice-parser/internal/scanning"
)

// maxUploadSize bounds multipart uploads; multi-page scans at high resolution get large
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// extractStatus maps a pipeline error to an HTTP status
func extractStatus(err error) int {
	var conversion *scanning.DocumentConversionError
	var unavailable *scanning.BackendUnavailableError
	switch {
	case errors.As(err, &conversion), errors.Is(err, scanning.ErrUnsupportedMedia):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleExtract runs an uploaded document through the pipeline
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a PDF or image to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	doc, err := scanning.NewSourceDocument(header.Filename, data, header.Header.Get("Content-Type"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.service.Extract(r.Context(), doc)
	if err != nil {
		slog.Error("Error extracting invoice", "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), extractStatus(err))
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusCreated, result)
}

// handleListRuns returns the run history
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns()
	if err != nil {
		if errors.Is(err, ErrHistoryDisabled) {
			corsError(w, "Run history is disabled", http.StatusNotFound)
			return
		}
		slog.Error("Error listing runs", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns a single run
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.service.GetRun(id)
	if err != nil {
		corsError(w, "Run not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	writeJSON(w, http.StatusOK, run)
}

// handleGetArchive returns the zip archive of a finished run
func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, filename, err := s.service.Archive(id)
	if err != nil {
		if errors.Is(err, ErrRunNotComplete) {
			corsError(w, "Run has no artifacts", http.StatusConflict)
			return
		}
		corsError(w, "Run not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

// handleGetDiagnostic returns the raw reply of a run whose JSON could not be parsed
func (s *Server) handleGetDiagnostic(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.service.Diagnostic(id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoDiagnostic):
			corsError(w, "Run has no diagnostic capture", http.StatusNotFound)
		case errors.Is(err, ErrRunNotFound), errors.Is(err, ErrHistoryDisabled):
			corsError(w, "Run not found", http.StatusNotFound)
		default:
			corsError(w, "Error reading diagnostic capture", http.StatusInternalServerError)
		}
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

// handleDeleteRun deletes a run
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteRun(id); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			corsError(w, "Run not found", http.StatusNotFound)
			return
		}
		corsError(w, "Error deleting run", http.StatusInternalServerError)
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
