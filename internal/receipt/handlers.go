package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize bounds the multipart form (high-resolution phone photos)
const maxUploadSize = int64(50 << 20)

// pageData is what the dashboard template renders
type pageData struct {
	Snapshot
	Notice *Notice
	Format *Formatter
}

// stateResponse is the JSON form of the dashboard state
type stateResponse struct {
	Snapshot
	Notice *Notice `json:"notice,omitempty"`
}

// backToDashboard redirects the browser to the dashboard after a form post
func backToDashboard(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// contentTypeFor determines the content type of an uploaded file
func contentTypeFor(filename, declared string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// handleIndex renders the dashboard, loading the receipt list on first presentation
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.view.Present(r.Context())

	data := pageData{
		Snapshot: s.view.Snapshot(),
		Notice:   s.notices.Pending(),
		Format:   s.format,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.Execute(w, data); err != nil {
		slog.Error("Error rendering dashboard", "error", err)
	}
}

// handleState returns the dashboard state as JSON
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		Snapshot: s.view.Snapshot(),
		Notice:   s.notices.Pending(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleSelectFile stores the picked file as the pending draft
func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "File is too large. Maximum size is 50MB.", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		// Cancelled picker
		backToDashboard(w, r)
		return
	}
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		http.Error(w, "Error reading file", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		http.Error(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	file := &File{
		Filename:    header.Filename,
		ContentType: contentTypeFor(header.Filename, header.Header.Get("Content-Type")),
		Data:        data,
	}
	if err := s.view.SelectFile(r.Context(), file); err != nil {
		slog.Error("Error selecting file", "filename", header.Filename, "error", err)
		http.Error(w, "Error preparing preview", http.StatusInternalServerError)
		return
	}

	backToDashboard(w, r)
}

// handleDiscardDraft drops the pending draft
func (s *Server) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.view.DiscardDraft(r.Context()); err != nil {
		slog.Error("Error discarding draft", "error", err)
	}
	backToDashboard(w, r)
}

// handleUpload submits the pending draft. The outcome reaches the user as a notice.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// The analysis runs to completion even if the browser gives up waiting
	err := s.view.SubmitUpload(context.WithoutCancel(r.Context()))
	if errors.Is(err, ErrNoDraft) || errors.Is(err, ErrUploadInProgress) {
		slog.Debug("Upload ignored", "reason", err)
	}
	backToDashboard(w, r)
}

// handleRefresh fetches the receipt list again
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// Failures show up as the failed load banner
	_ = s.view.LoadReceipts(r.Context())
	backToDashboard(w, r)
}

// handleAcknowledge dismisses the pending notice
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.notices.Acknowledge()
	backToDashboard(w, r)
}

// handlePreview serves the preview of the pending draft
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, contentType, err := s.previews.Get(r.Context(), id)
	if errors.Is(err, ErrPreviewNotFound) {
		http.Error(w, "Preview not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error reading preview", "preview_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
