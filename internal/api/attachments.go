package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jask/aquaflow/internal/service"
)

const maxUploadMemory = 32 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, r, &service.ValidationError{Field: "attachment", Msg: fmt.Sprintf("invalid multipart form: %v", err)})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["attachment"]
	if len(headers) > service.MaxUploadFiles {
		s.writeError(w, r, &service.ValidationError{Field: "attachment", Msg: fmt.Sprintf("at most %d files per upload", service.MaxUploadFiles)})
		return
	}
	files := make([]service.FileUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll(files)
			s.writeError(w, r, fmt.Errorf("open upload %s: %w", fh.Filename, err))
			return
		}
		files = append(files, service.FileUpload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	defer closeAll(files)

	requestID := strings.TrimSpace(r.FormValue("request_id"))
	if requestID == "" {
		s.writeError(w, r, &service.ValidationError{Field: "request_id", Msg: "is required"})
		return
	}
	saved, err := s.svc.Attachments.Upload(r.Context(), actorFrom(r.Context()), requestID, r.FormValue("quote_id"), files)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":     "Files uploaded successfully.",
		"attachments": saved,
	})
}

func closeAll(files []service.FileUpload) {
	for _, f := range files {
		if c, ok := f.Body.(multipart.File); ok {
			_ = c.Close()
		}
	}
}

// handleDownload streams the blob inline so browsers can preview images and PDFs.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rc, a, err := s.svc.Attachments.Open(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "attachmentID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	if a.MimeType != "" {
		w.Header().Set("Content-Type", a.MimeType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", a.FileName))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, a.FileName, a.CreatedAt, rc)
}
