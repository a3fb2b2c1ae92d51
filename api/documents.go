package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/fabfab/ragserver/ingestion"
)

const maxUploadMemory = 32 << 20

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("no file provided: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	result := s.documents.Ingest(r.Context(), data, header.Filename)
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUploadBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}

	files := make([]ingestion.File, 0, len(headers))
	for _, header := range headers {
		data, err := readUpload(header)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("read upload %s: %w", header.Filename, err))
			return
		}
		files = append(files, ingestion.File{Name: header.Filename, Data: data})
	}

	s.writeJSON(w, http.StatusOK, s.documents.IngestAll(r.Context(), files))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := strings.TrimSpace(r.PathValue("documentId"))
	if documentID == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("documentId is required"))
		return
	}

	if err := s.documents.Delete(r.Context(), documentID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
