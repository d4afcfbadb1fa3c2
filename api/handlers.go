package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"converter/admission"
	"converter/format"
	"converter/models"
	"converter/store"
)

// maxMultipartMemory bounds how much of the upload stays in memory while
// parsing; the rest spills to temp files.
const maxMultipartMemory = 32 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func rejectionStatus(kind models.RejectionKind) int {
	switch kind {
	case models.RejectSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case models.RejectQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "expected a multipart/form-data body with a file part")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing file part")
		return
	}
	defer file.Close()

	sourceFormat := strings.ToLower(r.FormValue("sourceFormat"))
	if sourceFormat == "" {
		sourceFormat = strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	}
	targetFormat := strings.ToLower(r.FormValue("targetFormat"))
	if sourceFormat == "" || targetFormat == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sourceFormat and targetFormat are required")
		return
	}

	ownerID := r.Header.Get("X-User-ID")
	tier := models.ParseTier(r.Header.Get("X-User-Tier"))

	head := make([]byte, admission.SignatureHeadSize)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read uploaded file")
		return
	}
	head = head[:n]

	decision := s.gate.Admit(r.Context(), admission.Request{
		SourceFormat: sourceFormat,
		TargetFormat: targetFormat,
		Size:         header.Size,
		Head:         head,
		OwnerID:      ownerID,
		Tier:         tier,
	})
	if !decision.Accepted {
		writeError(w, rejectionStatus(decision.Kind), string(decision.Kind), decision.Detail)
		return
	}

	rest, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read uploaded file")
		return
	}
	payload := append(head, rest...)

	opts := models.ConversionOptions{}
	if q := r.FormValue("quality"); q != "" {
		if v, err := strconv.Atoi(q); err == nil {
			opts.Quality = v
		}
	}
	if c := r.FormValue("compression"); c == "true" || c == "1" {
		opts.Compression = true
	}

	recordID := uuid.NewString()
	inputKey := fmt.Sprintf("uploads/%s.%s", recordID, sourceFormat)
	outputKey := fmt.Sprintf("converted/%s.%s", recordID, targetFormat)

	sourceMIME := "application/octet-stream"
	if f, ok := s.registry.Lookup(sourceFormat); ok {
		sourceMIME = f.MIMEType
	}
	if _, err := s.blobs.Put(r.Context(), inputKey, payload, sourceMIME); err != nil {
		log.Printf("[API] Failed to stage upload for %s: %v", recordID, err)
		writeError(w, http.StatusBadGateway, "storage_unavailable", "failed to store the uploaded file")
		return
	}

	rec := &models.ConversionRecord{
		ID:           recordID,
		OwnerID:      ownerID,
		SourceFormat: sourceFormat,
		TargetFormat: targetFormat,
		InputKey:     inputKey,
		FileSize:     header.Size,
	}
	if err := s.store.Create(r.Context(), rec); err != nil {
		log.Printf("[API] Failed to create record %s: %v", recordID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create the conversion")
		return
	}

	priority := models.PriorityAnonymous
	if ownerID != "" {
		priority = models.PriorityAuthenticated
	}
	job := &models.Job{
		RecordID:     recordID,
		OwnerID:      ownerID,
		SourceFormat: sourceFormat,
		TargetFormat: targetFormat,
		InputKey:     inputKey,
		OutputKey:    outputKey,
		FileSize:     header.Size,
		Tier:         tier,
		Options:      opts,
		MaxAttempts:  s.cfg.MaxRetries,
		Priority:     priority,
		EnqueuedAt:   time.Now(),
	}
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		log.Printf("[API] Failed to enqueue job %s: %v", recordID, err)
		writeError(w, http.StatusServiceUnavailable, "queue_unavailable", "failed to queue the conversion")
		return
	}

	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversion not found")
		return
	}
	if err != nil {
		log.Printf("[API] Failed to load record %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load the conversion")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListFormats(w http.ResponseWriter, r *http.Request) {
	grouped := make(map[format.Category][]format.Format, 4)
	for _, c := range format.Categories() {
		grouped[c] = s.registry.ByCategory(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   s.registry.Len(),
		"formats": grouped,
	})
}

func (s *Server) handleFormatsByCategory(w http.ResponseWriter, r *http.Request) {
	category := format.Category(strings.ToLower(r.PathValue("category")))

	formats := s.registry.ByCategory(category)
	if len(formats) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "unknown format category")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"formats":  formats,
	})
}

func (s *Server) handleFormatTargets(w http.ResponseWriter, r *http.Request) {
	id := strings.ToLower(r.PathValue("id"))

	f, ok := s.registry.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown format")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":  f,
		"targets": s.rules.Targets(id),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, p := range s.health {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
