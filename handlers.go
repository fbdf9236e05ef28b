package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"imaging-gateway/dicomweb"
	"imaging-gateway/retrieval"
	"imaging-gateway/scp"
	"imaging-gateway/storage"
)

// Handlers groups the HTTP surface's dependencies.
type Handlers struct {
	Cfg     Config
	DB      *FirestoreDB
	Writer  *storage.Writer
	Gate    *storage.AdmissionGate
	Archive *storage.Archive
}

// writeJSON is a small helper to send JSON responses with status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON error: %v", err)
	}
}

// HealthHandler implements GET /healthz.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":              true,
		"space_available": h.Gate.IsSpaceAvailable(),
	})
}

// ScpStatusHandler implements GET /internal/scp and reports the live
// association count.
func (h *Handlers) ScpStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_associations": scp.ActiveAssociations.Load(),
	})
}

// StowHandler implements POST /dicomweb/studies and
// POST /dicomweb/studies/{study}. The body is multipart/related with
// application/dicom parts; instances whose StudyInstanceUID does not
// match the path UID are skipped.
func (h *Handlers) StowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.Gate.HasSpaceToStore() {
		writeJSON(w, http.StatusInsufficientStorage, map[string]interface{}{
			"ok":    false,
			"error": "insufficient_storage",
		})
		return
	}

	// Path is /dicomweb/studies or /dicomweb/studies/{study}.
	studyUID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/dicomweb/studies"), "/")

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/related" || params["boundary"] == "" {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]interface{}{
			"ok":    false,
			"error": "expected multipart/related with boundary",
		})
		return
	}

	correlationID := uuid.NewString()
	mr := multipart.NewReader(r.Body, params["boundary"])
	var stored, skipped int
	var paths []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok":    false,
				"error": "malformed multipart body",
			})
			return
		}
		data, err := io.ReadAll(part)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok":    false,
				"error": "reading part failed",
			})
			return
		}

		ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
		if err != nil {
			log.Printf("StowHandler: skipping unparseable part: %v", err)
			skipped++
			continue
		}
		sopUID := dicomweb.DatasetString(&ds, tag.SOPInstanceUID)
		partStudyUID := dicomweb.DatasetString(&ds, tag.StudyInstanceUID)
		if sopUID == "" {
			log.Printf("StowHandler: skipping part without SOPInstanceUID")
			skipped++
			continue
		}
		if studyUID != "" && partStudyUID != studyUID {
			log.Printf("StowHandler: skipping instance %s: study %q does not match %q", sopUID, partStudyUID, studyUID)
			skipped++
			continue
		}

		group := partStudyUID
		if group == "" {
			group = "unassigned"
		}
		info, err := h.Writer.Store(r.Context(), group, sopUID, correlationID, data)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, scp.ErrInsufficientStorage) {
				status = http.StatusInsufficientStorage
			}
			writeJSON(w, status, map[string]interface{}{
				"ok":    false,
				"error": "storing instance failed",
			})
			return
		}
		paths = append(paths, info.FilePath)
		stored++
	}

	if stored == 0 {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"ok":      false,
			"error":   "no matching instances",
			"skipped": skipped,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"correlation_id": correlationID,
		"stored":         stored,
		"skipped":        skipped,
		"paths":          paths,
	})
}

// RequestsHandler implements POST /api/inference/requests (queue a new
// request) and GET /api/inference/requests/{id} (inspect one).
func (h *Handlers) RequestsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req retrieval.InferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok":    false,
				"error": "invalid request body",
			})
			return
		}
		if len(req.InputResources) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok":    false,
				"error": "input_resources is required",
			})
			return
		}
		if req.TransactionID == "" {
			req.TransactionID = uuid.NewString()
		}
		if req.StoragePath == "" {
			req.StoragePath = filepath.Join(h.Cfg.StorageRoot, "requests", req.TransactionID)
		}
		if err := h.DB.Add(r.Context(), &req); err != nil {
			log.Printf("RequestsHandler: queueing request: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"ok":    false,
				"error": "queueing request failed",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"ok":             true,
			"transaction_id": req.TransactionID,
		})
	case http.MethodGet:
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/inference/requests"), "/")
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		req, err := h.DB.Get(r.Context(), id)
		if err != nil {
			log.Printf("RequestsHandler: fetching request %s: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"ok":    false,
				"error": "fetching request failed",
			})
			return
		}
		if req == nil {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"ok":    false,
				"error": "request_not_found",
			})
			return
		}
		writeJSON(w, http.StatusOK, req)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ArchiveHandler implements GET /internal/archive?prefix= for listing
// archived objects. Returns 404 when no archive bucket is configured.
func (h *Handlers) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"ok":    false,
			"error": "archive_not_configured",
		})
		return
	}
	names, err := h.Archive.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		log.Printf("ArchiveHandler: listing archive: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":    false,
			"error": "listing archive failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"objects": names,
	})
}
