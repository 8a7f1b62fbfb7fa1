package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/oigen/internal/domain"
)

// Handler exposes the ingestion pipeline as an HTTP endpoint.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a POST endpoint.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	req := Request{
		FileName: header.Filename,
		Data:     bytes.NewReader(data),
	}

	if raw := strings.TrimSpace(r.FormValue("force")); raw != "" {
		force, parseErr := strconv.ParseBool(raw)
		if parseErr != nil {
			http.Error(w, fmt.Sprintf("invalid force value: %v", parseErr), http.StatusBadRequest)
			return
		}
		req.Force = force
	}

	if raw := strings.TrimSpace(r.FormValue("mapping")); raw != "" {
		var mapping domain.Mapping
		if parseErr := json.Unmarshal([]byte(raw), &mapping); parseErr != nil {
			http.Error(w, fmt.Sprintf("invalid mapping: %v", parseErr), http.StatusBadRequest)
			return
		}
		req.Mapping = mapping
	}

	summary, err := h.service.Run(r.Context(), req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrRunInProgress) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
