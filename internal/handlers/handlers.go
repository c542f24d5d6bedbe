package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/agrisense/cropdoc/internal/crophealth"
	"github.com/agrisense/cropdoc/internal/features"
	"github.com/agrisense/cropdoc/internal/remedy"
)

// Diagnoser is the analysis pipeline as seen by HTTP callers.
type Diagnoser interface {
	Analyze(ctx context.Context, data []byte) (*crophealth.Prediction, error)
	Classify(fv features.FeatureVector) (*crophealth.Prediction, error)
}

type Handler struct {
	diagnoser Diagnoser
	maxUpload int64
	logger    *zap.Logger
}

func NewHandler(d Diagnoser, maxUpload int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		diagnoser: d,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: msg})
}

// writeAnalysisError maps pipeline errors to the status and message the UI
// shows next to the re-upload button.
func (h *Handler) writeAnalysisError(w http.ResponseWriter, err error) {
	kind := crophealth.Kind(err)
	switch {
	case errors.Is(err, crophealth.ErrImageDecode):
		writeError(w, http.StatusBadRequest, kind, "The file could not be read as an image. Supported: JPEG, PNG, GIF, BMP, TIFF, WebP")
	case errors.Is(err, crophealth.ErrNotAPlant):
		writeError(w, http.StatusUnprocessableEntity, kind, "Please upload a photo of your crop")
	case errors.Is(err, crophealth.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, kind, "Crop analysis is temporarily unavailable")
	default:
		h.logger.Error("analysis failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, kind, "Something went wrong, please try again")
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, remedy.All())
}

// Classify diagnoses a JSON feature vector.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Failed to read request body")
		return
	}

	var fv features.FeatureVector
	if err := json.Unmarshal(body, &fv); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON")
		return
	}
	for _, v := range []float64{fv.RedMean, fv.GreenMean, fv.BlueMean, fv.RedStd, fv.GreenStd, fv.BlueStd} {
		if v < 0 || v > 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "Feature values must be in [0,1]")
			return
		}
	}

	pred, err := h.diagnoser.Classify(fv)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

// Analyze diagnoses an uploaded image sent as the "image" multipart field.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "Image is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "No image file provided. Use 'image' as the form field name")
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" && !strings.HasPrefix(ct, "image/") {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Only image uploads are accepted")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Failed to read image")
		return
	}
	h.logger.Debug("received image", zap.String("file", header.Filename), zap.Int64("size", header.Size))

	pred, err := h.diagnoser.Analyze(r.Context(), data)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}
