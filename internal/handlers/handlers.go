package handlers

import (
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/Brownie44l1/pet-classifier/internal/feedback"
	"github.com/Brownie44l1/pet-classifier/internal/live"
	"github.com/Brownie44l1/pet-classifier/internal/metrics"
	"github.com/Brownie44l1/pet-classifier/internal/model"
	"github.com/Brownie44l1/pet-classifier/internal/predictor"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Predictor interface {
	Predict(raw []byte) (model.PredictionResult, error)
}

type FeedbackProcessor interface {
	Process(sub feedback.Submission) (feedback.Summary, error)
}

type ErrorRecorder interface {
	RecordError(kind string)
}

type Publisher interface {
	Publish(ev live.Event)
}

// Deps are the collaborators a Handler serves requests with. Stats and
// Live are optional.
type Deps struct {
	Predictor      Predictor
	Processor      FeedbackProcessor
	Errors         ErrorRecorder
	Stats          func() (feedback.Stats, error)
	Live           Publisher
	Metadata       model.Metadata
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}
	return &Handler{Deps: deps}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"classes":     h.Metadata.Classes,
		"image_size":  h.Metadata.ImageSize,
		"input_shape": h.Metadata.InputShape,
	})
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "index", map[string]any{
		"Title":    "Pet classifier",
		"Classes":  h.Metadata.Classes,
		"Feedback": r.URL.Query().Get("feedback"),
	})
}

// Result classifies an uploaded image and renders the result page with the
// feedback form.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	raw, err := h.readUpload(w, r)
	if err != nil {
		h.Logger.Warn("rejected upload", "error", err)
		h.Errors.RecordError(metrics.KindInvalidRequest)
		h.renderError(w, http.StatusBadRequest, "Please upload an image file.")
		return
	}

	result, err := h.Predictor.Predict(raw)
	if err != nil {
		status, message := h.predictionFailed(err)
		h.renderError(w, status, message)
		return
	}
	h.publishPrediction(result)

	encoded := base64.StdEncoding.EncodeToString(raw)
	contentType := http.DetectContentType(raw)
	h.render(w, http.StatusOK, "result", map[string]any{
		"Title":             "Result",
		"Label":             result.Label,
		"Confidence":        strconv.FormatFloat(result.Confidence, 'f', -1, 64),
		"ConfidencePercent": result.ConfidencePercent(),
		"Image":             encoded,
		"Src":               template.URL("data:" + contentType + ";base64," + encoded),
	})
}

// PredictFromImage is the JSON form of Result.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	raw, err := h.readUpload(w, r)
	if err != nil {
		h.Logger.Warn("rejected upload", "error", err)
		h.Errors.RecordError(metrics.KindInvalidRequest)
		http.Error(w, "No image file provided. Use 'file' or 'image' as the form field name", http.StatusBadRequest)
		return
	}

	result, err := h.Predictor.Predict(raw)
	if err != nil {
		status, message := h.predictionFailed(err)
		http.Error(w, message, status)
		return
	}
	h.publishPrediction(result)

	writeJSON(w, http.StatusOK, model.NewPredictionResponse(result, ""))
}

// Feedback stores a judgement from the result page and redirects back to
// the upload form with a banner.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.feedbackLimit())
	if err := r.ParseMultipartForm(h.feedbackLimit()); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.feedbackFailed(w, r, &feedback.ValidationError{Field: "form", Reason: err.Error()})
		return
	}

	sub := feedback.Submission{
		Prediction:   r.PostFormValue("prediction"),
		FeedbackType: r.PostFormValue("feedback"),
		Image:        r.PostFormValue("image"),
	}
	if s := strings.TrimSpace(r.PostFormValue("confidence")); s != "" {
		c, err := strconv.ParseFloat(s, 64)
		if err != nil {
			h.feedbackFailed(w, r, &feedback.ValidationError{Field: "confidence", Reason: "not a number"})
			return
		}
		sub.Confidence = &c
	}

	summary, err := h.Processor.Process(sub)
	if err != nil {
		h.feedbackFailed(w, r, err)
		return
	}

	if h.Live != nil {
		isCorrect := summary.IsCorrect
		h.Live.Publish(live.Event{
			Type:         "feedback",
			Class:        summary.PredictedClass,
			FeedbackType: string(summary.FeedbackType),
			IsCorrect:    &isCorrect,
		})
	}
	http.Redirect(w, r, "/?feedback=thanks", http.StatusSeeOther)
}

// feedbackLimit bounds a feedback body. The image arrives as base64, and a
// URL-encoded form escapes '+', '/' and '=' to three bytes each.
func (h *Handler) feedbackLimit() int64 {
	encoded := int64(base64.StdEncoding.EncodedLen(int(h.MaxUploadBytes)))
	return encoded*3/2 + 64<<10
}

func (h *Handler) FeedbackStats(w http.ResponseWriter, r *http.Request) {
	if h.Stats == nil {
		h.NotFound(w, r)
		return
	}
	stats, err := h.Stats()
	if err != nil {
		h.Logger.Error("failed to compute feedback stats", "error", err)
		h.Errors.RecordError(metrics.KindPersistence)
		http.Error(w, "Failed to read feedback", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Errors.RecordError(metrics.KindNotFound)
	http.Error(w, "Not found", http.StatusNotFound)
}

func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		return nil, err
	}

	var (
		file   multipart.File
		header *multipart.FileHeader
		err    error
	)
	for _, field := range []string{"file", "image"} {
		if file, header, err = r.FormFile(field); err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	h.Logger.Debug("received file", "name", header.Filename, "size", header.Size)
	return io.ReadAll(file)
}

// predictionFailed records the failure once and returns what the client
// is told.
func (h *Handler) predictionFailed(err error) (int, string) {
	kind := errorKind(err)
	h.Errors.RecordError(kind)

	switch kind {
	case metrics.KindImageDecode:
		h.Logger.Warn("image decode failed", "error", err)
		return http.StatusBadRequest, "That file doesn't look like an image we can read."
	case metrics.KindUnsupportedFormat:
		h.Logger.Warn("unsupported image", "error", err)
		return http.StatusUnsupportedMediaType, "That image format isn't supported."
	}
	h.Logger.Error("prediction failed", "kind", kind, "error", err)
	return http.StatusInternalServerError, "Prediction failed, please try again."
}

func (h *Handler) feedbackFailed(w http.ResponseWriter, r *http.Request, err error) {
	kind := errorKind(err)
	h.Errors.RecordError(kind)
	if kind == metrics.KindPersistence || kind == metrics.KindOther {
		h.Logger.Error("feedback failed", "kind", kind, "error", err)
	} else {
		h.Logger.Warn("feedback rejected", "kind", kind, "error", err)
	}
	http.Redirect(w, r, "/?feedback=failed", http.StatusSeeOther)
}

func (h *Handler) publishPrediction(result model.PredictionResult) {
	if h.Live == nil {
		return
	}
	h.Live.Publish(live.Event{
		Type:           "prediction",
		Class:          result.Label,
		Confidence:     result.Confidence,
		LatencySeconds: result.LatencySeconds(),
	})
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		h.Logger.Error("template error", "template", name, "error", err)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, status int, message string) {
	h.render(w, status, "error", map[string]any{"Title": "Error", "Message": message})
}

// errorKind maps a failure to its application_errors_total label.
func errorKind(err error) string {
	var (
		predErr        *predictor.PredictionError
		validationErr  *feedback.ValidationError
		decodeErr      *feedback.DecodeError
		persistenceErr *feedback.PersistenceError
	)
	switch {
	case errors.As(err, &predErr):
		return predErr.Kind
	case errors.As(err, &validationErr):
		return metrics.KindInvalidRequest
	case errors.As(err, &decodeErr):
		return metrics.KindFeedbackDecode
	case errors.As(err, &persistenceErr):
		return metrics.KindPersistence
	}
	return metrics.KindOther
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
