package handlers

import (
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Brownie44l1/fer-service/internal/model"
	"github.com/Brownie44l1/fer-service/internal/preprocess"
	"github.com/gin-gonic/gin"
)

var (
	ErrMissingFile   = errors.New("no image file provided")
	ErrEmptyFilename = errors.New("empty filename")
)

// Form keys accepted for the upload, in priority order.
var fileKeys = []string{"file", "image"}

const defaultMaxUploadBytes = 10 << 20

type Handler struct {
	predictor      model.Predictor
	modelPath      string
	maxUploadBytes int64
}

type Option func(*Handler)

// WithMaxUploadBytes caps request bodies; larger bodies get 413.
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func NewHandler(predictor model.Predictor, modelPath string, opts ...Option) *Handler {
	h := &Handler{
		predictor:      predictor,
		modelPath:      modelPath,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type HealthResponse struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	ModelPath   string   `json:"model_path"`
	Classes     []string `json:"classes"`
}

type PredictionResponse struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

type TensorRequest struct {
	Image []float32 `json:"image"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		ModelLoaded: h.predictor != nil,
		ModelPath:   h.modelPath,
		Classes:     model.Classes,
	})
}

// Predict classifies a multipart image upload.
func (h *Handler) Predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	header, err := uploadedFile(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondError(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit), err)
		case errors.Is(err, ErrMissingFile):
			respondError(c, http.StatusBadRequest, "No image file provided. Use form key 'file' or 'image'.", err)
		case errors.Is(err, ErrEmptyFilename):
			respondError(c, http.StatusBadRequest, "Empty filename or no file uploaded.", err)
		default:
			respondError(c, http.StatusBadRequest, "Failed to parse form: "+err.Error(), err)
		}
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Failed to process image: "+err.Error(), err)
		return
	}
	defer file.Close()

	requestLogger(c).Info("Received file", "filename", header.Filename, "size", header.Size)

	tensor, err := preprocess.Preprocess(file)
	if err != nil {
		if errors.Is(err, preprocess.ErrInvalidImage) {
			respondError(c, http.StatusBadRequest, "Uploaded file is not a valid image.", err)
			return
		}
		respondError(c, http.StatusBadRequest,
			"Failed to process image: "+causeMessage(err, preprocess.ErrPreprocess), err)
		return
	}

	h.respondPrediction(c, tensor)
}

// PredictTensor classifies an already preprocessed NHWC tensor sent as JSON.
func (h *Handler) PredictTensor(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	var req TensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit), err)
			return
		}
		respondError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error(), err)
		return
	}

	tensor, err := model.NewTensor(req.Image)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), err)
		return
	}

	h.respondPrediction(c, tensor)
}

func (h *Handler) respondPrediction(c *gin.Context, tensor model.Tensor) {
	result, err := model.Classify(h.predictor, tensor)
	if err != nil {
		respondError(c, http.StatusInternalServerError,
			"Prediction failed: "+causeMessage(err, model.ErrInference), err)
		return
	}

	c.JSON(http.StatusOK, PredictionResponse{
		Emotion:    result.Label,
		Confidence: roundConfidence(result.Score),
	})
}

// uploadedFile returns the first upload under fileKeys that has a filename.
// A key sent with an empty filename is parsed as a plain form value; it is
// skipped, and reported only when no later key carries a file.
func uploadedFile(c *gin.Context) (*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, ErrMissingFile
		}
		return nil, err
	}

	var empty []string
	for _, key := range fileKeys {
		if files := form.File[key]; len(files) > 0 && files[0].Filename != "" {
			return files[0], nil
		}
		_, isFile := form.File[key]
		_, isValue := form.Value[key]
		if isFile || isValue {
			empty = append(empty, key)
		}
	}
	if len(empty) > 0 {
		return nil, fmt.Errorf("%w under %q", ErrEmptyFilename, empty)
	}
	return nil, ErrMissingFile
}

func roundConfidence(score float32) float64 {
	return math.RoundToEven(float64(score)*1e4) / 1e4
}

// causeMessage strips the kind prefix that wrapping with kind added.
func causeMessage(err, kind error) string {
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

func respondError(c *gin.Context, status int, message string, err error) {
	log := requestLogger(c)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "status", status, "error", err)
	} else {
		log.Warn("Request rejected", "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message})
}
