package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/remla25-team6/model-service/ml"
	"github.com/remla25-team6/model-service/monitoring"
)

// Sentiment labels accepted as feedback truth.
const (
	LabelPositive = "pos"
	LabelNegative = "neg"
)

// Handlers serves the prediction, feedback and operational routes.
type Handlers struct {
	predictor ml.Predictor
	metrics   *monitoring.ServiceMetrics
	logger    *zap.Logger
	version   string
	docs      bool
}

func NewHandlers(predictor ml.Predictor, metrics *monitoring.ServiceMetrics, logger *zap.Logger, version string, docs bool) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewServiceMetrics()
	}
	return &Handlers{predictor: predictor, metrics: metrics, logger: logger, version: version, docs: docs}
}

func RegisterHandlers(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("POST /correct", h.handleCorrect)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	if h.docs {
		mux.HandleFunc("GET /openapi.yaml", handleOpenAPI)
		mux.HandleFunc("GET /docs", handleDocs)
	}
}

type predictRequest struct {
	Input     *string           `json:"input"`
	Instances []json.RawMessage `json:"instances"`
	Reviews   []json.RawMessage `json:"reviews"`
}

type correctRequest struct {
	Entries *struct {
		Input *string `json:"input"`
		Truth *string `json:"truth"`
	} `json:"entries"`
}

type correctResponse struct {
	Input      string `json:"input"`
	Truth      string `json:"truth"`
	Prediction string `json:"prediction"`
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "model_version": h.version})
}

func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	io.WriteString(w, h.metrics.ExportPrometheus())
}

func (h *Handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if req.Input != nil {
		text, err := requireText(*req.Input, "input")
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		label, err := h.predictor.Predict(r.Context(), text)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		h.metrics.RecordPredictions(label)
		respondJSON(w, http.StatusOK, map[string]string{"sentiment": label})
		return
	}

	items, field := req.Instances, "instances"
	if items == nil {
		items, field = req.Reviews, "reviews"
	}
	if items == nil {
		h.respondError(w, r, validationError(`request body must contain an "input" string`))
		return
	}

	texts := make([]string, len(items))
	for i, raw := range items {
		text, err := instanceText(raw)
		if err != nil {
			h.respondError(w, r, validationError(`each element of "`+field+`" must be a non-empty string or an object with an "input", "review" or "text" string`))
			return
		}
		texts[i] = text
	}
	labels, err := h.predictor.PredictBatch(r.Context(), texts)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.metrics.RecordPredictions(labels...)
	respondJSON(w, http.StatusOK, map[string][]string{"predictions": labels})
}

func (h *Handlers) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req correctRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Entries == nil {
		h.respondError(w, r, validationError(`request body must contain an "entries" object`))
		return
	}
	if req.Entries.Input == nil {
		h.respondError(w, r, validationError(`"entries" must contain an "input" string`))
		return
	}
	text, err := requireText(*req.Entries.Input, "entries.input")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Entries.Truth == nil || (*req.Entries.Truth != LabelPositive && *req.Entries.Truth != LabelNegative) {
		h.respondError(w, r, validationError(`"entries.truth" must be "pos" or "neg"`))
		return
	}
	truth := *req.Entries.Truth

	label, err := h.predictor.Predict(r.Context(), text)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	// Feedback is logged only; there is no feedback store.
	h.logger.Info("feedback received",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("truth", truth),
		zap.String("prediction", label),
		zap.Bool("correct", truth == label),
		zap.Int("input_len", len(text)),
	)
	h.metrics.RecordFeedback(truth, label)
	respondJSON(w, http.StatusOK, correctResponse{Input: text, Truth: truth, Prediction: label})
}

// decodeBody decodes a single JSON object from the request body.
func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &APIError{Kind: KindValidation, Message: "request body too large", Err: err}
		}
		return &APIError{Kind: KindValidation, Message: "could not read request body", Err: err}
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return validationError("request body must be a JSON object")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &APIError{Kind: KindValidation, Message: "request body must be a JSON object with string fields", Err: err}
	}
	return nil
}

func requireText(text, field string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", validationError(`"` + field + `" must be a non-empty string`)
	}
	return text, nil
}

// instanceText accepts either a bare string or an object carrying the text
// under "input", "review" or "text".
func instanceText(raw json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return requireText(text, "instance")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}
	for _, key := range []string{"input", "review", "text"} {
		value, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, &text); err != nil {
			return "", err
		}
		return requireText(text, key)
	}
	return "", errors.New("no text field")
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode JSON", zap.Error(err))
	}
}
