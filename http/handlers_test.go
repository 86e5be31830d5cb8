package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/remla25-team6/model-service/ml"
	"github.com/remla25-team6/model-service/preprocess"
)

type fakePredictor struct {
	label  string
	err    error
	panics bool
}

func (f *fakePredictor) Predict(ctx context.Context, text string) (string, error) {
	labels, err := f.PredictBatch(ctx, []string{text})
	if err != nil {
		return "", err
	}
	return labels[0], nil
}

func (f *fakePredictor) PredictBatch(ctx context.Context, texts []string) ([]string, error) {
	if f.panics {
		panic("predictor exploded at /srv/secret")
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, len(texts))
	for i := range out {
		out[i] = f.label
	}
	return out, nil
}

func fixtureRegistry(t *testing.T) *ml.Registry {
	t.Helper()
	vf, err := os.Open("../testdata/vectorizer-v1.json")
	if err != nil {
		t.Fatal(err)
	}
	defer vf.Close()
	vec, err := ml.LoadVectorizer(vf)
	if err != nil {
		t.Fatal(err)
	}
	mf, err := os.Open("../testdata/model-v1.json")
	if err != nil {
		t.Fatal(err)
	}
	defer mf.Close()
	model, err := ml.LoadModel("linear", mf)
	if err != nil {
		t.Fatal(err)
	}
	p, err := ml.NewPipeline(preprocess.New(preprocess.DefaultOptions()), vec, model, map[string]string{"0": "neg", "1": "pos"})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := ml.NewRegistry(p, 16)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func newTestServer(t *testing.T, predictor ml.Predictor, docs bool) http.Handler {
	t.Helper()
	config := DefaultServerConfig()
	config.Docs = docs
	config.Version = "v1-test"
	return NewServer(config, predictor, nil).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var payload map[string]interface{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("invalid json %q: %v", w.Body.String(), err)
		}
	}
	return w, payload
}

func TestHealthHandler(t *testing.T) {
	h := newTestServer(t, &fakePredictor{label: "pos"}, false)
	w, payload := doJSON(t, h, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if payload["status"] != "ok" || payload["model_version"] != "v1-test" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestPredictKnownSentiment(t *testing.T) {
	h := newTestServer(t, fixtureRegistry(t), false)

	tests := []struct {
		input string
		want  string
	}{
		{input: "Wow... Loved this place.", want: "pos"},
		{input: "The selection on the menu was great and so were the prices.", want: "pos"},
		{input: "Crust is not good.", want: "neg"},
		{input: "The service was terrible and the waitress was rude.", want: "neg"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"input": tt.input})
			w, payload := doJSON(t, h, http.MethodPost, "/predict", string(body))
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			if payload["sentiment"] != tt.want {
				t.Errorf("sentiment = %v, want %s", payload["sentiment"], tt.want)
			}
		})
	}
}

func TestPredictIdempotent(t *testing.T) {
	h := newTestServer(t, fixtureRegistry(t), false)
	body := `{"input": "Great food, but the staff were rude"}`
	_, first := doJSON(t, h, http.MethodPost, "/predict", body)
	for i := 0; i < 5; i++ {
		_, payload := doJSON(t, h, http.MethodPost, "/predict", body)
		if payload["sentiment"] != first["sentiment"] {
			t.Fatalf("call %d: got %v, want %v", i, payload["sentiment"], first["sentiment"])
		}
	}
}

func TestPredictValidation(t *testing.T) {
	h := newTestServer(t, fixtureRegistry(t), false)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing input", body: `{"text": "good"}`},
		{name: "empty object", body: `{}`},
		{name: "null input", body: `{"input": null}`},
		{name: "blank input", body: `{"input": "   "}`},
		{name: "numeric input", body: `{"input": 42}`},
		{name: "array body", body: `["good"]`},
		{name: "not json", body: `input=good`},
		{name: "empty body", body: ``},
		{name: "bad instance", body: `{"instances": [{"rating": 5}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, payload := doJSON(t, h, http.MethodPost, "/predict", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if payload["error"] == "" || payload["error"] == nil {
				t.Fatalf("expected error message, got %v", payload)
			}
		})
	}
}

func TestPredictBatchForms(t *testing.T) {
	h := newTestServer(t, fixtureRegistry(t), false)

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "instances of objects",
			body: `{"instances": [{"review": "Amazing burgers"}, {"text": "Horrible experience"}]}`,
			want: []string{"pos", "neg"},
		},
		{
			name: "reviews of strings",
			body: `{"reviews": ["Best tacos in town", "Worst pizza ever", "Delicious"]}`,
			want: []string{"pos", "neg", "pos"},
		},
		{name: "empty instances", body: `{"instances": []}`, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, payload := doJSON(t, h, http.MethodPost, "/predict", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			preds, ok := payload["predictions"].([]interface{})
			if !ok {
				t.Fatalf("expected predictions array, got %v", payload)
			}
			if len(preds) != len(tt.want) {
				t.Fatalf("expected %d predictions, got %d", len(tt.want), len(preds))
			}
			for i := range tt.want {
				if preds[i] != tt.want[i] {
					t.Errorf("prediction %d = %v, want %s", i, preds[i], tt.want[i])
				}
			}
		})
	}
}

func TestCorrectEchoesPrediction(t *testing.T) {
	h := newTestServer(t, fixtureRegistry(t), false)
	input := "The potatoes were like rubber and you could tell they had been made up ahead of time, terrible"

	_, predicted := doJSON(t, h, http.MethodPost, "/predict", `{"input": "`+input+`"}`)

	w, payload := doJSON(t, h, http.MethodPost, "/correct", `{"entries": {"input": "`+input+`", "truth": "pos"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if payload["input"] != input || payload["truth"] != "pos" {
		t.Fatalf("unexpected echo %v", payload)
	}
	if payload["prediction"] != predicted["sentiment"] {
		t.Fatalf("prediction %v differs from /predict %v", payload["prediction"], predicted["sentiment"])
	}
	if payload["prediction"] != "neg" {
		t.Fatalf("expected neg prediction, got %v", payload["prediction"])
	}
}

func TestCorrectValidation(t *testing.T) {
	h := newTestServer(t, fixtureRegistry(t), false)

	tests := []struct {
		name string
		body string
	}{
		{name: "truth outside labels", body: `{"entries": {"input": "good", "truth": "positive"}}`},
		{name: "truth uppercase", body: `{"entries": {"input": "good", "truth": "POS"}}`},
		{name: "missing truth", body: `{"entries": {"input": "good"}}`},
		{name: "missing input", body: `{"entries": {"truth": "neg"}}`},
		{name: "missing entries", body: `{"input": "good", "truth": "neg"}`},
		{name: "entries not object", body: `{"entries": "good"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doJSON(t, h, http.MethodPost, "/correct", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestErrorsDoNotLeakDetails(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "inference failure",
			err:        errors.New("vector width 3 does not match model width 21 at /srv/secret"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "prediction failed",
		},
		{
			name:       "no pipeline",
			err:        ml.ErrNoPipeline,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "model unavailable",
		},
		{
			name:       "request canceled",
			err:        context.Canceled,
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "request canceled",
		},
		{
			name:       "deadline exceeded",
			err:        fmt.Errorf("row 2 at /srv/secret: %w", context.DeadlineExceeded),
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "request canceled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakePredictor{err: tt.err}, false)
			for _, path := range []string{"/predict", "/correct"} {
				body := `{"input": "good"}`
				if path == "/correct" {
					body = `{"entries": {"input": "good", "truth": "pos"}}`
				}
				w, payload := doJSON(t, h, http.MethodPost, path, body)
				if w.Code != tt.wantStatus {
					t.Fatalf("%s: expected %d, got %d", path, tt.wantStatus, w.Code)
				}
				if payload["error"] != tt.wantMsg {
					t.Fatalf("%s: expected %q, got %v", path, tt.wantMsg, payload["error"])
				}
				if strings.Contains(w.Body.String(), "secret") {
					t.Fatalf("%s: response leaked error detail: %s", path, w.Body.String())
				}
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &fakePredictor{label: "pos"}, false)
	w, _ := doJSON(t, h, http.MethodGet, "/predict", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestBodyTooLarge(t *testing.T) {
	config := DefaultServerConfig()
	config.MaxBodyBytes = 32
	h := NewServer(config, &fakePredictor{label: "pos"}, nil).Handler()

	w, payload := doJSON(t, h, http.MethodPost, "/predict", `{"input": "`+strings.Repeat("good ", 20)+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if payload["error"] != "request body too large" {
		t.Fatalf("unexpected error %v", payload["error"])
	}
}

func TestDocsRoutes(t *testing.T) {
	disabled := newTestServer(t, &fakePredictor{label: "pos"}, false)
	w, _ := doJSON(t, disabled, http.MethodGet, "/openapi.yaml", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with docs disabled, got %d", w.Code)
	}

	enabled := newTestServer(t, &fakePredictor{label: "pos"}, true)
	w, _ = doJSON(t, enabled, http.MethodGet, "/openapi.yaml", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("openapi document is not valid yaml: %v", err)
	}
	paths, ok := doc["paths"].(map[interface{}]interface{})
	if !ok {
		t.Fatalf("expected paths in openapi document")
	}
	for _, path := range []string{"/predict", "/correct", "/health"} {
		if _, ok := paths[path]; !ok {
			t.Errorf("openapi document missing %s", path)
		}
	}

	w, _ = doJSON(t, enabled, http.MethodGet, "/docs", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/openapi.yaml") {
		t.Fatalf("unexpected docs response %d", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Chain(LoggerMiddleware(zap.NewNop()), RecoveryMiddleware(zap.NewNop()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Fatal("panic value leaked to client")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, fixtureRegistry(t), false)
	doJSON(t, h, http.MethodPost, "/predict", `{"input": "Amazing"}`)
	doJSON(t, h, http.MethodPost, "/correct", `{"entries": {"input": "Awful", "truth": "pos"}}`)
	doJSON(t, h, http.MethodPost, "/predict", `{}`)
	if w, _ := doJSON(t, h, http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", w.Code)
	}

	w, _ := doJSON(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`predictions_total{label="pos"} 1`,
		`feedback_total{truth="pos",correct="false"} 1`,
		`http_requests_total{route="/predict",status="200"} 1`,
		`http_requests_total{route="/predict",status="400"} 1`,
		`http_requests_total{route="other",status="404"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q\n%s", want, body)
		}
	}
}

func TestPanicIsLoggedAndCounted(t *testing.T) {
	h := newTestServer(t, &fakePredictor{panics: true}, false)

	w, payload := doJSON(t, h, http.MethodPost, "/predict", `{"input": "good"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if payload["error"] != "internal server error" || strings.Contains(w.Body.String(), "secret") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id on recovered response")
	}

	w, _ = doJSON(t, h, http.MethodGet, "/metrics", "")
	if want := `http_requests_total{route="/predict",status="500"} 1`; !strings.Contains(w.Body.String(), want) {
		t.Fatalf("metrics missing %q\n%s", want, w.Body.String())
	}
}
