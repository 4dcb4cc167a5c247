package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/executioner/internal/admission"
	"github.com/itstheanurag/executioner/internal/executor"
	"github.com/itstheanurag/executioner/internal/languages"
	"github.com/itstheanurag/executioner/internal/sandbox/sandboxtest"
)

func discardLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestRouter(batch *executor.Batch, registry *languages.Registry, queue *admission.Queue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(registry, queue, batch, nil, discardLogger())
	r := gin.New()
	r.POST("/execute", h.Execute)
	r.GET("/health", h.Health)
	r.GET("/languages", h.Languages)
	return r
}

func doPost(r *gin.Engine, body map[string]any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestExecuteSuccess(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	driver.Default = sandboxtest.Program{Stdout: "hi\n", ExitCode: 0}
	batch := executor.NewBatch(registry, driver, discardLogger(), executor.DefaultConfig())
	queue := admission.NewQueue(5, discardLogger())

	router := newTestRouter(batch, registry, queue)
	w := doPost(router, map[string]any{"language": "python", "code": "print('hi')"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", w.Code, w.Body.String())
	}

	var res executor.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Status != executor.StatusSuccess {
		t.Errorf("status = %q, want success", res.Status)
	}
}

func TestExecuteMissingFieldsReturns400(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	batch := executor.NewBatch(registry, driver, discardLogger(), executor.DefaultConfig())
	queue := admission.NewQueue(5, discardLogger())

	router := newTestRouter(batch, registry, queue)
	w := doPost(router, map[string]any{"language": "python"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestExecuteUnknownLanguageReturns400(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	batch := executor.NewBatch(registry, driver, discardLogger(), executor.DefaultConfig())
	queue := admission.NewQueue(5, discardLogger())

	router := newTestRouter(batch, registry, queue)
	w := doPost(router, map[string]any{"language": "cobol", "code": "x"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestExecuteOversizedSourceReturns413(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	batch := executor.NewBatch(registry, driver, discardLogger(), executor.DefaultConfig())
	queue := admission.NewQueue(5, discardLogger())

	router := newTestRouter(batch, registry, queue)
	w := doPost(router, map[string]any{
		"language": "python",
		"code":     strings.Repeat("a", maxSourceCodePoints+1),
	})

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestHealthReportsUP(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	batch := executor.NewBatch(registry, driver, discardLogger(), executor.DefaultConfig())
	queue := admission.NewQueue(5, discardLogger())

	router := newTestRouter(batch, registry, queue)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "UP" {
		t.Errorf("status = %q, want UP", body["status"])
	}
}

func TestLanguagesListsRegistry(t *testing.T) {
	registry := languages.NewRegistry(languages.Default())
	driver := sandboxtest.NewDriver()
	batch := executor.NewBatch(registry, driver, discardLogger(), executor.DefaultConfig())
	queue := admission.NewQueue(5, discardLogger())

	router := newTestRouter(batch, registry, queue)
	req := httptest.NewRequest(http.MethodGet, "/languages", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var tags []string
	if err := json.Unmarshal(w.Body.Bytes(), &tags); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(tags) != len(registry.List()) {
		t.Errorf("got %d tags, want %d", len(tags), len(registry.List()))
	}
}
