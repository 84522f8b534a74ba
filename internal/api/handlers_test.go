package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"baborette-reconciliation-service/internal/models"
	"baborette-reconciliation-service/internal/reconciler"
	"baborette-reconciliation-service/pkg/errors"
)

type fakeService struct {
	lastProcess reconciler.ProcessRequest
	lastPatch   reconciler.ItemPatch
	lastNotas   string
	rec         *models.ReconciliacaoMensal
	err         error
}

func (f *fakeService) ProcessMapa(_ context.Context, req reconciler.ProcessRequest) (*reconciler.ProcessResult, error) {
	f.lastProcess = req
	if f.err != nil {
		return nil, f.err
	}
	return &reconciler.ProcessResult{Reconciliacao: f.rec}, nil
}

func (f *fakeService) Get(_ context.Context, id string) (*models.ReconciliacaoMensal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeService) List(_ context.Context, _ reconciler.ListFilter) ([]*models.ReconciliacaoMensal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*models.ReconciliacaoMensal{f.rec}, nil
}

func (f *fakeService) ResolveItem(_ context.Context, _, _ string, patch reconciler.ItemPatch) (*models.ReconciliacaoMensal, error) {
	f.lastPatch = patch
	if patch.IsEmpty() {
		return nil, errors.ValidationError(errors.CodeInvalidPayload, "body", "empty patch")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeService) StartReview(_ context.Context, _ string) (*models.ReconciliacaoMensal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeService) UpdateNotas(_ context.Context, _, notas string) (*models.ReconciliacaoMensal, error) {
	f.lastNotas = notas
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func newTestRouter(t *testing.T, svc ReconciliationService) http.Handler {
	t.Helper()
	h, err := NewHandler(svc, t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}
	return NewRouter(h)
}

func multipartUpload(t *testing.T, fields map[string]string, fileField, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write file content: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}
	return &body, w.FormDataContentType()
}

func TestCreateReconciliation(t *testing.T) {
	svc := &fakeService{rec: &models.ReconciliacaoMensal{ID: "rec-1", Mes: 3, Ano: 2025}}
	router := newTestRouter(t, svc)

	body, contentType := multipartUpload(t,
		map[string]string{"mes": "3", "ano": "2025"},
		"arquivo", "mapa-marco.pdf", "%PDF-1.4 fake")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliacoes", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.lastProcess.Mes != 3 || svc.lastProcess.Ano != 2025 {
		t.Errorf("Unexpected period forwarded: %d/%d", svc.lastProcess.Mes, svc.lastProcess.Ano)
	}
	if svc.lastProcess.NomeArquivo != "mapa-marco.pdf" {
		t.Errorf("Expected original file name forwarded, got %q", svc.lastProcess.NomeArquivo)
	}
	if svc.lastProcess.FilePath == "" || svc.lastProcess.FilePath == "mapa-marco.pdf" {
		t.Errorf("Expected upload stored under a fresh path, got %q", svc.lastProcess.FilePath)
	}

	var resp struct {
		Success bool                        `json:"success"`
		Data    *models.ReconciliacaoMensal `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if !resp.Success || resp.Data == nil || resp.Data.ID != "rec-1" {
		t.Errorf("Unexpected response: %s", rr.Body.String())
	}
}

func TestCreateReconciliation_MissingFile(t *testing.T) {
	router := newTestRouter(t, &fakeService{})

	body, contentType := multipartUpload(t,
		map[string]string{"mes": "3", "ano": "2025"}, "", "", "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliacoes", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing file, got %d", rr.Code)
	}
}

func TestCreateReconciliation_RemovesUploadOnFailure(t *testing.T) {
	svc := &fakeService{err: errors.ParseError(errors.CodeEmptyDocument, "mapa", nil)}
	uploadDir := t.TempDir()
	h, err := NewHandler(svc, uploadDir)
	if err != nil {
		t.Fatalf("Failed to create handler: %v", err)
	}
	router := NewRouter(h)

	body, contentType := multipartUpload(t,
		map[string]string{"mes": "3", "ano": "2025"},
		"arquivo", "scanned.pdf", "no text layer")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliacoes", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unparseable document, got %d", rr.Code)
	}

	entries, err := os.ReadDir(uploadDir)
	if err != nil {
		t.Fatalf("Failed to read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected rejected upload removed, found %d files", len(entries))
	}
}

func TestCreateReconciliation_BadPeriod(t *testing.T) {
	router := newTestRouter(t, &fakeService{})

	body, contentType := multipartUpload(t,
		map[string]string{"mes": "março", "ano": "2025"},
		"arquivo", "mapa.pdf", "x")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliacoes", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric mes, got %d", rr.Code)
	}
}

func TestGetReconciliation_NotFound(t *testing.T) {
	router := newTestRouter(t, &fakeService{err: errors.NotFoundError("reconciliacao", "missing")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliacoes/missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if resp.Success || resp.Error.Code != string(errors.CodeNotFound) {
		t.Errorf("Unexpected error envelope: %s", rr.Body.String())
	}
}

func TestUpdateItem_PartialPatch(t *testing.T) {
	svc := &fakeService{rec: &models.ReconciliacaoMensal{
		ID:     "rec-1",
		Estado: models.EstadoAprovada,
		Itens: []models.ItemReconciliacao{{
			ID:        "item-1",
			Resolvido: true,
			ClienteID: strPtr("c-1"),
			VendaID:   strPtr("v-1"),
			Cliente:   &models.Cliente{ID: "c-1", Codigo: "C0010", Nome: "Farmacia Sao Jose"},
			Venda:     &models.Venda{ID: "v-1", ClienteID: "c-1"},
		}},
	}}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/reconciliacoes/rec-1/itens/item-1",
		strings.NewReader(`{"resolvido": true}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.lastPatch.Resolvido == nil || !*svc.lastPatch.Resolvido {
		t.Error("Expected resolvido=true forwarded")
	}
	if svc.lastPatch.NotaResolucao != nil {
		t.Error("Expected absent nota left nil in the patch")
	}

	// The response items must carry their client and sale projections.
	var resp struct {
		Data *models.ReconciliacaoMensal `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if len(resp.Data.Itens) != 1 {
		t.Fatalf("Expected 1 item in response, got %d", len(resp.Data.Itens))
	}
	item := resp.Data.Itens[0]
	if item.Cliente == nil || item.Cliente.Codigo != "C0010" {
		t.Error("Expected client projection on updated item")
	}
	if item.Venda == nil || item.Venda.ID != "v-1" {
		t.Error("Expected sale projection on updated item")
	}
}

func strPtr(s string) *string { return &s }

func TestUpdateItem_EmptyBody(t *testing.T) {
	router := newTestRouter(t, &fakeService{})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/reconciliacoes/rec-1/itens/item-1",
		strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty patch, got %d", rr.Code)
	}
}

func TestStartReview_InvalidTransition(t *testing.T) {
	router := newTestRouter(t, &fakeService{
		err: errors.ReconciliationError(errors.CodeInvalidTransition, "start review", nil),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliacoes/rec-1/revisao", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for invalid transition, got %d", rr.Code)
	}
}

func TestUpdateNotas(t *testing.T) {
	svc := &fakeService{rec: &models.ReconciliacaoMensal{ID: "rec-1"}}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/reconciliacoes/rec-1/notas",
		strings.NewReader(`{"notas": "diferença conferida com o vendedor"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if svc.lastNotas != "diferença conferida com o vendedor" {
		t.Errorf("Unexpected notas forwarded: %q", svc.lastNotas)
	}

	// Missing notas field fails binding; empty string is a valid clear.
	req = httptest.NewRequest(http.MethodPut, "/api/v1/reconciliacoes/rec-1/notas",
		strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing notas, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/reconciliacoes/rec-1/notas",
		strings.NewReader(`{"notas": ""}`))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 for clearing notas, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}
}
