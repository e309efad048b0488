package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/testutil"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	return newRouter(db, testutil.Logger(t)), db
}

func doRequest(t *testing.T, r http.Handler, method, path string, body any, actorId string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actorId != "" {
		req.Header.Set("X-Actor-Id", actorId)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHTTPStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{utils.NewNotFoundError("x"), http.StatusNotFound},
		{utils.NewAlreadyResolvedError("x"), http.StatusConflict},
		{utils.NewInvalidArgumentError("x"), http.StatusBadRequest},
		{utils.NewInvalidStateError("x"), http.StatusConflict},
		{utils.NewStorageError(context.DeadlineExceeded), http.StatusInternalServerError},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := httpStatusOf(tc.err); got != tc.want {
			t.Fatalf("httpStatusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestDashboardEndpoint(t *testing.T) {
	r, db := newTestRouter(t)
	testutil.SeedOpenDiscrepancies(t, db, 3, "cars", models.DiscrepancySeverityCritical, models.DiscrepancyTypeMissingInTarget)
	testutil.SeedOpenDiscrepancies(t, db, 2, "customers", models.DiscrepancySeverityInfo, models.DiscrepancyTypeDuplicate)

	rec := doRequest(t, r, http.MethodGet, "/internal/reconciliation/dashboard", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	dashboard := decode[models.DiscrepancyDashboard](t, rec)
	if dashboard.TotalDiscrepancies != 5 {
		t.Fatalf("total = %d, want 5", dashboard.TotalDiscrepancies)
	}
	if len(dashboard.BySeverity) != 2 || dashboard.BySeverity[0].Dimension != "critical" {
		t.Fatalf("unexpected by_severity %+v", dashboard.BySeverity)
	}
	if rec.Header().Get("X-Correlation-Id") == "" {
		t.Fatalf("expected a correlation id on the response")
	}
}

func TestListDiscrepanciesIncludesRunSummary(t *testing.T) {
	r, db := newTestRouter(t)
	completed := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	testutil.SeedMigrationRun(t, db, models.MigrationRun{
		ID: "mig-run-7", EntityType: "cars", Status: models.MigrationRunStatusComplete,
		StartedAt: completed.Add(-time.Hour), CompletedAt: &completed,
	})
	runId := "mig-run-7"
	testutil.SeedDiscrepancy(t, db, models.NewDiscrepancy{
		RunId: &runId, EntityType: "cars", EntityId: "UTLX_BAD_001",
		DiscrepancyType: models.DiscrepancyTypeMissingInTarget, Severity: models.DiscrepancySeverityCritical,
	})
	testutil.SeedDiscrepancyWithID(t, db, "disc-no-run", "customers")

	rec := doRequest(t, r, http.MethodGet, "/internal/reconciliation/discrepancies?entity_type=cars&page=1&page_size=10", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	type row struct {
		EntityId string `json:"entity_id"`
		Run      *struct {
			EntityType string `json:"entity_type"`
			Status     string `json:"status"`
		} `json:"run"`
	}
	page := decode[struct {
		Data       []row `json:"data"`
		Total      int64 `json:"total"`
		Page       int   `json:"page"`
		PageSize   int   `json:"page_size"`
		TotalPages int   `json:"total_pages"`
	}](t, rec)
	if page.Total != 1 || len(page.Data) != 1 || page.PageSize != 10 || page.TotalPages != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Data[0].EntityId != "UTLX_BAD_001" {
		t.Fatalf("unexpected row %+v", page.Data[0])
	}
	if page.Data[0].Run == nil || page.Data[0].Run.Status != "complete" || page.Data[0].Run.EntityType != "cars" {
		t.Fatalf("expected run summary, got %+v", page.Data[0].Run)
	}
}

func TestListDiscrepanciesRejectsBadFilters(t *testing.T) {
	r, _ := newTestRouter(t)
	paths := []string{
		"/internal/reconciliation/discrepancies?severity=urgent",
		"/internal/reconciliation/discrepancies?status=closed",
		"/internal/reconciliation/discrepancies?entity_type=Cars!",
		"/internal/reconciliation/discrepancies?page=abc",
	}
	for _, path := range paths {
		rec := doRequest(t, r, http.MethodGet, path, nil, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: got=%d want=400 body=%s", path, rec.Code, rec.Body.String())
		}
		if body := decode[errorBody](t, rec); body.Code != string(utils.ErrorKindInvalidArgument) {
			t.Fatalf("%s: unexpected error body %+v", path, body)
		}
	}
}

func TestGetDiscrepancyNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doRequest(t, r, http.MethodGet, "/internal/reconciliation/discrepancies/missing", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got=%d want=404", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if body.Code != string(utils.ErrorKindNotFound) || !strings.Contains(body.Error, "missing") {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestResolveEndpoint(t *testing.T) {
	r, db := newTestRouter(t)
	testutil.SeedDiscrepancyWithID(t, db, "disc-1", "cars")
	body := map[string]any{"action": "accept_target", "notes": "target is authoritative"}

	rec := doRequest(t, r, http.MethodPost, "/internal/reconciliation/discrepancies/disc-1/resolve", body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without actor: got=%d want=401", rec.Code)
	}

	rec = doRequest(t, r, http.MethodPost, "/internal/reconciliation/discrepancies/disc-1/resolve", body, "user-recon-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("first resolve: got=%d body=%s", rec.Code, rec.Body.String())
	}
	resolved := decode[models.Discrepancy](t, rec)
	if utils.DereferencePtr(resolved.ResolvedBy) != "user-recon-1" || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected resolved discrepancy %+v", resolved)
	}

	rec = doRequest(t, r, http.MethodPost, "/internal/reconciliation/discrepancies/disc-1/resolve", body, "user-recon-2")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second resolve: got=%d want=409", rec.Code)
	}
	if eb := decode[errorBody](t, rec); eb.Code != string(utils.ErrorKindAlreadyResolved) {
		t.Fatalf("unexpected error body %+v", eb)
	}

	rec = doRequest(t, r, http.MethodPost, "/internal/reconciliation/discrepancies/disc-1/resolve", map[string]any{"action": "merge"}, "user-recon-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid action: got=%d want=400", rec.Code)
	}

	var transitions []models.ProcessTransition
	if err := db.Where("entity_id = ?", "disc-1").Find(&transitions).Error; err != nil {
		t.Fatalf("load transitions: %v", err)
	}
	if len(transitions) != 1 || transitions[0].ToState != "resolved:accept_target" || transitions[0].CorrelationId == "" {
		t.Fatalf("unexpected transitions %+v", transitions)
	}
}

func TestBulkResolveEndpoint(t *testing.T) {
	r, db := newTestRouter(t)
	testutil.SeedDiscrepancyWithID(t, db, "disc-1", "cars")
	testutil.SeedDiscrepancyWithID(t, db, "disc-2", "cars")

	rec := doRequest(t, r, http.MethodPost, "/internal/reconciliation/discrepancies/bulk-resolve",
		map[string]any{"ids": []string{}, "action": "ignore"}, "user-recon-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty ids: got=%d want=400", rec.Code)
	}
	if eb := decode[errorBody](t, rec); eb.Error != "No discrepancy IDs provided" {
		t.Fatalf("unexpected error body %+v", eb)
	}

	rec = doRequest(t, r, http.MethodPost, "/internal/reconciliation/discrepancies/bulk-resolve",
		map[string]any{"ids": []string{"disc-1", "disc-2", "disc-404"}, "action": "ignore"}, "user-recon-1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: got=%d want=404", rec.Code)
	}

	rec = doRequest(t, r, http.MethodPost, "/internal/reconciliation/discrepancies/bulk-resolve",
		map[string]any{"ids": []string{"disc-1", "disc-2"}, "action": "ignore"}, "user-recon-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk resolve: got=%d body=%s", rec.Code, rec.Body.String())
	}
	result := decode[struct {
		ResolvedCount int      `json:"resolved_count"`
		ResolvedIds   []string `json:"resolved_ids"`
	}](t, rec)
	if result.ResolvedCount != 2 || len(result.ResolvedIds) != 2 || result.ResolvedIds[0] != "disc-1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestDuplicatesEndpoint(t *testing.T) {
	r, db := newTestRouter(t)
	testutil.SeedCustomer(t, db, testutil.Customer{CustomerCode: "C-1", CustomerName: "Acme Rail  Leasing", TaxId: "12-345"})
	testutil.SeedCustomer(t, db, testutil.Customer{CustomerCode: "C-2", CustomerName: "acme rail leasing", TaxId: "12345"})

	rec := doRequest(t, r, http.MethodGet, "/internal/reconciliation/duplicates/Cars!", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid entity type: got=%d want=400", rec.Code)
	}

	rec = doRequest(t, r, http.MethodGet, "/internal/reconciliation/duplicates/widgets", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown entity type: got=%d want=200", rec.Code)
	}
	if got := decode[struct {
		Data []json.RawMessage `json:"data"`
	}](t, rec); len(got.Data) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got.Data))
	}

	rec = doRequest(t, r, http.MethodGet, "/internal/reconciliation/duplicates/customers", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("customers: got=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Data []struct {
			MatchConfidence float64 `json:"match_confidence"`
		} `json:"data"`
	}](t, rec)
	if len(got.Data) != 1 || got.Data[0].MatchConfidence <= 0 || got.Data[0].MatchConfidence > 1 {
		t.Fatalf("unexpected candidates %+v", got.Data)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	r, db := newTestRouter(t)
	testutil.SeedMigrationRun(t, db, models.MigrationRun{
		ID: "mig-run-busy", EntityType: "cars", Status: models.MigrationRunStatusImporting,
		StartedAt: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	})

	rec := doRequest(t, r, http.MethodPost, "/internal/reconciliation/runs/mig-run-unknown/reconcile", nil, "ops-1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run: got=%d want=404", rec.Code)
	}
	rec = doRequest(t, r, http.MethodPost, "/internal/reconciliation/runs/mig-run-busy/reconcile", nil, "ops-1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("incomplete run: got=%d want=409", rec.Code)
	}
	if eb := decode[errorBody](t, rec); eb.Code != string(utils.ErrorKindInvalidState) {
		t.Fatalf("unexpected error body %+v", eb)
	}

	rec = doRequest(t, r, http.MethodGet, "/internal/reconciliation/runs/mig-run-busy/readiness", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("readiness: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if readiness := decode[models.RunReadiness](t, rec); readiness.Ready {
		t.Fatalf("an importing run must not be ready: %+v", readiness)
	}
}

func TestExportEndpoint(t *testing.T) {
	r, db := newTestRouter(t)
	testutil.SeedOpenDiscrepancies(t, db, 2, "cars", models.DiscrepancySeverityWarning, models.DiscrepancyTypeFieldMismatch)

	rec := doRequest(t, r, http.MethodGet, "/internal/reconciliation/discrepancies/export?entity_type=cars", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "ID" || rows[1][2] != "cars" {
		t.Fatalf("unexpected rows %v", rows)
	}
}
