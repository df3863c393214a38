package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/origin-cli/internal/model"
	"github.com/sells-group/origin-cli/internal/origin"
	"github.com/sells-group/origin-cli/internal/registry"
	"github.com/sells-group/origin-cli/internal/report"
	"github.com/sells-group/origin-cli/internal/store"
)

const acmeCSV = `manufacturer,country_of_origin,hs_code,material_name,cost_per_pair
Acme,VN,,,
,CN,640610,Sole,1.5
,CN,420100,Strap,8.5
`

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, filename string, rows []model.Row) (*model.AnalysisCase, error) {
	args := m.Called(ctx, filename, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisCase), args.Error(1)
}

type mockReloader struct {
	mock.Mock
}

func (m *mockReloader) Reload() { m.Called() }

type testEnv struct {
	store   store.Store
	handler http.Handler
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	ref := registry.StaticReference(registry.Snapshot{Rules: registry.DefaultRuleTable()})
	eng, err := origin.New(st, ref, nil, origin.Options{})
	require.NoError(t, err)

	d := Deps{Analyzer: eng, Store: st, Reference: ref}
	if mutate != nil {
		mutate(&d)
	}
	return &testEnv{store: st, handler: NewRouter(d)}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cases", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func uploadAcme(t *testing.T, env *testEnv) map[string]any {
	t.Helper()
	rec := env.do(uploadRequest(t, "acme.csv", acmeCSV))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body map[string]any
	decode(t, rec, &body)
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUpload_AnalyzesSheet(t *testing.T) {
	env := newTestEnv(t, nil)
	body := uploadAcme(t, env)

	assert.Equal(t, "non_originating", body["result"])
	assert.Equal(t, "acme.csv", body["filename"])
	assert.Equal(t, "640610", body["final_hs_code"])
	assert.Equal(t, true, body["completed"])
	assert.Len(t, body["materials"], 2)
	assert.Len(t, body["steps"], 7)
}

func TestUpload_KeepsCopy(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	env := newTestEnv(t, func(d *Deps) { d.UploadDir = dir })
	uploadAcme(t, env)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "_acme.csv")
}

func TestUpload_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name     string
		filename string
		content  string
		status   int
	}{
		{"no file", "", "", http.StatusBadRequest},
		{"bad extension", "notes.txt", "hello", http.StatusBadRequest},
		{"legacy xls", "old.xls", "binary", http.StatusBadRequest},
		{"corrupt xlsx", "broken.xlsx", "not a zip", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(uploadRequest(t, tt.filename, tt.content))
			assert.Equal(t, tt.status, rec.Code)
			var body errorBody
			decode(t, rec, &body)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.MaxUploadBytes = 64 })
	rec := env.do(uploadRequest(t, "acme.csv", acmeCSV))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUpload_AnalyzerFailure(t *testing.T) {
	ma := new(mockAnalyzer)
	ma.On("Analyze", mock.Anything, "acme.csv", mock.Anything).Return(nil, errors.New("database is locked"))
	env := newTestEnv(t, func(d *Deps) { d.Analyzer = ma })

	rec := env.do(uploadRequest(t, "acme.csv", acmeCSV))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database is locked")
	ma.AssertExpectations(t)
}

func TestGetCase(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uploadAcme(t, env)["id"].(string)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/cases/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "Acme", body["manufacturer"])
	assert.Len(t, body["materials"], 2)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/cases/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCaseStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uploadAcme(t, env)["id"].(string)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/cases/"+id+"/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st model.Status
	decode(t, rec, &st)
	assert.True(t, st.Completed)
	require.NotNil(t, st.Result)
	assert.Equal(t, model.VerdictNonOriginating, *st.Result)
	assert.Len(t, st.Steps, 7)
	assert.Empty(t, st.MissingFields)
}

func TestCaseStatus_Pending(t *testing.T) {
	env := newTestEnv(t, nil)
	c, err := env.store.CreateCase(context.Background(), "pending.csv")
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/cases/"+c.ID+"/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"completed":false,"steps":[],"result":null,"reason":null,"missing_fields":[]}`, rec.Body.String())
}

func TestListCases(t *testing.T) {
	env := newTestEnv(t, nil)
	uploadAcme(t, env)
	_, err := env.store.CreateCase(context.Background(), "pending.csv")
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/cases", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]any
	decode(t, rec, &all)
	assert.Len(t, all, 2)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/cases?result=non_originating&completed=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var filtered []map[string]any
	decode(t, rec, &filtered)
	require.Len(t, filtered, 1)
	assert.Equal(t, "acme.csv", filtered[0]["filename"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/cases?result=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/cases?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/cases?completed=sometimes", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCases_Empty(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/cases", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCaseReport(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uploadAcme(t, env)["id"].(string)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/cases/"+id+"/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "origin_analysis_"+id+".xlsx")

	f, err := xlsx.OpenBinary(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 2)
	_, ok := f.Sheet[report.MaterialsSheet]
	assert.True(t, ok)
}

func TestCaseReport_NotCompleted(t *testing.T) {
	env := newTestEnv(t, nil)
	c, err := env.store.CreateCase(context.Background(), "pending.csv")
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/cases/"+c.ID+"/report", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/cases/missing/report", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCase(t *testing.T) {
	env := newTestEnv(t, nil)
	id := uploadAcme(t, env)["id"].(string)

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/api/cases/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/cases/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/cases/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadReference(t *testing.T) {
	mr := new(mockReloader)
	mr.On("Reload").Once()
	env := newTestEnv(t, func(d *Deps) { d.Reference = mr })

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/reference/reload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	mr.AssertExpectations(t)

	env = newTestEnv(t, func(d *Deps) { d.Reference = nil })
	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/reference/reload", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/cases", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := env.do(req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
