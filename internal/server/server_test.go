package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/stagehand/internal/engine"
	"github.com/me/stagehand/internal/localize"
	"github.com/me/stagehand/internal/storage"
	"github.com/me/stagehand/internal/storage/storagetest"
	"github.com/me/stagehand/internal/store"
	"github.com/me/stagehand/pkg/model"
	"github.com/me/stagehand/pkg/uri"
)

type testEnv struct {
	server *Server
	local  *storagetest.MemAdapter
	gcs    *storagetest.MemAdapter
	store  *store.SQLiteStore
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustParse(t *testing.T, raw string) uri.URI {
	t.Helper()
	u, err := uri.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func newEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	local := storagetest.New(uri.Local)
	gcs := storagetest.New(uri.GCS)
	s3 := storagetest.New(uri.S3)
	web := storagetest.New(uri.URL)
	reg := storage.NewRegistry(local, gcs, s3, web)

	logger := testLogger()
	svc := localize.NewService(localize.Config{
		Roots: map[uri.Kind]uri.URI{
			uri.Local: mustParse(t, "/tmp/root"),
			uri.GCS:   mustParse(t, "gs://tmp-bucket/scratch"),
			uri.S3:    mustParse(t, "s3://tmp-s3/scratch"),
		},
	}, reg, logger)

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return &testEnv{
		server: New(svc, st, logger, opts...),
		local:  local,
		gcs:    gcs,
		store:  st,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, model.Response) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var resp model.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	env := newEnv(t)
	rec, resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Status != "ok" {
		t.Errorf("resp.Status = %q", resp.Status)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRequestID(t *testing.T) {
	env := newEnv(t)

	// Generated IDs carry the envelope prefix and match header and body.
	rec, resp := env.do(t, http.MethodGet, "/api/v1/health", "")
	id := rec.Header().Get("X-Request-ID")
	if !strings.HasPrefix(id, "req_") {
		t.Errorf("generated id = %q, want req_ prefix", id)
	}
	if resp.RequestID != id {
		t.Errorf("envelope id = %q, header id = %q", resp.RequestID, id)
	}

	// A caller-supplied ID is kept for cross-service correlation.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req_upstream1")
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req_upstream1" {
		t.Errorf("echoed id = %q, want req_upstream1", got)
	}
	var echoed model.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &echoed); err != nil {
		t.Fatal(err)
	}
	if echoed.RequestID != "req_upstream1" {
		t.Errorf("envelope id = %q, want req_upstream1", echoed.RequestID)
	}
}

func TestLocalizeEndpoint(t *testing.T) {
	env := newEnv(t)
	env.gcs.Seed("data/reads.fastq", "ACGT")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/localize",
		`{"uri": "gs://data/reads.fastq", "target": "local"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp.Error)
	}

	data, _ := json.Marshal(resp.Data)
	var lr localizeResponse
	json.Unmarshal(data, &lr)
	if lr.Target != "/tmp/root/data/reads.fastq" {
		t.Errorf("target = %q", lr.Target)
	}
	if got, ok := env.local.Content("/tmp/root/data/reads.fastq"); !ok || got != "ACGT" {
		t.Errorf("local content = %q, %v", got, ok)
	}
}

func TestLocalizeValidation(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed uri", `{"uri": "relative/path", "target": "local"}`},
		{"bad target", `{"uri": "gs://b/x", "target": "ftp"}`},
		{"url target", `{"uri": "gs://b/x", "target": "url"}`},
		{"bad json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, "/api/v1/localize", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if resp.Error == nil || resp.Error.Code != model.ErrValidation {
				t.Errorf("error = %+v", resp.Error)
			}
		})
	}
}

func TestDeepcopyEndpoint(t *testing.T) {
	env := newEnv(t)
	env.gcs.Seed("bucket/inputs.json", `{"reads": "gs://bucket/reads.fastq"}`)
	env.gcs.Seed("bucket/reads.fastq", "ACGT")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/deepcopy",
		`{"uri": "gs://bucket/inputs.json", "target": "local"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp.Error)
	}

	data, _ := json.Marshal(resp.Data)
	var lr localizeResponse
	json.Unmarshal(data, &lr)
	if lr.Target != "/tmp/root/bucket/inputs.local.json" {
		t.Errorf("target = %q", lr.Target)
	}
	manifest, ok := env.local.Content("/tmp/root/bucket/inputs.local.json")
	if !ok || !strings.Contains(manifest, "/tmp/root/bucket/reads.fastq") {
		t.Errorf("rewritten manifest = %q, %v", manifest, ok)
	}
}

func TestDeepcopyRejectsNonManifest(t *testing.T) {
	env := newEnv(t)
	rec, resp := env.do(t, http.MethodPost, "/api/v1/deepcopy",
		`{"uri": "gs://bucket/reads.fastq", "target": "local"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != model.ErrValidation {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestCopyEndpoint(t *testing.T) {
	env := newEnv(t)
	env.gcs.Seed("bucket/a.txt", "hello")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/copy",
		`{"source": "gs://bucket/a.txt", "target": "/dest/a.txt"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp.Error)
	}
	if got, ok := env.local.Content("/dest/a.txt"); !ok || got != "hello" {
		t.Errorf("content = %q, %v", got, ok)
	}
}

func TestLocalizeTransferFailure(t *testing.T) {
	env := newEnv(t)
	// Source never seeded, so the relay's read fails mid-transfer.
	rec, resp := env.do(t, http.MethodPost, "/api/v1/localize",
		`{"uri": "gs://bucket/missing.bin", "target": "local"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d: %v", rec.Code, resp.Error)
	}
	if resp.Error == nil || resp.Error.Code != model.ErrTransfer {
		t.Errorf("error = %+v", resp.Error)
	}
}

func seedRun(t *testing.T, env *testEnv, id, engineID string, state model.RunState) {
	t.Helper()
	now := time.Now().UTC()
	err := env.store.CreateRun(context.Background(), &model.Run{
		ID:          id,
		EngineID:    engineID,
		Workflow:    "/wf/main.wdl",
		State:       state,
		SubmittedAt: now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("seed run: %v", err)
	}
}

func TestListAndGetRuns(t *testing.T) {
	env := newEnv(t)
	seedRun(t, env, "run-1", "eng-1", model.RunRunning)
	seedRun(t, env, "run-2", "eng-2", model.RunSucceeded)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/runs?state=Running", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Pagination == nil || resp.Pagination.Total != 1 {
		t.Errorf("pagination = %+v", resp.Pagination)
	}

	// Lookup by wrapper ID and by engine ID both resolve.
	for _, id := range []string{"run-2", "eng-2"} {
		rec, resp := env.do(t, http.MethodGet, "/api/v1/runs/"+id, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("get %s: status = %d: %v", id, rec.Code, resp.Error)
		}
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/runs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestAbortRun(t *testing.T) {
	var aborted string
	eng := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		aborted = r.URL.Path
		w.Write([]byte(`{"id": "eng-1", "status": "Aborting"}`))
	}))
	defer eng.Close()

	client := engine.NewClient(engine.Config{BaseURL: eng.URL}, nil)
	env := newEnv(t, WithEngine(client))
	seedRun(t, env, "run-1", "eng-1", model.RunRunning)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/runs/run-1/abort", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, resp.Error)
	}
	if aborted != "/api/workflows/v1/eng-1/abort" {
		t.Errorf("engine path = %q", aborted)
	}

	run, err := env.store.GetRun(context.Background(), "run-1")
	if err != nil || run == nil {
		t.Fatalf("get run: %v", err)
	}
	if run.State != model.RunAborted {
		t.Errorf("state = %q", run.State)
	}
}

func TestEngineEndpointsWithoutEngine(t *testing.T) {
	env := newEnv(t)
	seedRun(t, env, "run-1", "eng-1", model.RunRunning)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/backends"},
		{http.MethodGet, "/api/v1/runs/run-1/metadata"},
		{http.MethodPost, "/api/v1/runs/run-1/abort"},
	} {
		rec, _ := env.do(t, tc.method, tc.path, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status = %d", tc.method, tc.path, rec.Code)
		}
	}
}
