package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/batch"
	"github.com/openaddresses/batch-sub000/internal/config"
	"github.com/openaddresses/batch-sub000/internal/db"
	"github.com/openaddresses/batch-sub000/internal/dispatch"
	"github.com/openaddresses/batch-sub000/internal/job"
	"github.com/openaddresses/batch-sub000/internal/models"
	"github.com/openaddresses/batch-sub000/internal/run"
)

const bucks = "https://raw.githubusercontent.com/openaddresses/openaddresses/main/sources/us/pa/bucks.json"

type fakeFetcher struct{}

func (fakeFetcher) Get(context.Context, string) ([]byte, error) {
	return []byte(`{"schema":2,"coverage":{"geometry":{"type":"Point","coordinates":[-75,40]}},` +
		`"layers":{"addresses":[{"name":"county"}]}}`), nil
}

func newTestService(t *testing.T) *batch.Service {
	t.Helper()
	cfg, err := config.Parse([]byte("dispatch:\n  local: true\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return batch.New(cfg, gormDB, batch.Deps{Dispatcher: &dispatch.Local{}, Fetcher: fakeFetcher{}}, nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, kind apperr.Kind) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	var pub apperr.Public
	decode(t, w, &pub)
	if pub.Kind != kind {
		t.Errorf("kind = %s, want %s", pub.Kind, kind)
	}
}

func TestStart_NilService(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil || !strings.Contains(err.Error(), "service is required") {
		t.Fatalf("err = %v, want service is required", err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindInvalidJobReference, http.StatusBadRequest},
		{apperr.KindInvalidModeration, http.StatusBadRequest},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindNoLiveMatch, http.StatusNotFound},
		{apperr.KindConflict, http.StatusConflict},
		{apperr.KindAlreadyClosed, http.StatusConflict},
		{apperr.KindNotReady, http.StatusConflict},
		{apperr.KindQuotaExceeded, http.StatusTooManyRequests},
		{apperr.KindUpstream, http.StatusBadGateway},
		{apperr.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	w := do(t, NewRouter(newTestService(t)), http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRun_CreatePopulateOnce(t *testing.T) {
	router := NewRouter(newTestService(t))

	w := do(t, router, http.MethodPost, "/api/run", `{"live":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var r models.Run
	decode(t, w, &r)
	if !r.Live || r.Closed {
		t.Fatalf("run = %+v", r)
	}

	path := "/api/run/" + itoa(r.ID) + "/jobs"
	w = do(t, router, http.MethodPost, path, `{"jobs":["`+bucks+`"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("populate: %d %s", w.Code, w.Body.String())
	}
	var res struct {
		Run    int64             `json:"run"`
		Jobs   []int64           `json:"jobs"`
		Errors []json.RawMessage `json:"errors"`
	}
	decode(t, w, &res)
	if len(res.Jobs) != 1 || len(res.Errors) != 0 {
		t.Fatalf("populate result = %+v", res)
	}

	w = do(t, router, http.MethodPost, path, `{"jobs":["`+bucks+`"]}`)
	wantError(t, w, http.StatusConflict, apperr.KindAlreadyClosed)

	w = do(t, router, http.MethodGet, path, "")
	var jobs []models.Job
	decode(t, w, &jobs)
	if len(jobs) != 1 || jobs[0].SourceName != "us/pa/bucks" {
		t.Errorf("jobs = %+v", jobs)
	}

	w = do(t, router, http.MethodGet, "/api/run/"+itoa(r.ID)+"/stats", "")
	var stats struct {
		Status map[string]int64 `json:"status"`
	}
	decode(t, w, &stats)
	if stats.Status["Pending"] != 1 || stats.Status["Success"] != 0 {
		t.Errorf("stats = %+v", stats.Status)
	}
}

func TestRun_InvalidReference(t *testing.T) {
	router := NewRouter(newTestService(t))
	do(t, router, http.MethodPost, "/api/run", `{}`)

	w := do(t, router, http.MethodPost, "/api/run/1/jobs", `{"jobs":["http://example.com/x.json"]}`)
	wantError(t, w, http.StatusBadRequest, apperr.KindInvalidJobReference)

	w = do(t, router, http.MethodGet, "/api/run/1", "")
	var r models.Run
	decode(t, w, &r)
	if r.Closed {
		t.Error("run closed after rejected populate")
	}
}

func TestRun_NotFoundAndBadID(t *testing.T) {
	router := NewRouter(newTestService(t))
	wantError(t, do(t, router, http.MethodGet, "/api/run/999", ""), http.StatusNotFound, apperr.KindNotFound)
	wantError(t, do(t, router, http.MethodGet, "/api/run/abc", ""), http.StatusBadRequest, apperr.KindValidation)
}

func TestJob_PatchSuccessPublishesResult(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)
	r, err := svc.Runs.Create(runOpts(true))
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	j, err := job.Generate(svc.DB, job.GenerateOpts{RunID: r.ID, Source: bucks, Layer: "addresses", Name: "county"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Prime the cache so the patch must invalidate or bypass it.
	w := do(t, router, http.MethodGet, "/api/data", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("data before = %s", w.Body.String())
	}

	w = do(t, router, http.MethodPatch, "/api/job/"+itoa(j.ID), `{"status":"Success","count":100}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/api/data?layer=addresses", "")
	var data []struct {
		Source string `json:"source"`
		Count  int64  `json:"count"`
	}
	decode(t, w, &data)
	if len(data) != 1 || data[0].Count != 100 {
		t.Fatalf("data = %s", w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/api/map?refresh=1", "")
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties struct {
				Layers []string `json:"layers"`
			} `json:"properties"`
		} `json:"features"`
	}
	decode(t, w, &fc)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("map = %s", w.Body.String())
	}
	if got := fc.Features[0].Properties.Layers; len(got) != 1 || got[0] != "addresses" {
		t.Errorf("layers = %v", got)
	}
}

func TestJob_ListFilters(t *testing.T) {
	router := NewRouter(newTestService(t))
	wantError(t, do(t, router, http.MethodGet, "/api/job?status=Bogus", ""), http.StatusBadRequest, apperr.KindValidation)
	wantError(t, do(t, router, http.MethodGet, "/api/job?after=yesterday", ""), http.StatusBadRequest, apperr.KindValidation)

	w := do(t, router, http.MethodGet, "/api/job?status=Pending,Success&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
}

func TestJob_OutputWithoutStore(t *testing.T) {
	router := NewRouter(newTestService(t))
	wantError(t, do(t, router, http.MethodGet, "/api/job/1/output/bogus", ""), http.StatusBadRequest, apperr.KindValidation)
	wantError(t, do(t, router, http.MethodGet, "/api/job/1/output/source.png", ""), http.StatusBadRequest, apperr.KindValidation)
}

func TestJob_DeltaWithoutLive(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)
	r, _ := svc.Runs.Create(runOpts(false))
	j, err := job.Generate(svc.DB, job.GenerateOpts{RunID: r.ID, Source: bucks, Layer: "addresses", Name: "county"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	wantError(t, do(t, router, http.MethodGet, "/api/job/"+itoa(j.ID)+"/delta", ""), http.StatusConflict, apperr.KindNotReady)
}

func TestError_ModerateInvalid(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)
	wantError(t, do(t, router, http.MethodPost, "/api/error/42", `{"moderate":"confirm"}`), http.StatusNotFound, apperr.KindNotFound)

	r, _ := svc.Runs.Create(runOpts(true))
	j, err := job.Generate(svc.DB, job.GenerateOpts{RunID: r.ID, Source: bucks, Layer: "addresses", Name: "county"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	w := do(t, router, http.MethodPost, "/api/error/"+itoa(j.ID), `{"moderate":"maybe"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/api/error/count", "")
	var count struct {
		Count int64 `json:"count"`
	}
	decode(t, w, &count)
	if count.Count != 0 {
		t.Errorf("count = %d", count.Count)
	}
}

func TestExport_NotReady(t *testing.T) {
	svc := newTestService(t)
	router := NewRouter(svc)
	r, _ := svc.Runs.Create(runOpts(true))
	j, err := job.Generate(svc.DB, job.GenerateOpts{RunID: r.ID, Source: bucks, Layer: "addresses", Name: "county"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	w := do(t, router, http.MethodPost, "/api/export", `{"uid":1,"job":`+itoa(j.ID)+`,"format":"csv"}`)
	wantError(t, w, http.StatusConflict, apperr.KindNotReady)

	w = do(t, router, http.MethodGet, "/api/export?uid=1", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("exports = %s", w.Body.String())
	}
}

func TestScan_Trigger(t *testing.T) {
	router := NewRouter(newTestService(t))
	w := do(t, router, http.MethodPost, "/api/scan", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	var body struct {
		Handle string `json:"handle"`
	}
	decode(t, w, &body)
	if body.Handle == "" {
		t.Error("empty handle")
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func runOpts(live bool) run.CreateOpts { return run.CreateOpts{Live: live} }
