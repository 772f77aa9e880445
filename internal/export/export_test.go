package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/db"
	"github.com/openaddresses/batch-sub000/internal/dispatch"
	"github.com/openaddresses/batch-sub000/internal/models"
)

func newTestExporter(t *testing.T, limit int) (*Exporter, *dispatch.Local, *models.Job) {
	t.Helper()
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	j := models.Job{RunID: 1, Source: "s", SourceName: "s", Layer: "addresses", Name: "n",
		Status: models.StatusSuccess, Output: models.JobOutput{Output: true}}
	if err := gormDB.Create(&j).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	local := &dispatch.Local{}
	return &Exporter{DB: gormDB, Dispatcher: local, MonthlyLimit: limit}, local, &j
}

func TestCreate(t *testing.T) {
	e, local, j := newTestExporter(t, 10)

	exp, err := e.Create(context.Background(), 1, j.ID, "csv")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if exp.Status != models.StatusPending || exp.Format != "csv" {
		t.Errorf("export = %+v", exp)
	}
	subs := local.Submissions()
	if len(subs) != 1 || subs[0].Kind != dispatch.KindExport || subs[0].Payload.ExportID != exp.ID {
		t.Errorf("submissions = %+v", subs)
	}
}

func TestCreate_Validation(t *testing.T) {
	e, _, j := newTestExporter(t, 10)
	tests := []struct {
		name    string
		uid     int64
		jobID   int64
		format  string
		wantErr error
	}{
		{"no uid", 0, j.ID, "csv", apperr.ErrValidation},
		{"bad format", 1, j.ID, "kml", apperr.ErrValidation},
		{"missing job", 1, 999, "csv", apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Create(context.Background(), tt.uid, tt.jobID, tt.format)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreate_NoOutput(t *testing.T) {
	e, _, _ := newTestExporter(t, 10)
	bare := models.Job{RunID: 1, Source: "s", Layer: "l", Name: "n"}
	e.DB.Create(&bare)

	if _, err := e.Create(context.Background(), 1, bare.ID, "csv"); !errors.Is(err, apperr.ErrNotReady) {
		t.Errorf("err = %v, want NotReady", err)
	}
}

func TestCreate_Quota(t *testing.T) {
	e, _, j := newTestExporter(t, 2)
	now := time.Now()
	e.Now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, err := e.Create(context.Background(), 7, j.ID, "geojson"); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if _, err := e.Create(context.Background(), 7, j.ID, "geojson"); !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Errorf("err = %v, want QuotaExceeded", err)
	}
	// Quotas are per user.
	if _, err := e.Create(context.Background(), 8, j.ID, "geojson"); err != nil {
		t.Errorf("other user: %v", err)
	}
	// A new month resets the quota.
	e.Now = func() time.Time { return MonthStart(now).AddDate(0, 1, 0) }
	n, _ := e.CountSince(7, MonthStart(e.Now()))
	if n != 0 {
		t.Errorf("count next month = %d, want 0", n)
	}
}

func TestCreate_DispatchFailure(t *testing.T) {
	e, local, j := newTestExporter(t, 0)
	local.FailFor = map[dispatch.Kind]error{dispatch.KindExport: errors.New("down")}

	if _, err := e.Create(context.Background(), 1, j.ID, "csv"); err == nil {
		t.Fatal("expected error")
	}
	exports, _ := List(e.DB, 1)
	if len(exports) != 1 || exports[0].Status != models.StatusFail {
		t.Errorf("exports = %+v, want one failed export", exports)
	}
}

func TestMonthStart(t *testing.T) {
	got := MonthStart(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC))
	want := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("MonthStart = %v, want %v", got, want)
	}
}

func TestListGetUpdate(t *testing.T) {
	e, _, j := newTestExporter(t, 0)
	a, _ := e.Create(context.Background(), 1, j.ID, "csv")
	e.Create(context.Background(), 2, j.ID, "csv")

	all, _ := List(e.DB, 0)
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
	mine, _ := List(e.DB, 1)
	if len(mine) != 1 || mine[0].ID != a.ID {
		t.Errorf("mine = %+v", mine)
	}

	status := models.StatusSuccess
	size := int64(2048)
	got, err := Update(e.DB, a.ID, Patch{Status: &status, Size: &size})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status != models.StatusSuccess || got.Size != 2048 {
		t.Errorf("export = %+v", got)
	}

	bad := models.Status("Done")
	if _, err := Update(e.DB, a.ID, Patch{Status: &bad}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want Validation", err)
	}
	if _, err := Get(e.DB, 404); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}
