package result

import (
	"errors"
	"sync"
	"testing"

	"github.com/openaddresses/batch-sub000/internal/apperr"
	"github.com/openaddresses/batch-sub000/internal/db"
	"github.com/openaddresses/batch-sub000/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return gormDB
}

func newJob(t *testing.T, gormDB *gorm.DB) *models.Job {
	t.Helper()
	j := models.Job{RunID: 1, Source: "s", SourceName: "us/pa/bucks", Layer: "addresses", Name: "county",
		Status: models.StatusSuccess, Count: 10}
	if err := gormDB.Create(&j).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	return &j
}

func TestUpdate_InsertThenUpdate(t *testing.T) {
	gormDB := openTestDB(t)
	first := newJob(t, gormDB)
	second := newJob(t, gormDB)

	r1, err := Update(gormDB, first)
	if err != nil {
		t.Fatalf("Update first: %v", err)
	}
	if r1.JobID != first.ID {
		t.Errorf("JobID = %d, want %d", r1.JobID, first.ID)
	}

	r2, err := Update(gormDB, second)
	if err != nil {
		t.Fatalf("Update second: %v", err)
	}
	if r2.ID != r1.ID {
		t.Errorf("row id changed from %d to %d", r1.ID, r2.ID)
	}
	if r2.JobID != second.ID {
		t.Errorf("JobID = %d, want most recent %d", r2.JobID, second.ID)
	}

	var count int64
	gormDB.Model(&models.Result{}).Count(&count)
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestUpdate_ConcurrentCompletions(t *testing.T) {
	gormDB := openTestDB(t)
	jobs := make([]*models.Job, 6)
	for i := range jobs {
		jobs[i] = newJob(t, gormDB)
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j *models.Job) {
			defer wg.Done()
			if _, err := Update(gormDB, j); err != nil {
				t.Errorf("Update: %v", err)
			}
		}(j)
	}
	wg.Wait()

	var count int64
	gormDB.Model(&models.Result{}).Count(&count)
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestUpdate_PreservesFabric(t *testing.T) {
	gormDB := openTestDB(t)
	r, _ := Update(gormDB, newJob(t, gormDB))
	if err := SetFabric(gormDB, r.ID, true); err != nil {
		t.Fatalf("SetFabric: %v", err)
	}
	r2, err := Update(gormDB, newJob(t, gormDB))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !r2.Fabric {
		t.Error("fabric flag lost on update")
	}
}

func TestUpdate_RequiresIdentity(t *testing.T) {
	gormDB := openTestDB(t)
	if _, err := Update(gormDB, &models.Job{ID: 1, Layer: "addresses"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestFind_NoMatch(t *testing.T) {
	gormDB := openTestDB(t)
	if _, err := Find(gormDB, "us/pa/bucks", "addresses", "county"); !errors.Is(err, apperr.ErrNoLiveMatch) {
		t.Errorf("err = %v, want NoLiveMatch", err)
	}
}

func TestList_JoinsJob(t *testing.T) {
	gormDB := openTestDB(t)
	j := newJob(t, gormDB)
	if _, err := Update(gormDB, j); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := List(gormDB, ListFilters{Source: "us/pa"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Status != models.StatusSuccess || got[0].Count != 10 {
		t.Errorf("entry = %+v", got[0])
	}

	none, _ := List(gormDB, ListFilters{Layer: "parcels"})
	if len(none) != 0 {
		t.Errorf("layer filter returned %d rows", len(none))
	}
}

func TestSetFabric_NotFound(t *testing.T) {
	gormDB := openTestDB(t)
	if err := SetFabric(gormDB, 77, true); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want NotFound", err)
	}
}
