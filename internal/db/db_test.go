package db

import (
	"strings"
	"testing"

	"github.com/openaddresses/batch-sub000/internal/config"
	"github.com/openaddresses/batch-sub000/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "default local",
			cfg:  config.DatabaseConfig{Host: "127.0.0.1", Port: 3306, Name: "batch", User: "root"},
			want: "root@tcp(127.0.0.1:3306)/batch?parseTime=true",
		},
		{
			name: "with password",
			cfg:  config.DatabaseConfig{Host: "db.internal", Port: 3307, Name: "batch_prod", User: "batch", Password: "s3cret"},
			want: "batch:s3cret@tcp(db.internal:3307)/batch_prod?parseTime=true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"})
	if err == nil || !strings.Contains(err.Error(), "unsupported driver") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
}

func TestOpenMemory_MigratesAllTables(t *testing.T) {
	gormDB, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	for _, m := range AllModels() {
		if !gormDB.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
	if !gormDB.Migrator().HasTable("map") {
		t.Error("coverage regions should live in the map table")
	}
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	gormDB, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
}

func TestJobRoundTrip_JSONColumns(t *testing.T) {
	gormDB, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	j := models.Job{RunID: 1, Source: "s", Layer: "addresses", Name: "city"}
	if err := gormDB.Create(&j).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got models.Job
	if err := gormDB.First(&got, j.ID).Error; err != nil {
		t.Fatalf("first: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Errorf("Status = %q, want Pending", got.Status)
	}
	if got.Output != (models.JobOutput{}) {
		t.Errorf("Output = %+v, want all false", got.Output)
	}
	if len(got.Bounds) != 0 {
		t.Errorf("Bounds = %s, want empty", got.Bounds)
	}
}
