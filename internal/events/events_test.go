package events

import (
	"testing"

	"github.com/zulandar/stagehand/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.RunEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestEmitAndTrail(t *testing.T) {
	db := testDB(t)

	if err := Emit(db, "run-1", models.EventInfo, "step_attempt", "open https://example.com"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := Emit(db, "run-1", models.EventWarn, "step_failed", "click #missing: timeout"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := Emit(db, "run-2", models.EventInfo, "session_complete", ""); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	trail, err := Trail(db, "run-1")
	if err != nil {
		t.Fatalf("Trail: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("len(trail) = %d, want 2", len(trail))
	}
	if trail[0].Action != "step_attempt" || trail[1].Action != "step_failed" {
		t.Errorf("trail order wrong: %s, %s", trail[0].Action, trail[1].Action)
	}
	if trail[1].Level != models.EventWarn {
		t.Errorf("trail[1].Level = %q, want warn", trail[1].Level)
	}
}

func TestEmit_DefaultsLevel(t *testing.T) {
	db := testDB(t)
	if err := Emit(db, "run-1", "", "session_start", ""); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	trail, err := Trail(db, "run-1")
	if err != nil {
		t.Fatalf("Trail: %v", err)
	}
	if trail[0].Level != models.EventInfo {
		t.Errorf("Level = %q, want info", trail[0].Level)
	}
}

func TestEmit_Validation(t *testing.T) {
	db := testDB(t)
	if err := Emit(db, "", models.EventInfo, "x", ""); err == nil {
		t.Error("expected error for missing runID")
	}
	if err := Emit(db, "run-1", models.EventInfo, "", ""); err == nil {
		t.Error("expected error for missing action")
	}
	if err := Emit(nil, "run-1", models.EventInfo, "x", ""); err == nil {
		t.Error("expected error for nil db")
	}
}
