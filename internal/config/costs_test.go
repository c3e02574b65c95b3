package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCostTableMissingFile(t *testing.T) {
	table, err := LoadCostTable(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	if table.BaseTextCost != 1 {
		t.Errorf("BaseTextCost = %d, want 1", table.BaseTextCost)
	}
	if table.Surcharges["video"] != 25 {
		t.Errorf("video surcharge = %d, want 25", table.Surcharges["video"])
	}
}

func TestLoadCostTableMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.yaml")
	if err := os.WriteFile(path, []byte("base_text_cost: [not an int"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCostTable(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestLoadCostTableOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costs.yaml")
	content := `
base_text_cost: 2
surcharges:
  image: 10
compose:
  cost_per_unit: 0.5
  unit: per_10_seconds
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadCostTable(path)
	if err != nil {
		t.Fatalf("LoadCostTable: %v", err)
	}
	if table.BaseTextCost != 2 {
		t.Errorf("BaseTextCost = %d, want 2", table.BaseTextCost)
	}
	if table.Surcharges["image"] != 10 {
		t.Errorf("image surcharge = %d, want 10", table.Surcharges["image"])
	}
	if table.Compose.CostPerUnit != 0.5 || table.Compose.Unit != UnitPer10Seconds {
		t.Errorf("compose rate = %+v, want 0.5 per_10_seconds", table.Compose)
	}
}

func TestStepCost(t *testing.T) {
	table := DefaultCostTable()

	tests := []struct {
		taskType string
		want     int
	}{
		{"text", 1},
		{"latex", 2},
		{"audio", 3},
		{"image", 8},
		{"video", 25},
		{"file", 2},
		{"unknown", 1}, // falls back to base
	}

	for _, tt := range tests {
		t.Run(tt.taskType, func(t *testing.T) {
			if got := table.StepCost(tt.taskType); got != tt.want {
				t.Errorf("StepCost(%q) = %d, want %d", tt.taskType, got, tt.want)
			}
		})
	}
}
