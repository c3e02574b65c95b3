package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Token pricing constants. The DB stores integer tokens; purchases convert at
// TokensPerUSD and metered media rates are marked up so that the sell price is
// real cost divided by CostRatio.
const (
	TokensPerUSD = 3
	CostRatio    = 0.75
)

// Compose rate units accepted in the cost table.
const (
	UnitPerSecond    = "per_second"
	UnitPerMinute    = "per_minute"
	UnitPer10Seconds = "per_10_seconds"
	UnitPerVideo     = "per_video"
)

// CostTable drives all dynamic pricing. Step surcharges are read from
// configuration rather than hard-coded so a plan's cost is recomputed per
// step mixture.
type CostTable struct {
	// BaseTextCost is the cost of one text step.
	BaseTextCost int `yaml:"base_text_cost"`

	// Surcharges maps non-text task types to their per-step cost.
	Surcharges map[string]int `yaml:"surcharges"`

	// Compose is the metered rate for video composition. A zero rate means
	// composition is free.
	Compose ComposeRate `yaml:"compose"`
}

// ComposeRate is the admin-entered real cost of the external compose worker.
type ComposeRate struct {
	CostPerUnit float64 `yaml:"cost_per_unit"` // real cost in USD per unit
	Unit        string  `yaml:"unit"`
}

// DefaultCostTable mirrors the conservative integer defaults used before the
// table became configurable.
func DefaultCostTable() *CostTable {
	return &CostTable{
		BaseTextCost: 1,
		Surcharges: map[string]int{
			"latex": 2,
			"audio": 3,
			"image": 8,
			"video": 25,
			"file":  2,
		},
		Compose: ComposeRate{CostPerUnit: 0, Unit: UnitPerVideo},
	}
}

// LoadCostTable reads the YAML cost table at path. A missing file yields the
// defaults; a malformed file is a configuration error.
func LoadCostTable(path string) (*CostTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCostTable(), nil
		}
		return nil, fmt.Errorf("read cost table: %w", err)
	}

	table := DefaultCostTable()
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("parse cost table: %w", err)
	}
	if table.BaseTextCost < 1 {
		table.BaseTextCost = 1
	}
	return table, nil
}

// StepCost returns the configured cost for one step of the given task type.
func (t *CostTable) StepCost(taskType string) int {
	if taskType == "text" {
		return t.BaseTextCost
	}
	if s, ok := t.Surcharges[taskType]; ok && s > 0 {
		return s
	}
	return t.BaseTextCost
}
