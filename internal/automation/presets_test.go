package automation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"terminal-core/pkg/db"
)

const presetYAML = `
presets:
  - id: scalp-r10
    name: R_10 scalper
    symbol: R_10
    engine: CALLPUT
    period: 10
    cooldown_seconds: 15
    params:
      stake: 0.5
      duration: 5
      duration_unit: t
  - id: accu-r100
    name: R_100 accumulator
    symbol: R_100
    engine: ACCUMULATOR
    params:
      stake: 10
      growth_rate: 0.03
      take_profit: 25
`

func writePresetFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presets.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write preset file: %v", err)
	}
	return path
}

func TestLoadPresets(t *testing.T) {
	presets, err := LoadPresets(writePresetFile(t, presetYAML))
	if err != nil {
		t.Fatalf("LoadPresets returned error: %v", err)
	}
	if len(presets) != 2 {
		t.Fatalf("presets=%d, expected 2", len(presets))
	}

	first := presets[0]
	if first.ID != "scalp-r10" || first.Engine != "CALLPUT" || first.Period != 10 {
		t.Fatalf("preset=%+v, expected the scalper entry", first)
	}
	if first.Params.Stake != 0.5 || first.Params.DurationUnit != "t" {
		t.Fatalf("params=%+v, expected stake 0.5 with tick duration", first.Params)
	}

	second := presets[1]
	if second.Params.GrowthRate != 0.03 || second.Params.TakeProfit != 25 {
		t.Fatalf("params=%+v, expected accumulator knobs", second.Params)
	}
}

func TestLoadPresetsMissingFile(t *testing.T) {
	if _, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("LoadPresets accepted a missing file")
	}
}

func TestLoadPresetsMalformedYAML(t *testing.T) {
	if _, err := LoadPresets(writePresetFile(t, "presets: [")); err == nil {
		t.Fatalf("LoadPresets accepted malformed YAML")
	}
}

func TestSyncPresetsUpserts(t *testing.T) {
	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer store.Close()
	if err := db.ApplyMigrations(store); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	presets, err := LoadPresets(writePresetFile(t, presetYAML))
	if err != nil {
		t.Fatalf("LoadPresets returned error: %v", err)
	}

	if err := SyncPresetsToDB(ctx, store, presets); err != nil {
		t.Fatalf("SyncPresetsToDB returned error: %v", err)
	}

	s, err := store.GetSession(ctx, "scalp-r10")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if s.Symbol != "R_10" || s.Status != StatusStopped {
		t.Fatalf("session=%+v, expected a stopped R_10 session", s)
	}
	if s.Period != 10 || s.CooldownSeconds != 15 {
		t.Fatalf("session=%+v, expected period 10 cooldown 15", s)
	}

	// Default period applies when the preset leaves it out.
	accu, err := store.GetSession(ctx, "accu-r100")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if accu.Period != 20 {
		t.Fatalf("period=%d, expected the default 20", accu.Period)
	}

	// A second sync with changed values updates in place instead of failing
	// on the primary key.
	presets[0].Symbol = "R_50"
	if err := SyncPresetsToDB(ctx, store, presets); err != nil {
		t.Fatalf("second SyncPresetsToDB returned error: %v", err)
	}
	s, err = store.GetSession(ctx, "scalp-r10")
	if err != nil {
		t.Fatalf("GetSession after resync returned error: %v", err)
	}
	if s.Symbol != "R_50" {
		t.Fatalf("symbol=%s after resync, expected R_50", s.Symbol)
	}

	if err := SyncPresetsToDB(ctx, store, []Preset{{Name: "anonymous"}}); err == nil {
		t.Fatalf("SyncPresetsToDB accepted a preset without id")
	}
}
