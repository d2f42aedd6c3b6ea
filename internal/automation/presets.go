package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"terminal-core/internal/order"
	"terminal-core/pkg/db"
)

// Preset is one named automation configuration in YAML.
type Preset struct {
	ID              string       `yaml:"id"`
	Name            string       `yaml:"name"`
	Symbol          string       `yaml:"symbol"`
	Engine          string       `yaml:"engine"`
	Period          int          `yaml:"period"`
	CooldownSeconds float64      `yaml:"cooldown_seconds"`
	Params          order.Params `yaml:"params"`
}

// presetFile is the top-level YAML structure.
type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets reads automation presets from a YAML file.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Presets, nil
}

// SyncPresetsToDB upserts presets as stopped sessions so the operator can
// start them from the dashboard without retyping parameters.
func SyncPresetsToDB(ctx context.Context, store *db.Database, presets []Preset) error {
	for _, p := range presets {
		if p.ID == "" {
			return fmt.Errorf("preset %q missing id", p.Name)
		}
		params, err := json.Marshal(p.Params)
		if err != nil {
			return fmt.Errorf("preset %s: encode params: %w", p.ID, err)
		}
		period := p.Period
		if period <= 0 {
			period = 20
		}

		existing, err := store.GetSession(ctx, p.ID)
		switch {
		case err == nil:
			existing.Symbol = p.Symbol
			existing.Period = period
			existing.CooldownSeconds = p.CooldownSeconds
			existing.Engine = p.Engine
			existing.Params = string(params)
			if err := store.UpdateSession(ctx, *existing); err != nil {
				return fmt.Errorf("preset %s: update: %w", p.ID, err)
			}
		case errors.Is(err, db.ErrNotFound):
			s := db.Session{
				ID:              p.ID,
				Symbol:          p.Symbol,
				Period:          period,
				CooldownSeconds: p.CooldownSeconds,
				Engine:          p.Engine,
				Params:          string(params),
				Status:          StatusStopped,
			}
			if err := store.CreateSession(ctx, s); err != nil {
				return fmt.Errorf("preset %s: insert: %w", p.ID, err)
			}
		default:
			return fmt.Errorf("preset %s: lookup: %w", p.ID, err)
		}
	}
	return nil
}
