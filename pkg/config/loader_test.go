package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
session:
  character: hammerdin
  runs: [mephisto, pindleskin]
  max_deaths: 5
health:
  chicken_health_percent: 40
  potion_health_percent: 65
engine:
  tick_interval: 50ms
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.Session.Character != "hammerdin" {
		t.Errorf("character not applied: %s", cfg.Session.Character)
	}
	if len(cfg.Session.Runs) != 2 || cfg.Session.Runs[0] != "mephisto" {
		t.Errorf("runs not applied: %v", cfg.Session.Runs)
	}
	if cfg.Health.ChickenHealthPercent != 40 {
		t.Errorf("chicken threshold not applied: %.0f", cfg.Health.ChickenHealthPercent)
	}
	if cfg.Engine.TickInterval != 50*time.Millisecond {
		t.Errorf("tick interval not applied: %s", cfg.Engine.TickInterval)
	}
	// Untouched values keep their defaults.
	if cfg.Recovery.RetryThreshold != 3 {
		t.Errorf("default retry threshold lost: %d", cfg.Recovery.RetryThreshold)
	}
}

func TestParseRejectsMissingRuns(t *testing.T) {
	data := []byte(`
session:
  character: sorc
  runs: []
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected validation error for empty run list")
	}
}

func TestParseRejectsPotionBelowChicken(t *testing.T) {
	data := []byte(`
session:
  character: sorc
  runs: [pindleskin]
health:
  chicken_health_percent: 50
  potion_health_percent: 30
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected validation error for potion threshold below chicken threshold")
	}
}

func TestParseRejectsWatchWithoutPath(t *testing.T) {
	data := []byte(`
session:
  character: sorc
  runs: [pindleskin]
pickit:
  watch_for_changes: true
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected validation error for watch without a path")
	}
}

func TestParseRejectsOutOfRangeThreshold(t *testing.T) {
	data := []byte(`
session:
  character: sorc
  runs: [pindleskin]
health:
  chicken_health_percent: 150
`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected validation error for threshold above 100")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
}

func TestLoadPickitAndMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pickit.yaml")
	data := []byte(`
rules:
  - name: Shako
    quality: unique
  - name: "The Oculus"
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPickit(path)
	if err != nil {
		t.Fatalf("load pickit failed: %v", err)
	}
	if len(p.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(p.Rules))
	}

	if !p.Wants("shako", "unique", false) {
		t.Error("expected case-insensitive name + quality match")
	}
	if p.Wants("shako", "rare", false) {
		t.Error("quality-restricted rule must not match other qualities")
	}
	if !p.Wants("The Oculus", "magic", false) {
		t.Error("quality-free rule must match any quality")
	}
	if p.Wants("Gull", "unique", false) {
		t.Error("unlisted item must not match")
	}
}

func TestLoadPickitRejectsBadQuality(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pickit.yaml")
	data := []byte(`
rules:
  - name: Shako
    quality: legendary
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPickit(path); err == nil {
		t.Fatal("expected validation error for unknown quality")
	}
}
