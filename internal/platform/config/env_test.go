package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	TickHz int `env:"SHARDFALL_TEST_TICK_HZ" envDefault:"30"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.TickHz != 30 {
		t.Fatalf("expected default tick rate 30, got %d", cfg.TickHz)
	}
}

func TestParseEnvOverride(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("SHARDFALL_TEST_TICK_HZ", "60")

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.TickHz != 60 {
		t.Fatalf("expected tick rate 60, got %d", cfg.TickHz)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("SHARDFALL_TEST_TICK_HZ", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
