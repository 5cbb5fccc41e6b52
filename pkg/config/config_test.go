package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Server.Port != 8080 || c.Backend.Type != "memory" {
		t.Fatalf("unexpected defaults %+v", c.Server)
	}
	if c.Analysis.Sampler.NumChains != 2 || c.Analysis.Sampler.BaseSeed != 42 {
		t.Fatalf("unexpected sampler defaults %+v", c.Analysis.Sampler)
	}
	if c.Analysis.Timeout != 2*time.Minute || c.Cache.ResultTTL != 24*time.Hour {
		t.Fatalf("unexpected durations")
	}
	if c.ClickHouse.Database != "brentshift" || c.ClickHouse.MaxOpenConns != 10 || c.ClickHouse.WriteTimeout != 30*time.Second {
		t.Fatalf("unexpected clickhouse defaults %+v", c.ClickHouse)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Kafka.LogsTopic != "brentshift.logs" || c.Server.RateLimit.Burst != 10 {
		t.Fatalf("unexpected config %+v", c.Kafka)
	}
	if c.Analysis.Sampler.TargetAcceptance != 0.95 {
		t.Fatalf("unexpected target acceptance %v", c.Analysis.Sampler.TargetAcceptance)
	}
}

func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	c, err := Parse([]byte("server:\n  port: 9090\nanalysis:\n  sampler:\n    num_chains: 4\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Server.Port != 9090 || c.Analysis.Sampler.NumChains != 4 {
		t.Fatalf("overrides not applied")
	}
	if c.Analysis.Sampler.SampleSweeps != 2000 || c.Data.VolatilityWindow != 30 {
		t.Fatalf("defaults lost")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":   "backend:\n  type: postgres\n",
		"kafka":     "kafka:\n  enabled: true\n",
		"queue":     "queue:\n  enabled: true\n",
		"window":    "data:\n  volatility_window: 1\n",
		"sampler":   "analysis:\n  sampler:\n    num_chains: 0\n",
		"timeout":   "analysis:\n  timeout: 0s\n",
		"port":      "server:\n  port: 70000\n",
		"malformed": "server: [",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("environment: test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9999")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SAMPLER_SEED", "7")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 9999 || c.Analysis.Sampler.BaseSeed != 7 {
		t.Fatalf("env not applied")
	}
	if !c.Kafka.Enabled || strings.Join(c.Kafka.Brokers, ",") != "k1:9092,k2:9092" {
		t.Fatalf("unexpected kafka %+v", c.Kafka.Brokers)
	}
}
