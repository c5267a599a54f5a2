package config

import (
	"slices"
	"testing"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "NOTIFY_BACKEND", "MATERIAL_POLICY", "STRICT_STOCK", "ACCESS_TOKEN_TTL_MINUTES", "KAFKA_BROKERS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}
	if cfg.NotifyBackend != "log" || cfg.MaterialPolicy != "tolerate" || cfg.StrictStock {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected 480 minute tokens, got %d", cfg.AccessTokenTTLMinutes)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("NOTIFY_BACKEND", " Kafka ")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("STRICT_STOCK", "true")
	t.Setenv("MATERIAL_POLICY", "ENFORCE")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.NotifyBackend != "kafka" {
		t.Fatalf("expected kafka backend, got %q", cfg.NotifyBackend)
	}
	if !slices.Equal(cfg.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if !cfg.StrictStock || cfg.MaterialPolicy != "enforce" {
		t.Fatalf("expected strict stock with enforced materials, got %+v", cfg)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected invalid ttl to fall back to 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsUnknownMaterialPolicy(t *testing.T) {
	for _, raw := range []string{"strict", "enforced", "off"} {
		t.Setenv("MATERIAL_POLICY", raw)
		if err := Load().Validate(); err == nil {
			t.Fatalf("expected MATERIAL_POLICY=%q to be rejected", raw)
		}
	}
	for _, raw := range []string{" Enforce ", "TOLERATE"} {
		t.Setenv("MATERIAL_POLICY", raw)
		if err := Load().Validate(); err != nil {
			t.Fatalf("expected MATERIAL_POLICY=%q to be accepted, got %v", raw, err)
		}
	}
}
