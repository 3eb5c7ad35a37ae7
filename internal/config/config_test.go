package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.MaxSentenceLen != 150 {
		t.Fatalf("MaxSentenceLen = %d, want 150", cfg.MaxSentenceLen)
	}
	if cfg.GatewayTimeout != 10*time.Second {
		t.Fatalf("GatewayTimeout = %v, want 10s", cfg.GatewayTimeout)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("REDIS_ADDR", "127.0.0.1:6379")
	t.Setenv("MAX_SENTENCE_LEN", "30")
	t.Setenv("GATEWAY_TIMEOUT", "2s")
	t.Setenv("BASE_URL", "https://stories.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("addresses = %q / %q", cfg.HTTPAddr, cfg.RedisAddr)
	}
	if cfg.MaxSentenceLen != 30 || cfg.GatewayTimeout != 2*time.Second {
		t.Fatalf("limits = %d / %v", cfg.MaxSentenceLen, cfg.GatewayTimeout)
	}
	if cfg.ReturnURL() != "https://stories.example.com/success" {
		t.Fatalf("ReturnURL = %q", cfg.ReturnURL())
	}
	if cfg.NotifyURL() != "https://stories.example.com/api/webhooks/cashfree" {
		t.Fatalf("NotifyURL = %q", cfg.NotifyURL())
	}
}
