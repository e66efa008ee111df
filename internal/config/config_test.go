package config

import (
	"testing"
	"time"
)

func TestLoadSyncAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("owner.id", "owner-1")
	configViper.Set("remote.url", "https://sync.example.com")

	cfg, err := LoadSync(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AdminAddress != "127.0.0.1:8790" {
		t.Fatalf("unexpected admin address: %q", cfg.AdminAddress)
	}
	if cfg.SessionKind != "cloud" {
		t.Fatalf("unexpected session kind: %q", cfg.SessionKind)
	}
	if cfg.DrainInterval != 15*time.Second {
		t.Fatalf("unexpected drain interval: %v", cfg.DrainInterval)
	}
}

func TestLoadSyncRequiresOwner(t *testing.T) {
	if _, err := LoadSync(NewViper()); err == nil {
		t.Fatalf("expected missing owner rejected")
	}
}

func TestLoadSyncCloudSessionRequiresRemoteURL(t *testing.T) {
	configViper := NewViper()
	configViper.Set("owner.id", "owner-1")

	if _, err := LoadSync(configViper); err == nil {
		t.Fatalf("expected cloud session without remote url rejected")
	}
}

func TestLoadSyncMockSessionSkipsRemoteURL(t *testing.T) {
	configViper := NewViper()
	configViper.Set("owner.id", "owner-1")
	configViper.Set("session.kind", "mock")

	cfg, err := LoadSync(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RemoteURL != "" {
		t.Fatalf("unexpected remote url: %q", cfg.RemoteURL)
	}
}

func TestLoadSyncRejectsUnknownSessionKind(t *testing.T) {
	configViper := NewViper()
	configViper.Set("owner.id", "owner-1")
	configViper.Set("session.kind", "hybrid")

	if _, err := LoadSync(configViper); err == nil {
		t.Fatalf("expected unknown session kind rejected")
	}
}

func TestLoadServerRequiresSigningSecret(t *testing.T) {
	if _, err := LoadServer(NewViper()); err == nil {
		t.Fatalf("expected missing signing secret rejected")
	}
}

func TestLoadServerAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("server.signing_secret", "test-secret")

	cfg, err := LoadServer(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8780" {
		t.Fatalf("unexpected address: %q", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 12*time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
}
