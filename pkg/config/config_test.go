package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAddrDefaults(t *testing.T) {
	cfg := &Config{}
	if cfg.Addr() != "127.0.0.1:8374" {
		t.Fatalf("expected default addr got %q", cfg.Addr())
	}
	cfg.Server.Address = "0.0.0.0"
	cfg.Server.Port = 9000
	if cfg.Addr() != "0.0.0.0:9000" {
		t.Fatalf("expected 0.0.0.0:9000 got %q", cfg.Addr())
	}
}

func TestSplitAddr(t *testing.T) {
	h, p := SplitAddr("127.0.0.1:8080")
	if h != "127.0.0.1" || p != 8080 {
		t.Fatalf("expected 127.0.0.1:8080 got %q:%d", h, p)
	}
	h, p = SplitAddr("localhost")
	if h != "localhost" || p != 0 {
		t.Fatalf("expected bare host got %q:%d", h, p)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  address: 0.0.0.0
  port: 9100
peer:
  handle: cool_alex
  mdns: true
  bootstrap:
    - /ip4/10.0.0.2/tcp/4001
storage:
  db_path: /tmp/bc-test
responder:
  enabled: true
  chat_model: gemini-2.5-flash
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 || cfg.Peer.Handle != "cool_alex" || !cfg.Peer.MDNS {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Peer.Bootstrap) != 1 {
		t.Fatalf("expected 1 bootstrap addr got %d", len(cfg.Peer.Bootstrap))
	}
	if !cfg.Responder.Enabled || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BACKCHANNEL_ADDR", "0.0.0.0:9999")
	t.Setenv("BACKCHANNEL_DB_PATH", "/tmp/override")
	t.Setenv("BACKCHANNEL_HANDLE", "sarah.xo")
	t.Setenv("BACKCHANNEL_MDNS", "true")
	t.Setenv("BACKCHANNEL_BOOTSTRAP", "/ip4/10.0.0.2/tcp/4001, /ip4/10.0.0.3/tcp/4001")
	t.Setenv("BACKCHANNEL_RATE_RPS", "12.5")
	t.Setenv("BACKCHANNEL_RESPONDER_API_KEY", "test-key")

	cfg := &Config{}
	if !LoadEnvOverrides(cfg) {
		t.Fatalf("expected env usage reported")
	}
	if cfg.Addr() != "0.0.0.0:9999" {
		t.Fatalf("expected overridden addr got %q", cfg.Addr())
	}
	if cfg.Storage.DBPath != "/tmp/override" || cfg.Peer.Handle != "sarah.xo" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Peer.MDNS || len(cfg.Peer.Bootstrap) != 2 || cfg.Peer.RateRPS != 12.5 {
		t.Fatalf("unexpected peer config %+v", cfg.Peer)
	}
	// setting the API key implies enabling the responder
	if !cfg.Responder.Enabled || cfg.Responder.APIKey != "test-key" {
		t.Fatalf("unexpected responder config %+v", cfg.Responder)
	}
}

func TestLoadEffectiveMissingFileTolerated(t *testing.T) {
	cfg, _, err := LoadEffective(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing config file must not fail: %v", err)
	}
	if cfg == nil {
		t.Fatalf("expected zero config")
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("./flagged.yaml", true); got != "./flagged.yaml" {
		t.Fatalf("flag must win, got %q", got)
	}
	t.Setenv("BACKCHANNEL_CONFIG", "/etc/backchannel.yaml")
	if got := ResolveConfigPath("./default.yaml", false); got != "/etc/backchannel.yaml" {
		t.Fatalf("env must win over default, got %q", got)
	}
}
