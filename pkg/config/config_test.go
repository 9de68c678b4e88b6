package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "log_level: debug\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.ShutdownWaitSeconds != 30 {
		t.Errorf("ShutdownWaitSeconds = %d, want 30", cfg.ShutdownWaitSeconds)
	}
	if cfg.Endpoint.MaxCalls != 4 {
		t.Errorf("MaxCalls = %d, want 4", cfg.Endpoint.MaxCalls)
	}
	if cfg.Endpoint.UserAgent != "softphone" {
		t.Errorf("UserAgent = %q", cfg.Endpoint.UserAgent)
	}
	if len(cfg.Transports) != 1 || cfg.Transports[0].Type != "udp" || cfg.Transports[0].Port != 5060 {
		t.Errorf("default transport = %+v", cfg.Transports)
	}
	if cfg.GetShutdownWait() != 30*time.Second {
		t.Errorf("GetShutdownWait = %v", cfg.GetShutdownWait())
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "accounts: [unclosed\n")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestLoadConfigAccountValidation(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
accounts:
  - password: secret
`))
	if err == nil {
		t.Fatal("expected error for account without id or domain+username")
	}
}

func TestShortFormAccountSynthesis(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
accounts:
  - domain: example.com
    username: alice
    password: secret
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	acc := cfg.Accounts[0].ToAccountConfig()

	if acc.ID != "sip:alice@example.com" {
		t.Errorf("ID = %q", acc.ID)
	}
	if acc.RegistrarURI != "sip:example.com" {
		t.Errorf("RegistrarURI = %q", acc.RegistrarURI)
	}
	if len(acc.Proxy) != 1 || acc.Proxy[0] != "sip:example.com;lr" {
		t.Errorf("Proxy = %v", acc.Proxy)
	}
	if len(acc.Credentials) != 1 {
		t.Fatalf("Credentials = %v", acc.Credentials)
	}
	cred := acc.Credentials[0]
	if cred.Realm != "*" || cred.Username != "alice" || cred.Password != "secret" || cred.Scheme != "digest" {
		t.Errorf("credential = %+v", cred)
	}
	if acc.RegTimeout != 300*time.Second {
		t.Errorf("RegTimeout = %v", acc.RegTimeout)
	}
}

func TestFullFormAccountPassthrough(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
accounts:
  - id: sip:bob@sip.example.net
    registrar_uri: sip:registrar.example.net
    proxies:
      - sip:edge.example.net;lr
    credentials:
      - realm: example.net
        username: bob
        password: hunter2
    reg_timeout_seconds: 120
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	acc := cfg.Accounts[0].ToAccountConfig()

	if acc.ID != "sip:bob@sip.example.net" {
		t.Errorf("ID = %q", acc.ID)
	}
	if acc.RegistrarURI != "sip:registrar.example.net" {
		t.Errorf("RegistrarURI = %q", acc.RegistrarURI)
	}
	if len(acc.Proxy) != 1 || acc.Proxy[0] != "sip:edge.example.net;lr" {
		t.Errorf("Proxy = %v", acc.Proxy)
	}
	if acc.RegTimeout != 120*time.Second {
		t.Errorf("RegTimeout = %v", acc.RegTimeout)
	}
	if len(acc.Credentials) != 1 || acc.Credentials[0].Realm != "example.net" {
		t.Errorf("Credentials = %+v", acc.Credentials)
	}
}
