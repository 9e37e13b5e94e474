package config

import (
	"testing"

	"github.com/spf13/afero"
	"golang.org/x/crypto/chacha20poly1305"
)

func testKey() []byte {
	return make([]byte, chacha20poly1305.KeySize)
}

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	cm, err := NewConfigManagerWithKey(fs, "config.json", testKey())
	if err != nil {
		t.Fatalf("NewConfigManagerWithKey: %v", err)
	}
	if err := cm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := cm.Get()
	if cfg.Server.Port != 8080 {
		t.Fatalf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sampling.SingleTightSize != 200 {
		t.Fatalf("Sampling.SingleTightSize = %d, want 200", cfg.Sampling.SingleTightSize)
	}
	exists, err := afero.Exists(fs, "config.json")
	if err != nil || !exists {
		t.Fatalf("expected config.json to be written, exists=%v err=%v", exists, err)
	}
}

func TestRemoteDSNRoundTripsEncrypted(t *testing.T) {
	fs := afero.NewMemMapFs()
	key := testKey()
	cm, err := NewConfigManagerWithKey(fs, "config.json", key)
	if err != nil {
		t.Fatalf("NewConfigManagerWithKey: %v", err)
	}
	if err := cm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cm.Update(map[string]interface{}{"vector_store.remote_dsn": "postgres://secret@host/db"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	raw, err := afero.ReadFile(fs, "config.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if containsPlaintext(raw, "secret") {
		t.Fatal("config.json contains the remote DSN in plaintext")
	}

	cm2, err := NewConfigManagerWithKey(fs, "config.json", key)
	if err != nil {
		t.Fatalf("NewConfigManagerWithKey: %v", err)
	}
	if err := cm2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cm2.Get().VectorStore.RemoteDSN; got != "postgres://secret@host/db" {
		t.Fatalf("RemoteDSN = %q, want round-tripped plaintext", got)
	}
}

func containsPlaintext(data []byte, needle string) bool {
	s := string(data)
	for i := 0; i+len(needle) <= len(s); i++ {
		if s[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestUpdateRejectsUnknownKey(t *testing.T) {
	fs := afero.NewMemMapFs()
	cm, err := NewConfigManagerWithKey(fs, "config.json", testKey())
	if err != nil {
		t.Fatalf("NewConfigManagerWithKey: %v", err)
	}
	if err := cm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cm.Update(map[string]interface{}{"bogus.key": "x"}); err == nil {
		t.Fatal("expected error for unknown config key")
	}
}

func TestUpdateValidatesPort(t *testing.T) {
	fs := afero.NewMemMapFs()
	cm, err := NewConfigManagerWithKey(fs, "config.json", testKey())
	if err != nil {
		t.Fatalf("NewConfigManagerWithKey: %v", err)
	}
	if err := cm.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cm.Update(map[string]interface{}{"server.port": 70000}); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	if err := cm.Update(map[string]interface{}{"server.port": float64(9090)}); err != nil {
		t.Fatalf("Update with valid port: %v", err)
	}
	if cm.Get().Server.Port != 9090 {
		t.Fatalf("Server.Port = %d, want 9090", cm.Get().Server.Port)
	}
}

func TestGetOrCreateEncryptionKeyPersists(t *testing.T) {
	fs := afero.NewMemMapFs()
	key1, err := getOrCreateEncryptionKey(fs)
	if err != nil {
		t.Fatalf("getOrCreateEncryptionKey: %v", err)
	}
	key2, err := getOrCreateEncryptionKey(fs)
	if err != nil {
		t.Fatalf("getOrCreateEncryptionKey: %v", err)
	}
	if string(key1) != string(key2) {
		t.Fatal("encryption key was not persisted across calls")
	}
}
