// Package config provides configuration management for the field sampling
// engine, with the vector store's remote credential encrypted at rest the
// way the teacher encrypts its LLM/embedding API keys.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/crypto/chacha20poly1305"
)

// encryptionKeyEnvVar is the environment variable holding the hex-encoded
// ChaCha20-Poly1305 key.
const encryptionKeyEnvVar = "FIELDENGINE_ENCRYPTION_KEY"

// encryptedPrefix marks a value as AEAD-encrypted in the config file.
const encryptedPrefix = "enc:"

// keyFilePath is the persistent fallback location for a generated key.
const keyFilePath = "./data/encryption.key"

// Config holds all system configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	PCA         PCAConfig         `json:"pca"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	Sampling    SamplingConfig    `json:"sampling"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Bind string `json:"bind"`
	Port int    `json:"port"`
}

// PCAConfig points at the basis artifact of spec §6.
type PCAConfig struct {
	ArtifactPath string `json:"artifact_path"`
	MinRank      int    `json:"min_rank"`
}

// VectorStoreConfig configures the vector store connection. RemoteDSN is
// optional; when set it is AEAD-encrypted at rest, the same way the
// teacher's ConfigManager encrypts its LLM and embedding API keys.
type VectorStoreConfig struct {
	DBPath    string `json:"db_path"`
	RemoteDSN string `json:"remote_dsn"`
}

// SamplingConfig holds the default pool sizes and limits of spec §4.4/§4.6.
type SamplingConfig struct {
	DefaultCount        int `json:"default_count"`
	SingleTightSize     int `json:"single_tight_size"`
	SingleDriftSize     int `json:"single_drift_size"`
	SingleRandSize      int `json:"single_rand_size"`
	MaxChunksPerRequest int `json:"max_chunks_per_request"`
}

// ConfigManager manages loading, saving, and updating configuration through
// an afero.Fs, so tests can swap in afero.NewMemMapFs() instead of touching
// the real filesystem.
type ConfigManager struct {
	fs            afero.Fs
	configPath    string
	config        *Config
	mu            sync.RWMutex
	encryptionKey []byte // 32-byte ChaCha20-Poly1305 key
}

// NewConfigManager creates a new ConfigManager for the given config file
// path on fs. The encryption key is read from FIELDENGINE_ENCRYPTION_KEY,
// or a persistent key file, or generated and persisted if neither exists.
func NewConfigManager(fs afero.Fs, configPath string) (*ConfigManager, error) {
	key, err := getOrCreateEncryptionKey(fs)
	if err != nil {
		return nil, fmt.Errorf("encryption key error: %w", err)
	}
	return &ConfigManager{fs: fs, configPath: configPath, encryptionKey: key}, nil
}

// NewConfigManagerWithKey creates a ConfigManager with an explicit
// encryption key, for testing.
func NewConfigManagerWithKey(fs afero.Fs, configPath string, key []byte) (*ConfigManager, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes", chacha20poly1305.KeySize)
	}
	return &ConfigManager{fs: fs, configPath: configPath, encryptionKey: key}, nil
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		PCA: PCAConfig{
			ArtifactPath: "pca_basis.json",
			MinRank:      2,
		},
		VectorStore: VectorStoreConfig{
			DBPath: "field.db",
		},
		Sampling: SamplingConfig{
			DefaultCount:        20,
			SingleTightSize:     200,
			SingleDriftSize:     400,
			SingleRandSize:      800,
			MaxChunksPerRequest: 16,
		},
	}
}

// Load reads the config file from disk and decrypts the vector store's
// remote DSN. If the file does not exist, it initializes with default
// values and saves.
func (cm *ConfigManager) Load() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := afero.ReadFile(cm.fs, cm.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cm.config = DefaultConfig()
			return cm.saveLocked()
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if cfg.VectorStore.RemoteDSN, err = cm.decryptIfNeeded(cfg.VectorStore.RemoteDSN); err != nil {
		return fmt.Errorf("decrypt vector store DSN: %w", err)
	}

	cm.applyDefaults(&cfg)
	cm.config = &cfg
	return nil
}

// Save writes the current config to disk with the remote DSN encrypted.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.saveLocked()
}

func (cm *ConfigManager) saveLocked() error {
	if cm.config == nil {
		return errors.New("no config loaded")
	}

	out := *cm.config
	out.VectorStore.RemoteDSN = cm.encryptIfNeeded(cm.config.VectorStore.RemoteDSN)

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := afero.WriteFile(cm.fs, cm.configPath, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.config == nil {
		return nil
	}
	c := *cm.config
	return &c
}

// Update applies partial updates to the configuration and saves to disk.
// Supported keys: "server.bind", "server.port", "pca.artifact_path",
// "pca.min_rank", "vector_store.db_path", "vector_store.remote_dsn",
// "sampling.default_count", "sampling.max_chunks_per_request".
func (cm *ConfigManager) Update(updates map[string]interface{}) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.config == nil {
		cm.config = DefaultConfig()
	}
	if len(updates) > 100 {
		return fmt.Errorf("too many config updates (max 100 keys per request)")
	}
	for key, val := range updates {
		if err := cm.applyUpdate(key, val); err != nil {
			return fmt.Errorf("update key %q: %w", key, err)
		}
	}
	return cm.saveLocked()
}

func (cm *ConfigManager) applyUpdate(key string, val interface{}) error {
	switch key {
	case "server.bind":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		cm.config.Server.Bind = s
	case "server.port":
		n, err := toInt(val)
		if err != nil {
			return err
		}
		if n < 1 || n > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cm.config.Server.Port = n
	case "pca.artifact_path":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		if strings.Contains(s, "..") {
			return errors.New("artifact_path must not contain '..'")
		}
		cm.config.PCA.ArtifactPath = s
	case "pca.min_rank":
		n, err := toInt(val)
		if err != nil {
			return err
		}
		if n < 2 {
			return errors.New("min_rank must be at least 2")
		}
		cm.config.PCA.MinRank = n
	case "vector_store.db_path":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		if strings.Contains(s, "..") {
			return errors.New("db_path must not contain '..'")
		}
		cm.config.VectorStore.DBPath = s
	case "vector_store.remote_dsn":
		s, ok := val.(string)
		if !ok {
			return errors.New("expected string")
		}
		cm.config.VectorStore.RemoteDSN = s
	case "sampling.default_count":
		n, err := toInt(val)
		if err != nil {
			return err
		}
		if n < 1 || n > 50 {
			return errors.New("default_count must be between 1 and 50")
		}
		cm.config.Sampling.DefaultCount = n
	case "sampling.max_chunks_per_request":
		n, err := toInt(val)
		if err != nil {
			return err
		}
		if n < 1 || n > 16 {
			return errors.New("max_chunks_per_request must be between 1 and 16")
		}
		cm.config.Sampling.MaxChunksPerRequest = n
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

// applyDefaults fills in zero-value fields with defaults.
func (cm *ConfigManager) applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = defaults.Server.Bind
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.PCA.ArtifactPath == "" {
		cfg.PCA.ArtifactPath = defaults.PCA.ArtifactPath
	}
	if cfg.PCA.MinRank == 0 {
		cfg.PCA.MinRank = defaults.PCA.MinRank
	}
	if cfg.VectorStore.DBPath == "" {
		cfg.VectorStore.DBPath = defaults.VectorStore.DBPath
	}
	if cfg.Sampling.DefaultCount == 0 {
		cfg.Sampling.DefaultCount = defaults.Sampling.DefaultCount
	}
	if cfg.Sampling.SingleTightSize == 0 {
		cfg.Sampling.SingleTightSize = defaults.Sampling.SingleTightSize
	}
	if cfg.Sampling.SingleDriftSize == 0 {
		cfg.Sampling.SingleDriftSize = defaults.Sampling.SingleDriftSize
	}
	if cfg.Sampling.SingleRandSize == 0 {
		cfg.Sampling.SingleRandSize = defaults.Sampling.SingleRandSize
	}
	if cfg.Sampling.MaxChunksPerRequest == 0 {
		cfg.Sampling.MaxChunksPerRequest = defaults.Sampling.MaxChunksPerRequest
	}
}

// --- ChaCha20-Poly1305 encryption helpers ---

func (cm *ConfigManager) encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := chacha20poly1305.New(cm.encryptionKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(ciphertext), nil
}

func (cm *ConfigManager) decrypt(ciphertextHex string) (string, error) {
	if ciphertextHex == "" {
		return "", nil
	}
	ciphertext, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", fmt.Errorf("hex decode: %w", err)
	}
	aead, err := chacha20poly1305.New(cm.encryptionKey)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < chacha20poly1305.NonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:chacha20poly1305.NonceSize], ciphertext[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// encryptIfNeeded encrypts a value and adds the "enc:" prefix. Empty
// strings are returned as-is.
func (cm *ConfigManager) encryptIfNeeded(value string) string {
	if value == "" {
		return ""
	}
	encrypted, err := cm.encrypt(value)
	if err != nil {
		return value
	}
	return encryptedPrefix + encrypted
}

// decryptIfNeeded decrypts a value if it has the "enc:" prefix.
func (cm *ConfigManager) decryptIfNeeded(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if len(value) > len(encryptedPrefix) && value[:len(encryptedPrefix)] == encryptedPrefix {
		return cm.decrypt(value[len(encryptedPrefix):])
	}
	return value, nil
}

// --- Encryption key management ---

func getOrCreateEncryptionKey(fs afero.Fs) ([]byte, error) {
	if keyHex := os.Getenv(encryptionKeyEnvVar); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key hex: %w", err)
		}
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
		}
		return key, nil
	}

	if data, err := afero.ReadFile(fs, keyFilePath); err == nil {
		keyHex := strings.TrimSpace(string(data))
		if key, err := hex.DecodeString(keyHex); err == nil && len(key) == chacha20poly1305.KeySize {
			return key, nil
		}
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}
	if err := fs.MkdirAll("./data", 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	if err := afero.WriteFile(fs, keyFilePath, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("save encryption key: %w", err)
	}
	return key, nil
}

func toInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case float32:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, err
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", val)
	}
}
