package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const secretsService = "voicekeeper"

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "voicekeeper", "secrets.json")
}

// fileSecrets reads secrets from a 0600 JSON file keyed by service/account.
type fileSecrets struct {
	path string
}

func (f fileSecrets) file() string {
	if f.path != "" {
		return f.path
	}
	return secretsFilePath()
}

func (f fileSecrets) Get(service, account string) (string, error) {
	data, err := os.ReadFile(f.file())
	if err != nil {
		return "", fmt.Errorf("secrets file not available: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	svc, ok := secrets[service]
	if !ok {
		return "", fmt.Errorf("service %q not found", service)
	}
	val, ok := svc[account]
	if !ok {
		return "", fmt.Errorf("account %q not found in service %q", account, service)
	}
	return val, nil
}

func (f fileSecrets) Set(service, account, value string) error {
	p := f.file()

	var secrets map[string]map[string]string

	data, err := os.ReadFile(p)
	if err == nil {
		_ = json.Unmarshal(data, &secrets)
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}

// SecretStore is the read/write view of the secrets file.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewSecretStore returns the default file-backed secret store.
func NewSecretStore() SecretStore {
	return fileSecrets{}
}

// GetAPIToken returns the bearer token protecting the HTTP API, generating
// and persisting a new one on first use. VOICEKEEPER_API_TOKEN wins if set.
func GetAPIToken(s SecretStore) (string, error) {
	if tok := os.Getenv("VOICEKEEPER_API_TOKEN"); tok != "" {
		return tok, nil
	}
	if tok, err := s.Get(secretsService, "api_token"); err == nil && tok != "" {
		return tok, nil
	}
	tok := uuid.New().String()
	if err := s.Set(secretsService, "api_token", tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
