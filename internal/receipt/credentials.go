package receipt

import (
	"fmt"
	"os"
	"strings"

	"github.com/zombor/receipt-parser/internal/scanning"
	"go.yaml.in/yaml/v3"
)

// CredentialSource provides model credentials for a single request
type CredentialSource interface {
	Load() (scanning.Credentials, error)
}

// fileConfig is the layout of the credential file
type fileConfig struct {
	Token string `yaml:"token"`
	Model string `yaml:"model"`
}

// FileCredentials reads credentials from a YAML file on every call.
// Nothing is cached, so a rotated token is picked up by the next request.
type FileCredentials struct {
	path string
}

// NewFileCredentials creates a FileCredentials for the given path
func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

// Load reads and parses the credential file
func (f *FileCredentials) Load() (scanning.Credentials, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return scanning.Credentials{}, fmt.Errorf("%w: reading %s: %w", ErrConfiguration, f.path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return scanning.Credentials{}, fmt.Errorf("%w: parsing %s: %w", ErrConfiguration, f.path, err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return scanning.Credentials{}, fmt.Errorf("%w: %s has no token", ErrConfiguration, f.path)
	}

	return scanning.Credentials{
		APIKey: token,
		Model:  strings.TrimSpace(cfg.Model),
	}, nil
}
