package credential

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"BollWatch/internal/model"
)

// State is the on-disk shape. The app secret never leaves the config.
type State struct {
	AccessToken string     `json:"access_token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Version     uint64     `json:"version"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// LoadState reads the credential state file. Returns nil if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var p State
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveState writes the credential to filePath via a temp file and rename.
func SaveState(filePath string, c model.Credential) error {
	data, err := json.MarshalIndent(State{
		AccessToken: c.AccessToken,
		ExpiresAt:   c.ExpiresAt,
		Version:     c.Version,
		UpdatedAt:   c.UpdatedAt,
	}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
