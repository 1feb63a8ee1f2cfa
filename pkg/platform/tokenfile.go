package platform

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/NaveDanan/HuggingSpace/pkg/models"
)

// TokenFile caches a session on disk so the CLI can reuse it between runs.
type TokenFile struct {
	Server  string         `json:"server"`
	Session models.Session `json:"session"`
}

// TokenFilePath returns the default path for the cached session.
func TokenFilePath() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "HuggingSpace", "session.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "huggingspace", "session.json")
}

// SaveToken writes the session cache to the default location.
func SaveToken(tf *TokenFile) error {
	path := TokenFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadToken reads the session cache from the default location.
func LoadToken() (*TokenFile, error) {
	data, err := os.ReadFile(TokenFilePath())
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, err
	}
	return &tf, nil
}

// DeleteToken removes the cached session.
func DeleteToken() error {
	return os.Remove(TokenFilePath())
}
