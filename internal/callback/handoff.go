package callback

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handoff is what a completed redirect leaves behind for downstream tools.
type Handoff struct {
	RequestToken string    `json:"request_token"`
	Status       string    `json:"status,omitempty"`
	Action       string    `json:"action,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	PublicToken  string    `json:"public_token,omitempty"`
	Error        string    `json:"error,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Exchanged reports whether the handoff carries an access token.
func (h Handoff) Exchanged() bool { return h.AccessToken != "" }

// SaveHandoff writes h as JSON, readable by the owner only.
func SaveHandoff(path string, h Handoff) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand handoff path: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create handoff directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode handoff: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write handoff: %w", err)
	}
	return nil
}

// LoadHandoff reads a handoff written by SaveHandoff.
func LoadHandoff(path string) (Handoff, error) {
	var h Handoff
	path, err := homedir.Expand(path)
	if err != nil {
		return h, fmt.Errorf("failed to expand handoff path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return h, fmt.Errorf("failed to read handoff: %w", err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("failed to decode handoff: %w", err)
	}
	return h, nil
}
