// Package messages loads user-facing push notification texts from a JSON
// file so copy can change without a rebuild.
package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Messages struct {
	ConnectionExpired MessageText `json:"connection_expired"`
	SyncComplete      MessageText `json:"sync_complete"`
}

// Default returns the built-in texts used when no messages file is
// configured or loading fails.
func Default() *Messages {
	return &Messages{
		ConnectionExpired: MessageText{
			Title: "Bank connection expired",
			Body:  "Your consent for %s has expired. Reconnect to keep your balances up to date.",
		},
		SyncComplete: MessageText{
			Title: "Accounts updated",
			Body:  "Your bank accounts have been refreshed.",
		},
	}
}

var (
	loaded   Messages
	loadOnce sync.Once
	loadErr  error
)

// Load reads the notifications JSON file and caches the result.
// Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		if err := json.Unmarshal(data, &loaded); err != nil {
			loadErr = fmt.Errorf("failed to parse messages file: %w", err)
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return &loaded, nil
}
