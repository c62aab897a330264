package models

import (
	"errors"
	"strings"
	"time"
)

// AdNetwork is a third-party ad provider whose scripts are served on the site.
type AdNetwork struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsEnabled bool      `json:"isEnabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the fields an admin must provide.
func (n AdNetwork) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return errors.New("network name is required")
	}
	return nil
}
