package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateSearchID generates a search ID with a timestamp prefix
func GenerateSearchID() string {
	timestamp := time.Now().Format("20060102-150405")
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("search-%s-%s", timestamp, short)
}

// ValidateID rejects IDs that cannot be used as a store key or URL path segment
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if len(id) > 128 {
		return fmt.Errorf("id cannot be longer than 128 characters")
	}
	if strings.ContainsAny(id, "/\\:?#% \t\n") || strings.Contains(id, "..") {
		return fmt.Errorf("id cannot contain path separators, spaces or URL delimiters: %q", id)
	}
	return nil
}
