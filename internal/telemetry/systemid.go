package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const systemIDFile = ".system_id"

// systemIDPattern is XXXX-XXXX-XXXX in upper case hex.
var systemIDPattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

// GenerateSystemID creates a random, anonymous station identifier.
func GenerateSystemID() string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s-%s-%s", hex[0:4], hex[4:8], hex[8:12])
}

// LoadOrCreateSystemID reads the identifier stored in dir, creating and
// saving a new one when it is missing or malformed.
func LoadOrCreateSystemID(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	idFile := filepath.Join(dir, systemIDFile)
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); IsValidSystemID(id) {
			return id, nil
		}
	}

	id := GenerateSystemID()
	if err := os.WriteFile(idFile, []byte(id), 0o644); err != nil {
		return "", fmt.Errorf("failed to save system ID: %w", err)
	}
	return id, nil
}

// IsValidSystemID checks if a system ID has the correct format
func IsValidSystemID(id string) bool {
	return systemIDPattern.MatchString(id)
}
