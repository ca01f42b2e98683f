package conf

import (
	"os"
	"path/filepath"

	"github.com/tphakala/batrec/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	return []string{
		filepath.Join(homeDir, ".config", "batrec"),
		"/etc/batrec",
		".",
	}, nil
}
