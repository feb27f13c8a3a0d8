package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// DefaultDotEnvFile is read by both binaries at startup when present.
const DefaultDotEnvFile = ".env"

// LoadDotEnv populates the process environment from env files. Variables that
// are already set win, and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultDotEnvFile}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}
