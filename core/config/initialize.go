package config

import (
	"log"
	"path/filepath"

	"github.com/spf13/afero"
)

// Initialize writes the default configuration into dir unless one already
// exists, then loads it.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	return InitializeFs(afero.NewOsFs(), dir, logger)
}

// InitializeFs is Initialize against an arbitrary filesystem.
func InitializeFs(fs afero.Fs, dir string, logger *log.Logger) (*Configuration, error) {
	if err := fs.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, ConfigurationName)
	exists, err := afero.Exists(fs, configPath)
	if err != nil {
		return nil, err
	}
	if exists {
		logger.Printf("Configuration already exists at %s, leaving it untouched.", configPath)
	} else {
		if err := afero.WriteFile(fs, configPath, defaultConfigData, 0600); err != nil {
			return nil, err
		}
		logger.Printf("Wrote default configuration to %s", configPath)
	}

	return LoadFs(fs, dir)
}
