package config

import (
	_ "embed"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName = "config.yaml"

	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	configFs  afero.Fs
	configDir string

	Prompt             string `json:"prompt"`
	ContinuationPrompt string `json:"continuation_prompt"`

	HistoryFile  string `json:"history_file"`
	HistoryLimit int    `json:"history_limit" validate:"gte=0"`

	Color string `json:"color" validate:"oneof=always auto never"`

	Path string            `json:"path" validate:"required"`
	Env  map[string]string `json:"env" validate:"dive,keys,required,excludesall==,endkeys"`

	ReportJobs bool `json:"report_jobs"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		return afero.NewOsFs()
	}
	return c.configFs
}

// Dir is the directory the configuration was loaded from, or "" for the
// built-in defaults.
func (c *Configuration) Dir() string {
	return c.configDir
}

// HistoryPath returns the history file location, or "" if history is not
// persisted. Relative paths are resolved against the configuration directory.
func (c *Configuration) HistoryPath() string {
	switch {
	case c.HistoryFile == "":
		return ""
	case filepath.IsAbs(c.HistoryFile):
		return c.HistoryFile
	case c.configDir == "":
		return ""
	default:
		return filepath.Join(c.configDir, c.HistoryFile)
	}
}

// Exists reports whether the configuration directory has a config file.
func (c *Configuration) Exists() bool {
	ok, _ := afero.Exists(c.fs(), filepath.Join(c.configDir, ConfigurationName))
	return ok
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return defaultConfig()
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}
