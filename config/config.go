// Package config loads the run configuration: defaults, then a YAML file,
// then GEOCLF_ prefixed environment variables.
package config

import "bytes"
import "io"
import "os"

import "github.com/caarlos0/env/v11"
import "github.com/pkg/errors"
import "gopkg.in/yaml.v3"

import "github.com/neurlang/geoclassifier/classification"
import "github.com/neurlang/geoclassifier/datamodule"
import "github.com/neurlang/geoclassifier/trainer"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GEOCLF_"

// Config is the whole run configuration.
type Config struct {
	Data    datamodule.Config     `yaml:"data"`
	Model   classification.Config `yaml:"model"`
	Trainer trainer.Config        `yaml:"trainer"`
	Logger  trainer.LoggerConfig  `yaml:"logger"`
}

// Default returns the reference experiment without a dataset path.
func Default() Config {
	return Config{
		Data:    datamodule.DefaultConfig(),
		Model:   classification.DefaultConfig(),
		Trainer: trainer.DefaultConfig(),
		Logger:  trainer.LoggerConfig{Dir: "."},
	}
}

// Load reads name (if not empty) over the defaults and applies environment
// overrides. environ, when not nil, replaces the process environment.
func Load(name string, environ map[string]string) (Config, error) {
	cfg := Default()
	if name != "" {
		data, err := os.ReadFile(name)
		if err != nil {
			return cfg, errors.Wrap(err, "config")
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, errors.Wrap(err, name)
		}
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, errors.Wrap(err, "config environment")
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown keys.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return errors.Wrap(err, "config")
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	return c.Trainer.Validate()
}
