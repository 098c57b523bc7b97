/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads declarative configuration documents from local files.
package config

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/carverauto/netrun/pkg/logger"
)

// ConfigLoader loads a configuration document from a path into dst.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by config types that can validate themselves.
// Validate may also apply defaults.
type Validator interface {
	Validate() error
}

// Config holds the configuration loading dependencies.
type Config struct {
	logger logger.Logger
}

// NewConfig initializes a new Config instance. A nil logger falls back to the
// no-op test logger.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Config{logger: log}
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadAndValidate loads a configuration document and validates it. The loader
// is chosen by file extension: .yaml/.yml documents go through the YAML
// loader, everything else is treated as JSON.
func (c *Config) LoadAndValidate(ctx context.Context, path string, cfg interface{}) error {
	loader := c.loaderFor(path)

	if err := loader.Load(ctx, path, cfg); err != nil {
		return err
	}

	return ValidateConfig(cfg)
}

func (c *Config) loaderFor(path string) ConfigLoader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return &YAMLConfigLoader{logger: c.logger}
	default:
		return &FileConfigLoader{logger: c.logger}
	}
}
