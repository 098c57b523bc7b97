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

package inventory

import (
	"errors"
	"time"

	"github.com/carverauto/netrun/pkg/filter"
	"github.com/carverauto/netrun/pkg/models"
)

const (
	protocolHTTPS = "https"
	protocolHTTP  = "http"

	defaultAPITimeout = 30 * time.Second
)

var (
	errMissingHost     = errors.New("api config: host is required")
	errMissingAPIKey   = errors.New("api config: api_key is required")
	errMissingFilters  = errors.New("api config: filters is required")
	errMissingUsername = errors.New("api config: username is required")
	errMissingPassword = errors.New("api config: password is required")
	errBadProtocol     = errors.New("api config: protocol must be http or https")
)

// APIConfig is the declarative config for the remote device-management API
// source. Defaults: secure transport, port by protocol, TLS verification on
// for https, secret falls back to password.
type APIConfig struct {
	Host     string        `json:"host" yaml:"host"`
	APIKey   string        `json:"api_key" yaml:"api_key"`
	Filters  []filter.Rule `json:"filters" yaml:"filters"`
	Username string        `json:"username" yaml:"username"`
	Password string        `json:"password" yaml:"password"`

	Protocol  string          `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Port      int             `json:"port,omitempty" yaml:"port,omitempty"`
	TLSVerify *bool           `json:"tls_verify,omitempty" yaml:"tls_verify,omitempty"`
	Secret    string          `json:"secret,omitempty" yaml:"secret,omitempty"`
	Timeout   models.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Validate implements config.Validator: it fails fast on missing required
// keys and applies the documented defaults.
func (c *APIConfig) Validate() error {
	if c.Host == "" {
		return errMissingHost
	}

	if c.APIKey == "" {
		return errMissingAPIKey
	}

	if c.Filters == nil {
		return errMissingFilters
	}

	if c.Username == "" {
		return errMissingUsername
	}

	if c.Password == "" {
		return errMissingPassword
	}

	if c.Protocol == "" {
		c.Protocol = protocolHTTPS
	}

	if c.Protocol != protocolHTTPS && c.Protocol != protocolHTTP {
		return errBadProtocol
	}

	if c.Port == 0 {
		if c.Protocol == protocolHTTPS {
			c.Port = 443
		} else {
			c.Port = 80
		}
	}

	if c.TLSVerify == nil {
		verify := c.Protocol == protocolHTTPS
		c.TLSVerify = &verify
	}

	if c.Secret == "" {
		c.Secret = c.Password
	}

	if time.Duration(c.Timeout) == 0 {
		c.Timeout = models.Duration(defaultAPITimeout)
	}

	return nil
}
