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
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netrun/pkg/filter"
	"github.com/carverauto/netrun/pkg/logger"
)

// newTestAPIConfig points a validated config at the given test server.
func newTestAPIConfig(t *testing.T, serverURL string, filters []filter.Rule) *APIConfig {
	t.Helper()

	parsed, err := url.Parse(serverURL)
	require.NoError(t, err)

	host, portStr, err := net.SplitHostPort(parsed.Host)
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := &APIConfig{
		Host:     host,
		Port:     port,
		Protocol: "http",
		APIKey:   "test-key",
		Filters:  filters,
		Username: "netadmin",
		Password: "hunter2",
	}
	require.NoError(t, cfg.Validate())

	return cfg
}

func TestAPISourceFetchAndFilter(t *testing.T) {
	var gotToken, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Auth-Token")
		gotPath = r.URL.Path

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"count": 3,
			"devices": [
				{"os": "iosxe", "ip": "10.0.0.1", "hostname": "core-sw-01"},
				{"os": "windows", "ip": "10.0.0.2", "hostname": "dc-01"},
				{"os": "nxos", "ip": "", "hostname": "agg-sw-01", "sysName": "agg1"}
			]
		}`))
	}))
	defer server.Close()

	cfg := newTestAPIConfig(t, server.URL, []filter.Rule{})
	src := NewAPISource(context.Background(), cfg, logger.NewTestLogger())

	records, err := Collect(src)
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotToken)
	assert.Equal(t, "/api/v0/devices", gotPath)

	// windows is excluded by the default denylist; the two network devices
	// survive with the login template merged in.
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "10.0.0.1", first.Host())
	assert.Equal(t, "cisco_xe", first.DeviceType())
	assert.Equal(t, "netadmin", first.Username())
	assert.Equal(t, "hunter2", first.Password())
	assert.Equal(t, "hunter2", first.Secret(), "secret defaults to password")

	// Blank ip falls through to hostname.
	assert.Equal(t, "agg-sw-01", records[1].Host())
}

func TestAPISourceAddressPreference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"count": 2,
			"devices": [
				{"os": "ios", "ip": "", "hostname": "", "sysName": "lonely-sw"},
				{"os": "ios", "ip": "", "hostname": "", "sysName": ""}
			]
		}`))
	}))
	defer server.Close()

	cfg := newTestAPIConfig(t, server.URL, []filter.Rule{})
	src := NewAPISource(context.Background(), cfg, logger.NewTestLogger())

	records, err := Collect(src)
	require.NoError(t, err)

	// sysName is the last resort; a device with no address at all is skipped.
	require.Len(t, records, 1)
	assert.Equal(t, "lonely-sw", records[0].Host())
}

func TestAPISourceSkipsUnmappedOS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"count": 1,
			"devices": [{"os": "solaris", "ip": "10.0.0.9"}]
		}`))
	}))
	defer server.Close()

	cfg := newTestAPIConfig(t, server.URL, []filter.Rule{})
	src := NewAPISource(context.Background(), cfg, logger.NewTestLogger())

	records, err := Collect(src)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAPISourceUserFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"count": 2,
			"devices": [
				{"os": "iosxe", "ip": "10.0.0.1", "site": "dc1"},
				{"os": "iosxe", "ip": "10.0.0.2", "site": "dc2"}
			]
		}`))
	}))
	defer server.Close()

	cfg := newTestAPIConfig(t, server.URL, []filter.Rule{
		{Field: "site", Qualifier: filter.QualifierEquals, Candidates: []string{"dc1"}},
	})
	src := NewAPISource(context.Background(), cfg, logger.NewTestLogger())

	records, err := Collect(src)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.0.0.1", records[0].Host())
}

func TestAPISourceBadStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := newTestAPIConfig(t, server.URL, []filter.Rule{})
	src := NewAPISource(context.Background(), cfg, logger.NewTestLogger())

	_, err := Collect(src)
	require.ErrorIs(t, err, errUnexpectedStatusCode)
}

func TestAPISourceBadResponseStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "error", "devices": []}`))
	}))
	defer server.Close()

	cfg := newTestAPIConfig(t, server.URL, []filter.Rule{})
	src := NewAPISource(context.Background(), cfg, logger.NewTestLogger())

	_, err := Collect(src)
	require.ErrorIs(t, err, errBadResponseStatus)
}

func TestAPISourceMissingDeviceList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok", "count": 0}`))
	}))
	defer server.Close()

	cfg := newTestAPIConfig(t, server.URL, []filter.Rule{})
	src := NewAPISource(context.Background(), cfg, logger.NewTestLogger())

	_, err := Collect(src)
	require.ErrorIs(t, err, errNoDeviceList)
}

func TestAPIConfigValidate(t *testing.T) {
	base := func() *APIConfig {
		return &APIConfig{
			Host:     "radar.example.com",
			APIKey:   "key",
			Filters:  []filter.Rule{},
			Username: "admin",
			Password: "pw",
		}
	}

	t.Run("defaults applied", func(t *testing.T) {
		cfg := base()
		require.NoError(t, cfg.Validate())

		assert.Equal(t, "https", cfg.Protocol)
		assert.Equal(t, 443, cfg.Port)
		require.NotNil(t, cfg.TLSVerify)
		assert.True(t, *cfg.TLSVerify)
		assert.Equal(t, "pw", cfg.Secret)
		assert.Equal(t, 30*time.Second, time.Duration(cfg.Timeout))
	})

	t.Run("http defaults to port 80 without TLS verification", func(t *testing.T) {
		cfg := base()
		cfg.Protocol = "http"
		require.NoError(t, cfg.Validate())

		assert.Equal(t, 80, cfg.Port)
		require.NotNil(t, cfg.TLSVerify)
		assert.False(t, *cfg.TLSVerify)
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		verify := false
		cfg := base()
		cfg.Port = 8443
		cfg.TLSVerify = &verify
		cfg.Secret = "enable"
		require.NoError(t, cfg.Validate())

		assert.Equal(t, 8443, cfg.Port)
		assert.False(t, *cfg.TLSVerify)
		assert.Equal(t, "enable", cfg.Secret)
	})

	missing := []struct {
		name   string
		mutate func(*APIConfig)
		want   error
	}{
		{"host", func(c *APIConfig) { c.Host = "" }, errMissingHost},
		{"api_key", func(c *APIConfig) { c.APIKey = "" }, errMissingAPIKey},
		{"filters", func(c *APIConfig) { c.Filters = nil }, errMissingFilters},
		{"username", func(c *APIConfig) { c.Username = "" }, errMissingUsername},
		{"password", func(c *APIConfig) { c.Password = "" }, errMissingPassword},
	}

	for _, tt := range missing {
		t.Run("missing "+tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("bad protocol", func(t *testing.T) {
		cfg := base()
		cfg.Protocol = "gopher"
		require.ErrorIs(t, cfg.Validate(), errBadProtocol)
	})
}
